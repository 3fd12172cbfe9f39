package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
//
// Индекс по номеру заказа проверяется и обновляется под той же блокировкой,
// что и вставка, поэтому два конкурентных Save с одинаковым номером не могут
// оба завершиться успешно.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	nextID   int64
	items    map[int64]domain.Order
	byNumber map[string]int64
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[int64]domain.Order),
		byNumber: make(map[string]int64),
	}
}

// FindByID возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) FindByID(ctx context.Context, id int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// FindByOrderNumber ищет заказ по бизнес-номеру.
func (r *orderRepositoryInMemory) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[orderNumber]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

// Save вставляет новый заказ (ID == 0) или обновляет статус существующего.
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == 0 {
		if _, exists := r.byNumber[order.OrderNumber]; exists {
			return domain.Order{}, domain.ErrOrderNumberConflict
		}
		r.nextID++
		order.ID = r.nextID
		r.items[order.ID] = order
		r.byNumber[order.OrderNumber] = order.ID
		return order, nil
	}

	current, ok := r.items[order.ID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	// Остальные поля неизменяемы после создания.
	current.Status = order.Status
	r.items[order.ID] = current
	return current, nil
}

// Delete удаляет заказ и освобождает его номер.
func (r *orderRepositoryInMemory) Delete(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, current.ID)
	delete(r.byNumber, current.OrderNumber)
	return nil
}

// FindAll возвращает страницу заказов с фильтром по статусу и сортировкой.
func (r *orderRepositoryInMemory) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.Page[domain.Order]{}, err
	}

	r.mu.RLock()
	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if page.Status != "" && order.Status != page.Status {
			continue
		}
		result = append(result, order)
	}
	r.mu.RUnlock()

	less := orderLess(page.Sort)
	sort.Slice(result, func(i, j int) bool {
		if page.Desc {
			return less(result[j], result[i])
		}
		return less(result[i], result[j])
	})

	total := int64(len(result))
	start := page.Offset()
	if start < 0 || start > len(result) {
		start = len(result)
	}
	end := start + page.Size
	if end < start || end > len(result) {
		end = len(result)
	}

	return domain.NewPage(result[start:end], page, total), nil
}

// CountByStatus считает заказы в каждом статусе.
func (r *orderRepositoryInMemory) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.OrderStatus]int64)
	for _, order := range r.items {
		counts[order.Status]++
	}
	return counts, nil
}

// orderLess возвращает сравнение по полю сортировки; при равенстве порядок по ID.
func orderLess(field domain.SortField) func(a, b domain.Order) bool {
	var cmp func(a, b domain.Order) int
	switch field {
	case domain.SortByCreatedAt:
		cmp = func(a, b domain.Order) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case domain.SortByOrderNumber:
		cmp = func(a, b domain.Order) int { return strings.Compare(a.OrderNumber, b.OrderNumber) }
	case domain.SortByTotalValue:
		cmp = func(a, b domain.Order) int { return a.TotalValue.Cmp(b.TotalValue) }
	case domain.SortByStatus:
		cmp = func(a, b domain.Order) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		cmp = func(a, b domain.Order) int { return 0 }
	}

	return func(a, b domain.Order) bool {
		if c := cmp(a, b); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	}
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
