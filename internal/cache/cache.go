// Package cache содержит реализации кэша read view заказов.
package cache

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Memory — кэш в памяти процесса. Записи живут до явной инвалидации.
type Memory struct {
	mu    sync.RWMutex
	items map[int64]domain.OrderView
}

// NewMemory создаёт пустой кэш в памяти.
func NewMemory() *Memory {
	return &Memory{items: make(map[int64]domain.OrderView)}
}

// Get возвращает view и признак попадания.
func (m *Memory) Get(ctx context.Context, id int64) (domain.OrderView, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderView{}, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	view, ok := m.items[id]
	return view, ok, nil
}

// Put сохраняет view по id заказа.
func (m *Memory) Put(ctx context.Context, view domain.OrderView) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.items[view.ID] = view
	m.mu.Unlock()
	return nil
}

// Evict удаляет запись. Отсутствие записи не ошибка.
func (m *Memory) Evict(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// EvictAll очищает кэш целиком.
func (m *Memory) EvictAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.items = make(map[int64]domain.OrderView)
	m.mu.Unlock()
	return nil
}

// Len возвращает число записей.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Noop — кэш, который ничего не хранит. Каждое чтение промах.
type Noop struct{}

func (Noop) Get(context.Context, int64) (domain.OrderView, bool, error) {
	return domain.OrderView{}, false, nil
}

func (Noop) Put(context.Context, domain.OrderView) error { return nil }

func (Noop) Evict(context.Context, int64) error { return nil }

func (Noop) EvictAll(context.Context) error { return nil }

var (
	_ domain.OrderCache = (*Memory)(nil)
	_ domain.OrderCache = Noop{}
)
