// Package lifecycle реализует жизненный цикл заказа: создание, смену статуса,
// чтение через кэш, постраничную выборку и удаление.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/cache"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// Имена операций для логов и метрик.
const (
	OpCreate        = "create"
	OpUpdateStatus  = "update_status"
	OpGetByID       = "get_by_id"
	OpGetByNumber   = "get_by_number"
	OpList          = "list"
	OpDelete        = "delete"
	internalMessage = "order storage failure"
)

// Service — сервис жизненного цикла заказов.
//
// Кэш хранит только read view по id: заполняется при чтении и инвалидируется
// при смене статуса и удалении. Источник истины всегда хранилище.
type Service struct {
	repo    domain.OrderRepository
	cache   domain.OrderCache
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики. Без них сервис работает молча.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New конструирует сервис. Nil-кэш заменяется на cache-less режим.
func New(repo domain.OrderRepository, orderCache domain.OrderCache, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		cache:  orderCache,
		logger: log.New().WithField("component", "lifecycle"),
		now:    time.Now,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder проверяет запрос и сохраняет новый заказ одной атомарной вставкой.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (view domain.OrderView, err error) {
	defer s.observe(OpCreate, time.Now(), &err)

	if errs := req.Validate(); len(errs) > 0 {
		return domain.OrderView{}, domain.NewValidationError(OpCreate, errs...)
	}

	saved, err := s.repo.Save(ctx, domain.NewOrder(req, s.now()))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNumberConflict) {
			return domain.OrderView{}, domain.NewDuplicateOrderError(OpCreate, strings.TrimSpace(req.OrderNumber), err)
		}
		return domain.OrderView{}, domain.NewInternalError(OpCreate, internalMessage, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     saved.ID,
		"order_number": saved.OrderNumber,
		"total_value":  saved.TotalValue.String(),
	}).Info("order created")

	return saved.View(), nil
}

// UpdateStatus меняет статус заказа и инвалидирует его запись в кэше до возврата.
// Ограничений на переходы между статусами нет.
func (s *Service) UpdateStatus(ctx context.Context, id int64, rawStatus string) (view domain.OrderView, err error) {
	defer s.observe(OpUpdateStatus, time.Now(), &err)

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.OrderView{}, domain.NewValidationError(OpUpdateStatus, err)
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.OrderView{}, classifyLookup(OpUpdateStatus, id, err)
	}

	previous := order.Status
	order.Status = status
	saved, err := s.repo.Save(ctx, order)
	if err != nil {
		return domain.OrderView{}, classifyLookup(OpUpdateStatus, id, err)
	}

	// Статус уже сохранён: при ошибке инвалидации повтор того же вызова безопасен.
	if err := s.cache.Evict(ctx, id); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("failed to evict order view after status update")
		return domain.OrderView{}, domain.NewInternalError(OpUpdateStatus, "evict cached order view", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":    id,
		"from_status": previous,
		"to_status":   saved.Status,
	}).Info("order status updated")

	return saved.View(), nil
}

// GetByID возвращает заказ, при попадании в кэш хранилище не читается.
func (s *Service) GetByID(ctx context.Context, id int64) (view domain.OrderView, err error) {
	defer s.observe(OpGetByID, time.Now(), &err)

	cached, ok, cacheErr := s.cache.Get(ctx, id)
	switch {
	case cacheErr != nil:
		s.metrics.RecordCache(metrics.CacheError)
		s.logger.WithError(cacheErr).WithField("order_id", id).Warn("order cache read failed, falling back to storage")
	case ok:
		s.metrics.RecordCache(metrics.CacheHit)
		return cached, nil
	default:
		s.metrics.RecordCache(metrics.CacheMiss)
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.OrderView{}, classifyLookup(OpGetByID, id, err)
	}

	view = order.View()
	if err := s.cache.Put(ctx, view); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Warn("failed to cache order view")
	}
	return view, nil
}

// GetByOrderNumber ищет заказ по бизнес-номеру. Кэш не используется.
func (s *Service) GetByOrderNumber(ctx context.Context, orderNumber string) (view domain.OrderView, err error) {
	defer s.observe(OpGetByNumber, time.Now(), &err)

	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.OrderView{}, domain.NewValidationError(OpGetByNumber, domain.ErrOrderNumberRequired)
	}

	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.OrderView{}, &domain.Error{
				Kind:    domain.ErrNotFound,
				Op:      OpGetByNumber,
				Message: "order not found with number: " + orderNumber,
				Err:     err,
			}
		}
		return domain.OrderView{}, domain.NewInternalError(OpGetByNumber, internalMessage, err)
	}
	return order.View(), nil
}

// ListOrders возвращает страницу заказов напрямую из хранилища.
func (s *Service) ListOrders(ctx context.Context, req domain.PageRequest) (page domain.Page[domain.OrderView], err error) {
	defer s.observe(OpList, time.Now(), &err)

	req, errs := req.Normalize()
	if len(errs) > 0 {
		return domain.Page[domain.OrderView]{}, domain.NewValidationError(OpList, errs...)
	}

	orders, err := s.repo.FindAll(ctx, req)
	if err != nil {
		return domain.Page[domain.OrderView]{}, domain.NewInternalError(OpList, internalMessage, err)
	}
	return domain.MapPage(orders, domain.Order.View), nil
}

// DeleteOrder удаляет заказ и его запись в кэше.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (err error) {
	defer s.observe(OpDelete, time.Now(), &err)

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return classifyLookup(OpDelete, id, err)
	}
	if err := s.repo.Delete(ctx, order); err != nil {
		return classifyLookup(OpDelete, id, err)
	}
	if err := s.cache.Evict(ctx, id); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("failed to evict order view after delete")
		return domain.NewInternalError(OpDelete, "evict cached order view", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     id,
		"order_number": order.OrderNumber,
	}).Info("order deleted")
	return nil
}

func (s *Service) observe(op string, started time.Time, errp *error) {
	err := *errp
	s.metrics.RecordOperation(op, err, time.Since(started))
	if err == nil {
		return
	}

	entry := s.logger.WithError(err).WithField("operation", op)
	if errors.Is(err, domain.ErrInternal) {
		entry.Error("order operation failed")
		return
	}
	entry.Debug("order operation rejected")
}

// classifyLookup переводит ошибку хранилища для операций по id.
func classifyLookup(op string, id int64, err error) error {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.NewNotFoundError(op, id)
	}
	return domain.NewInternalError(op, internalMessage, err)
}
