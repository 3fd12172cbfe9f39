package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// FindByID возвращает заказ по идентификатору или ErrOrderNotFound.
	FindByID(ctx context.Context, id int64) (Order, error)
	// FindByOrderNumber возвращает заказ по бизнес-номеру или ErrOrderNotFound.
	FindByOrderNumber(ctx context.Context, orderNumber string) (Order, error)
	// Save вставляет заказ (ID == 0, хранилище назначает ID) или обновляет его статус.
	// Вставка атомарно проверяет уникальность номера и возвращает ErrOrderNumberConflict.
	Save(ctx context.Context, order Order) (Order, error)
	// Delete удаляет заказ. Возвращает ErrOrderNotFound, если его уже нет.
	Delete(ctx context.Context, order Order) error
	// FindAll возвращает страницу заказов.
	FindAll(ctx context.Context, page PageRequest) (Page[Order], error)
	// CountByStatus возвращает количество заказов в каждом статусе.
	CountByStatus(ctx context.Context) (map[OrderStatus]int64, error)
}

// OrderCache — вспомогательное хранилище read view по id заказа.
// Записи не истекают: инвалидация выполняется явно при изменениях.
type OrderCache interface {
	Get(ctx context.Context, id int64) (OrderView, bool, error)
	Put(ctx context.Context, view OrderView) error
	Evict(ctx context.Context, id int64) error
	EvictAll(ctx context.Context) error
}
