package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusReceived — заказ принят и сохранён, начальное состояние.
	OrderStatusReceived OrderStatus = "RECEIVED"
	// OrderStatusProcessed — заказ обработан.
	OrderStatusProcessed OrderStatus = "PROCESSED"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ доставлен получателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var knownStatuses = []OrderStatus{
	OrderStatusReceived,
	OrderStatusProcessed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// OrderStatuses возвращает все поддерживаемые статусы в порядке объявления.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(knownStatuses))
	copy(out, knownStatuses)
	return out
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	for _, known := range knownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOrderStatus разбирает статус без учёта регистра и пробелов по краям.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrStatusInvalid
	}
	return status, nil
}

// Order — сохраняемая сущность заказа.
//
// ID, OrderNumber и CreatedAt не меняются после создания, TotalValue
// вычисляется один раз при создании. Меняться может только Status.
type Order struct {
	ID          int64
	OrderNumber string
	ProductName string
	Quantity    int
	TotalValue  decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
}

// CreateOrderRequest — входные данные для создания заказа (API и очередь).
type CreateOrderRequest struct {
	OrderNumber string          `json:"orderNumber"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Validate проверяет поля запроса и возвращает список замечаний.
func (r CreateOrderRequest) Validate() []error {
	var errs []error

	if strings.TrimSpace(r.OrderNumber) == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if strings.TrimSpace(r.ProductName) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if r.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if !r.UnitPrice.IsPositive() {
		errs = append(errs, ErrUnitPriceInvalid)
	}

	return errs
}

// NewOrder строит новый заказ из запроса: статус RECEIVED, сумма = цена * количество.
// Запрос должен быть предварительно проверен через Validate.
func NewOrder(req CreateOrderRequest, now time.Time) Order {
	return Order{
		OrderNumber: strings.TrimSpace(req.OrderNumber),
		ProductName: strings.TrimSpace(req.ProductName),
		Quantity:    req.Quantity,
		TotalValue:  req.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Status:      OrderStatusReceived,
		CreatedAt:   now.UTC(),
	}
}

// OrderView — проекция заказа для ответа клиентам и для кэша.
// Не является источником истины.
type OrderView struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// View строит read view заказа.
func (o Order) View() OrderView {
	return OrderView{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		ProductName: o.ProductName,
		Quantity:    o.Quantity,
		TotalValue:  o.TotalValue,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
}
