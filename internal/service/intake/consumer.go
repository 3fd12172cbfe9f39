// Package intake принимает заказы из очереди: проверяет сообщение, создаёт
// заказ и решает, что делать с неудачей (повторить или отбросить в DLQ).
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Creator создаёт заказ. Реализуется lifecycle.Service.
type Creator interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.OrderView, error)
}

// Outcome — итог обработки одного сообщения.
type Outcome string

const (
	// OutcomeAccepted — заказ создан, сообщение подтверждается.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected — терминальная ошибка, сообщение не возвращается в очередь.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRetry — временная ошибка, сообщение можно обработать повторно.
	OutcomeRetry Outcome = "retry"
)

// Policy определяет, какие ошибки считаются временными.
type Policy string

const (
	// PolicyRetryTransient повторяет только внутренние ошибки. Используется по умолчанию.
	PolicyRetryTransient Policy = "retry-transient"
	// PolicyDiscardAll отбрасывает сообщение при любой ошибке.
	PolicyDiscardAll Policy = "discard-all"
)

// ParsePolicy разбирает значение конфигурации. Пустая строка даёт политику по умолчанию.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyRetryTransient:
		return PolicyRetryTransient, nil
	case PolicyDiscardAll:
		return PolicyDiscardAll, nil
	default:
		return "", fmt.Errorf("unknown intake policy %q", raw)
	}
}

// Result описывает итог HandleIncoming.
type Result struct {
	Outcome Outcome
	Err     error
	OrderID int64
}

// Consumer обрабатывает входящие запросы на создание заказа.
type Consumer struct {
	creator Creator
	policy  Policy
	logger  *log.Entry
}

// NewConsumer создаёт обработчик с указанной политикой.
func NewConsumer(creator Creator, policy Policy, logger *log.Entry) *Consumer {
	if policy == "" {
		policy = PolicyRetryTransient
	}
	if logger == nil {
		logger = log.WithField("component", "intake")
	}
	return &Consumer{creator: creator, policy: policy, logger: logger}
}

// Policy возвращает текущую политику.
func (c *Consumer) Policy() Policy {
	return c.policy
}

// HandleIncoming проверяет запрос тем же валидатором, что и CreateOrder, и создаёт заказ.
// Некорректное сообщение отклоняется сразу и в сервис не попадает.
func (c *Consumer) HandleIncoming(ctx context.Context, req domain.CreateOrderRequest) Result {
	fields := log.Fields{"order_number": req.OrderNumber}

	if errs := req.Validate(); len(errs) > 0 {
		err := domain.NewValidationError("intake", errs...)
		c.logger.WithError(err).WithFields(fields).Warn("intake message rejected: invalid payload")
		return Result{Outcome: OutcomeRejected, Err: err}
	}

	view, err := c.creator.CreateOrder(ctx, req)
	if err != nil {
		outcome := c.classify(err)
		entry := c.logger.WithError(err).WithFields(fields).WithField("outcome", outcome)
		if outcome == OutcomeRetry {
			entry.Warn("intake message failed with transient error")
		} else {
			entry.Error("intake message rejected")
		}
		return Result{Outcome: outcome, Err: err}
	}

	c.logger.WithFields(fields).WithField("order_id", view.ID).Info("intake order accepted")
	return Result{Outcome: OutcomeAccepted, OrderID: view.ID}
}

func (c *Consumer) classify(err error) Outcome {
	if c.policy == PolicyRetryTransient && domain.IsRetryable(err) {
		return OutcomeRetry
	}
	return OutcomeRejected
}

// ErrMalformedMessage возвращается, если тело сообщения не разбирается как JSON запроса.
var ErrMalformedMessage = errors.New("malformed intake message")

// DecodeRequest разбирает JSON {"orderNumber","productName","quantity","unitPrice"}.
// Ошибка разбора считается ошибкой валидации.
func DecodeRequest(raw []byte) (domain.CreateOrderRequest, error) {
	var req domain.CreateOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.CreateOrderRequest{}, domain.NewValidationError("intake", fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}
	return req, nil
}
