package intake

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

// DelivererOptions задаёт параметры доставки.
type DelivererOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OrderMetrics
	Sink           DeadLetterSink
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Deliverer.
type Option func(*DelivererOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *DelivererOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики приёма.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *DelivererOptions) {
		opts.Metrics = m
	}
}

// WithDeadLetterSink задаёт получателя отброшенных сообщений.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(opts *DelivererOptions) {
		opts.Sink = sink
	}
}

// WithMaxAttempts задаёт число попыток для временных ошибок.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *DelivererOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *DelivererOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Deliverer доводит сообщение до терминального состояния: заказ создан либо
// сообщение передано в DeadLetterSink. Повторы выполняются на месте.
type Deliverer struct {
	consumer       *Consumer
	sink           DeadLetterSink
	logger         *log.Entry
	metrics        *metrics.OrderMetrics
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewDeliverer создаёт Deliverer поверх Consumer.
func NewDeliverer(consumer *Consumer, options ...Option) *Deliverer {
	opts := DelivererOptions{
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "intake-deliverer")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Sink == nil {
		opts.Sink = NewMemorySink()
	}

	return &Deliverer{
		consumer:       consumer,
		sink:           opts.Sink,
		logger:         logger,
		metrics:        opts.Metrics,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		now:            time.Now,
	}
}

// DeliverRaw разбирает тело сообщения и доставляет его.
// Ошибка означает, что сообщение не доведено до терминального состояния и его нельзя подтверждать.
func (d *Deliverer) DeliverRaw(ctx context.Context, raw []byte) (Result, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		result := Result{Outcome: OutcomeRejected, Err: err}
		d.metrics.RecordIntake(string(OutcomeRejected))
		return result, d.deadLetter(ctx, req, raw, result, 1)
	}
	return d.deliver(ctx, req, raw)
}

// Deliver доставляет уже разобранный запрос.
func (d *Deliverer) Deliver(ctx context.Context, req domain.CreateOrderRequest) (Result, error) {
	return d.deliver(ctx, req, nil)
}

func (d *Deliverer) deliver(ctx context.Context, req domain.CreateOrderRequest, raw []byte) (Result, error) {
	var result Result

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result = d.consumer.HandleIncoming(ctx, req)
		d.metrics.RecordIntake(string(result.Outcome))

		switch result.Outcome {
		case OutcomeAccepted:
			return result, nil
		case OutcomeRejected:
			return result, d.deadLetter(ctx, req, raw, result, attempt)
		}

		if attempt >= d.maxAttempts {
			break
		}

		d.logger.WithError(result.Err).WithFields(log.Fields{
			"order_number": req.OrderNumber,
			"attempt":      attempt,
			"max_attempts": d.maxAttempts,
		}).Warn("intake message will be retried")

		if delay := d.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, fmt.Errorf("intake retry interrupted: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}

	return result, d.deadLetter(ctx, req, raw, result, d.maxAttempts)
}

func (d *Deliverer) deadLetter(ctx context.Context, req domain.CreateOrderRequest, raw []byte, result Result, attempts int) error {
	letter := DeadLetter{
		Request:  req,
		Raw:      raw,
		Kind:     metrics.ResultOf(result.Err),
		Attempts: attempts,
		FailedAt: d.now().UTC(),
	}
	if result.Err != nil {
		letter.Reason = result.Err.Error()
	}

	if err := d.sink.DeadLetter(ctx, letter); err != nil {
		d.logger.WithError(err).WithField("order_number", req.OrderNumber).Error("failed to dead-letter intake message")
		return fmt.Errorf("dead-letter intake message: %w", err)
	}

	d.metrics.RecordDeadLetter()
	d.logger.WithFields(log.Fields{
		"order_number": req.OrderNumber,
		"kind":         letter.Kind,
		"attempts":     attempts,
	}).Warn("intake message dead-lettered")
	return nil
}

func (d *Deliverer) retryBackoff(attempt int) time.Duration {
	if d.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return d.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := d.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
