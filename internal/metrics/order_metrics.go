package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Значения label result.
const (
	ResultSuccess    = "success"
	ResultValidation = "validation"
	ResultDuplicate  = "duplicate"
	ResultNotFound   = "not_found"
	ResultInternal   = "internal"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// OrderMetrics содержит метрики сервиса заказов.
// Методы безопасны для nil-получателя: сервис может работать без метрик.
type OrderMetrics struct {
	// Операции сервиса
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Кэш
	cacheRequests *prometheus.CounterVec

	// Приём заказов из очереди
	intakeMessages *prometheus.CounterVec
	deadLetters    prometheus.Counter
	intakeQueue    prometheus.Gauge

	// Снимок количества заказов по статусам
	ordersByStatus *prometheus.GaugeVec
}

// NewOrderMetrics создаёт метрики в реестре по умолчанию.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре. Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_service_operations_total",
			Help: "Total number of order service operations by result",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_service_operation_duration_seconds",
			Help:    "Duration of order service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		cacheRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_cache_requests_total",
			Help: "Total number of order cache lookups by result",
		}, []string{"result"}),
		intakeMessages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_intake_messages_total",
			Help: "Total number of intake messages by outcome",
		}, []string{"outcome"}),
		deadLetters: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_intake_dead_letters_total",
			Help: "Total number of intake messages sent to the dead letter sink",
		}),
		intakeQueue: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orders_intake_queue_depth",
			Help: "Number of intake requests waiting in the in-process queue",
		}),
		ordersByStatus: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "orders_by_status",
			Help: "Number of stored orders per status",
		}, []string{"status"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// ResultOf переводит ошибку сервиса в значение label result.
func ResultOf(err error) string {
	switch domain.KindOf(err) {
	case nil:
		return ResultSuccess
	case domain.ErrValidation:
		return ResultValidation
	case domain.ErrDuplicateOrder:
		return ResultDuplicate
	case domain.ErrNotFound:
		return ResultNotFound
	default:
		return ResultInternal
	}
}

// RecordOperation фиксирует результат и длительность операции сервиса.
func (m *OrderMetrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, ResultOf(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCache фиксирует результат обращения к кэшу (hit, miss, error).
func (m *OrderMetrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// RecordIntake фиксирует итог обработки входящего сообщения.
func (m *OrderMetrics) RecordIntake(outcome string) {
	if m == nil {
		return
	}
	m.intakeMessages.WithLabelValues(outcome).Inc()
}

// RecordDeadLetter увеличивает счётчик сообщений, отправленных в DLQ.
func (m *OrderMetrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

// SetIntakeQueueDepth выставляет текущую глубину очереди приёма.
func (m *OrderMetrics) SetIntakeQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.intakeQueue.Set(float64(depth))
}

// SetOrdersByStatus обновляет снимок по статусам. Отсутствующие статусы выставляются в ноль.
func (m *OrderMetrics) SetOrdersByStatus(counts map[domain.OrderStatus]int64) {
	if m == nil {
		return
	}
	for _, status := range domain.OrderStatuses() {
		m.ordersByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
