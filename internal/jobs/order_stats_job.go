package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// DefaultStatsSchedule — каждые 30 секунд, формат cron с секундами.
const DefaultStatsSchedule = "*/30 * * * * *"

const statsTimeout = 10 * time.Second

// StatusCounter считает заказы по статусам.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error)
}

// OrderStatsJob периодически обновляет gauge orders_by_status.
type OrderStatsJob struct {
	counter  StatusCounter
	metrics  *metrics.OrderMetrics
	schedule string
	cron     *cron.Cron
	logger   *log.Entry

	mu      sync.Mutex
	started bool
}

// NewOrderStatsJob создаёт job. Пустое расписание заменяется на DefaultStatsSchedule.
func NewOrderStatsJob(counter StatusCounter, m *metrics.OrderMetrics, schedule string, logger *log.Entry) *OrderStatsJob {
	if schedule == "" {
		schedule = DefaultStatsSchedule
	}
	if logger == nil {
		logger = log.WithField("component", "order-stats-job")
	}
	return &OrderStatsJob{
		counter:  counter,
		metrics:  m,
		schedule: schedule,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
}

// RunOnce выполняет один пересчёт.
func (j *OrderStatsJob) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	counts, err := j.counter.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count orders by status: %w", err)
	}
	j.metrics.SetOrdersByStatus(counts)
	return nil
}

// Start регистрирует расписание и запускает планировщик.
func (j *OrderStatsJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return nil
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.logger.WithError(err).Warn("order stats refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.started = true
	j.logger.WithField("schedule", j.schedule).Info("order stats job started")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущего запуска.
func (j *OrderStatsJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.started {
		return
	}
	<-j.cron.Stop().Done()
	j.started = false
	j.logger.Info("order stats job stopped")
}
