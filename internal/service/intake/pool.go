package intake

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

const (
	defaultPoolWorkers   = 3
	defaultPoolQueueSize = 100
)

// ErrPoolStopped возвращается Enqueue после Stop.
var ErrPoolStopped = errors.New("intake pool is stopped")

// Enqueuer принимает заявку для асинхронной обработки.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.CreateOrderRequest) error
}

// Pool — внутрипроцессная асинхронная очередь приёма с фиксированным числом воркеров.
// Порядок обработки между воркерами не гарантируется.
type Pool struct {
	deliverer *Deliverer
	logger    *log.Entry
	metrics   *metrics.OrderMetrics

	queue  chan domain.CreateOrderRequest
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// NewPool запускает workers воркеров с очередью queueSize.
func NewPool(deliverer *Deliverer, workers, queueSize int, m *metrics.OrderMetrics, logger *log.Entry) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultPoolQueueSize
	}
	if logger == nil {
		logger = log.WithField("component", "intake-pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		deliverer: deliverer,
		logger:    logger,
		metrics:   m,
		queue:     make(chan domain.CreateOrderRequest, queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	logger.WithFields(log.Fields{"workers": workers, "queue_size": queueSize}).Info("intake pool started")
	return p
}

// Enqueue ставит запрос в очередь. Блокируется, пока есть место, или до отмены ctx.
func (p *Pool) Enqueue(ctx context.Context, req domain.CreateOrderRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- req:
		p.metrics.SetIntakeQueueDepth(len(p.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop закрывает очередь и ждёт, пока воркеры обработают оставшиеся запросы.
// Если ctx истекает раньше, текущие доставки прерываются.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("intake pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for req := range p.queue {
		p.metrics.SetIntakeQueueDepth(len(p.queue))
		if _, err := p.deliverer.Deliver(p.ctx, req); err != nil {
			p.logger.WithError(err).WithFields(log.Fields{
				"worker":       id,
				"order_number": req.OrderNumber,
			}).Error("intake request was not settled")
		}
	}
}

var _ Enqueuer = (*Pool)(nil)
