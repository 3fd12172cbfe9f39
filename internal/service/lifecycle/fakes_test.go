package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vladislavdragonenkov/orders/internal/cache"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
)

var errStoreDown = errors.New("connection refused")

// countingRepo считает обращения к хранилищу и умеет возвращать ошибку.
type countingRepo struct {
	domain.OrderRepository

	finds   atomic.Int64
	lists   atomic.Int64
	failAll atomic.Bool
}

func newCountingRepo() *countingRepo {
	return &countingRepo{OrderRepository: memory.NewOrderRepository()}
}

func (r *countingRepo) FindByID(ctx context.Context, id int64) (domain.Order, error) {
	r.finds.Add(1)
	if r.failAll.Load() {
		return domain.Order{}, errStoreDown
	}
	return r.OrderRepository.FindByID(ctx, id)
}

func (r *countingRepo) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r.failAll.Load() {
		return domain.Order{}, errStoreDown
	}
	return r.OrderRepository.Save(ctx, order)
}

func (r *countingRepo) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	r.lists.Add(1)
	if r.failAll.Load() {
		return domain.Page[domain.Order]{}, errStoreDown
	}
	return r.OrderRepository.FindAll(ctx, page)
}

// spyCache оборачивает cache.Memory и позволяет сломать отдельные операции.
type spyCache struct {
	*cache.Memory

	mu        sync.Mutex
	gets      int
	puts      int
	evicted   []int64
	failGet   bool
	failPut   bool
	failEvict bool
}

func newSpyCache() *spyCache {
	return &spyCache{Memory: cache.NewMemory()}
}

var errCacheDown = errors.New("cache unavailable")

func (c *spyCache) Get(ctx context.Context, id int64) (domain.OrderView, bool, error) {
	c.mu.Lock()
	c.gets++
	fail := c.failGet
	c.mu.Unlock()
	if fail {
		return domain.OrderView{}, false, errCacheDown
	}
	return c.Memory.Get(ctx, id)
}

func (c *spyCache) Put(ctx context.Context, view domain.OrderView) error {
	c.mu.Lock()
	c.puts++
	fail := c.failPut
	c.mu.Unlock()
	if fail {
		return errCacheDown
	}
	return c.Memory.Put(ctx, view)
}

func (c *spyCache) Evict(ctx context.Context, id int64) error {
	c.mu.Lock()
	c.evicted = append(c.evicted, id)
	fail := c.failEvict
	c.mu.Unlock()
	if fail {
		return errCacheDown
	}
	return c.Memory.Evict(ctx, id)
}

func (c *spyCache) counts() (gets, puts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets, c.puts
}

func (c *spyCache) evictions() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.evicted...)
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
