package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*Service, *countingRepo, *spyCache) {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	repo := newCountingRepo()
	spy := newSpyCache()
	base := []Option{
		WithLogger(logger.WithField("component", "lifecycle-test")),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(repo, spy, append(base, opts...)...), repo, spy
}

func createRequest(number string) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		OrderNumber: number,
		ProductName: "Laptop",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("2500.00"),
	}
}

func TestCreateOrder_ComputesTotalAndInitialStatus(t *testing.T) {
	svc, _, spy := newTestService(t)

	view, err := svc.CreateOrder(context.Background(), createRequest("ORD-1001"))
	require.NoError(t, err)

	assert.NotZero(t, view.ID)
	assert.Equal(t, "ORD-1001", view.OrderNumber)
	assert.Equal(t, domain.OrderStatusReceived, view.Status)
	assert.True(t, view.TotalValue.Equal(decimal.RequireFromString("5000.00")), "total %s", view.TotalValue)
	assert.True(t, view.CreatedAt.Equal(fixedNow))

	_, puts := spy.counts()
	assert.Zero(t, puts, "create must not populate the cache")
}

func TestCreateOrder_ExactDecimalTotal(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest("ORD-DEC")
	req.Quantity = 3
	req.UnitPrice = decimal.RequireFromString("0.10")

	view, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0.3", view.TotalValue.String())
}

func TestCreateOrder_ValidationBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.CreateOrderRequest)
		wantErr bool
		cause   error
	}{
		{name: "quantity one accepted", mutate: func(r *domain.CreateOrderRequest) { r.Quantity = 1 }},
		{name: "smallest price accepted", mutate: func(r *domain.CreateOrderRequest) { r.UnitPrice = decimal.RequireFromString("0.01") }},
		{name: "quantity zero rejected", mutate: func(r *domain.CreateOrderRequest) { r.Quantity = 0 }, wantErr: true, cause: domain.ErrQuantityInvalid},
		{name: "price zero rejected", mutate: func(r *domain.CreateOrderRequest) { r.UnitPrice = decimal.Zero }, wantErr: true, cause: domain.ErrUnitPriceInvalid},
		{name: "blank number rejected", mutate: func(r *domain.CreateOrderRequest) { r.OrderNumber = "  " }, wantErr: true, cause: domain.ErrOrderNumberRequired},
		{name: "blank product rejected", mutate: func(r *domain.CreateOrderRequest) { r.ProductName = "" }, wantErr: true, cause: domain.ErrProductNameRequired},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			req := createRequest(fmt.Sprintf("ORD-V-%d", i))
			tc.mutate(&req)

			_, err := svc.CreateOrder(context.Background(), req)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrValidation)
			require.ErrorIs(t, err, tc.cause)

			page, listErr := repo.OrderRepository.FindAll(context.Background(), domain.PageRequest{Size: 10, Sort: domain.SortByID})
			require.NoError(t, listErr)
			assert.Zero(t, page.TotalElements, "invalid request must not be persisted")
		})
	}
}

func TestCreateOrder_Duplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, createRequest("ORD-1001"))
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, createRequest("ORD-1001"))
	require.ErrorIs(t, err, domain.ErrDuplicateOrder)
	assert.Equal(t, "order already exists with number: ORD-1001", domain.PublicMessage(err))
	assert.False(t, domain.IsRetryable(err))
}

func TestCreateOrder_ConcurrentDuplicates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, createRequest("ORD-SAME"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrDuplicateOrder):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicates)

	page, err := repo.OrderRepository.FindAll(ctx, domain.PageRequest{Size: 100, Sort: domain.SortByID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalElements)
}

func TestCreateOrder_StoreFailureIsInternal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.failAll.Store(true)

	_, err := svc.CreateOrder(context.Background(), createRequest("ORD-1"))
	require.ErrorIs(t, err, domain.ErrInternal)
	require.ErrorIs(t, err, errStoreDown)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, "unexpected error occurred while processing the request", domain.PublicMessage(err))
}

func TestGetByID_CacheAside(t *testing.T) {
	svc, repo, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)

	first, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, repo.finds.Load(), "second read must be served from cache")
	_, puts := spy.counts()
	assert.Equal(t, 1, puts)
}

func TestGetByID_NotFound(t *testing.T) {
	svc, _, spy := newTestService(t)

	_, err := svc.GetByID(context.Background(), 9999)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "order not found with id: 9999", domain.PublicMessage(err))

	_, puts := spy.counts()
	assert.Zero(t, puts, "misses on absent orders are not cached")
}

func TestGetByID_CacheReadErrorFallsBackToStore(t *testing.T) {
	svc, repo, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)
	spy.failGet = true

	view, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.ID)
	assert.EqualValues(t, 1, repo.finds.Load())
}

func TestGetByID_CacheWriteErrorIgnored(t *testing.T) {
	svc, _, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)
	spy.failPut = true

	view, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderNumber, view.OrderNumber)
}

func TestUpdateStatus_EvictsOnlyThatOrder(t *testing.T) {
	svc, repo, spy := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateOrder(ctx, createRequest("ORD-A"))
	require.NoError(t, err)
	b, err := svc.CreateOrder(ctx, createRequest("ORD-B"))
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.GetByID(ctx, b.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, a.ID, "SHIPPED")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.Equal(t, []int64{a.ID}, spy.evictions())

	findsBefore := repo.finds.Load()
	got, err := svc.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status, "read after update must see the new status")
	assert.Equal(t, findsBefore+1, repo.finds.Load())

	_, err = svc.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, findsBefore+1, repo.finds.Load(), "unrelated entry must stay cached")
}

func TestUpdateStatus_AnyTransitionAllowed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)

	for _, status := range []string{"DELIVERED", "RECEIVED", "cancelled", "PROCESSED"} {
		view, err := svc.UpdateStatus(ctx, created.ID, status)
		require.NoError(t, err)
		parsed, _ := domain.ParseOrderStatus(status)
		assert.Equal(t, parsed, view.Status)
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, 42, "SHIPPED")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "order not found with id: 42", domain.PublicMessage(err))

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, created.ID, "TELEPORTED")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrStatusInvalid)

	repo.failAll.Store(true)
	_, err = svc.UpdateStatus(ctx, created.ID, "SHIPPED")
	require.ErrorIs(t, err, domain.ErrInternal)
}

func TestUpdateStatus_EvictionFailureIsInternal(t *testing.T) {
	svc, repo, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)
	_, err = svc.GetByID(ctx, created.ID)
	require.NoError(t, err)

	spy.failEvict = true
	_, err = svc.UpdateStatus(ctx, created.ID, "SHIPPED")
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.True(t, domain.IsRetryable(err))

	stored, err := repo.OrderRepository.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)

	// Повтор после восстановления кэша завершает инвалидацию.
	spy.failEvict = false
	_, err = svc.UpdateStatus(ctx, created.ID, "SHIPPED")
	require.NoError(t, err)
	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)
}

func TestListOrders_BypassesCache(t *testing.T) {
	svc, repo, spy := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.CreateOrder(ctx, createRequest(fmt.Sprintf("ORD-%d", i)))
		require.NoError(t, err)
	}

	page, err := svc.ListOrders(ctx, domain.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 5, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, "ORD-1", page.Items[0].OrderNumber)

	gets, puts := spy.counts()
	assert.Zero(t, gets)
	assert.Zero(t, puts)
	assert.EqualValues(t, 1, repo.lists.Load())
}

func TestListOrders_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.ListOrders(context.Background(), domain.PageRequest{Sort: "password"})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrSortInvalid)
	assert.Zero(t, repo.lists.Load())

	require.NotPanics(t, func() {
		_, err = svc.ListOrders(context.Background(), domain.PageRequest{Page: 1 << 61, Size: 5})
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrPageInvalid)
	assert.Zero(t, repo.lists.Load())
}

func TestGetByOrderNumber(t *testing.T) {
	svc, _, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-77"))
	require.NoError(t, err)

	view, err := svc.GetByOrderNumber(ctx, " ORD-77 ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.ID)

	_, err = svc.GetByOrderNumber(ctx, "ORD-404")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "order not found with number: ORD-404", domain.PublicMessage(err))

	_, err = svc.GetByOrderNumber(ctx, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	gets, _ := spy.counts()
	assert.Zero(t, gets)
}

func TestDeleteOrder(t *testing.T) {
	svc, _, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-DEL"))
	require.NoError(t, err)
	_, err = svc.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(ctx, created.ID))
	assert.Equal(t, []int64{created.ID}, spy.evictions())
	assert.Zero(t, spy.Len())

	_, err = svc.GetByID(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "deleted order must not be served from cache")

	err = svc.DeleteOrder(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOrder_EvictionFailure(t *testing.T) {
	svc, _, spy := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-DEL"))
	require.NoError(t, err)
	spy.failEvict = true

	err = svc.DeleteOrder(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrInternal)
}

func TestCancelledContextIsInternal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.ErrorIs(t, err, domain.ErrInternal)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewOrderMetricsWithRegisterer(reg)
	svc, _, _ := newTestService(t, WithMetrics(m))
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1"))
	require.NoError(t, err)
	_, _ = svc.CreateOrder(ctx, createRequest("ORD-1"))
	_, _ = svc.GetByID(ctx, created.ID)
	_, _ = svc.GetByID(ctx, created.ID)

	expected := `
# HELP orders_cache_requests_total Total number of order cache lookups by result
# TYPE orders_cache_requests_total counter
orders_cache_requests_total{result="hit"} 1
orders_cache_requests_total{result="miss"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, stringsReader(expected), "orders_cache_requests_total"))

	expectedOps := `
# HELP orders_service_operations_total Total number of order service operations by result
# TYPE orders_service_operations_total counter
orders_service_operations_total{operation="create",result="duplicate"} 1
orders_service_operations_total{operation="create",result="success"} 1
orders_service_operations_total{operation="get_by_id",result="success"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, stringsReader(expectedOps), "orders_service_operations_total"))
}

// Полный сценарий: создание, чтение, смена статуса, чтение, дубликат, отсутствующий заказ.
func TestLifecycleScenario(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, createRequest("ORD-1001"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReceived, created.Status)
	assert.Equal(t, "5000", created.TotalValue.String())

	fetched, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, fetched)

	_, err = svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.finds.Load())

	_, err = svc.UpdateStatus(ctx, created.ID, "SHIPPED")
	require.NoError(t, err)

	afterUpdate, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, afterUpdate.Status)

	_, err = svc.CreateOrder(ctx, createRequest("ORD-1001"))
	require.ErrorIs(t, err, domain.ErrDuplicateOrder)

	_, err = svc.GetByID(ctx, 9999)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
