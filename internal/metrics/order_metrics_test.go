package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func TestNewOrderMetrics(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewOrderMetricsWithRegisterer should not return nil")
	}
	if metrics.operations == nil || metrics.operationDuration == nil {
		t.Error("operation collectors should not be nil")
	}
	if metrics.cacheRequests == nil {
		t.Error("cacheRequests counter vec should not be nil")
	}
	if metrics.intakeMessages == nil || metrics.deadLetters == nil || metrics.intakeQueue == nil {
		t.Error("intake collectors should not be nil")
	}
	if metrics.ordersByStatus == nil {
		t.Error("ordersByStatus gauge vec should not be nil")
	}
}

func TestNewOrderMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordCache(CacheHit)
	second.RecordCache(CacheHit)

	if got := testutil.ToFloat64(first.cacheRequests.WithLabelValues(CacheHit)); got != 2 {
		t.Fatalf("expected shared collector with value 2, got %f", got)
	}
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: ResultSuccess},
		{name: "validation", err: domain.NewValidationError("op", domain.ErrQuantityInvalid), want: ResultValidation},
		{name: "duplicate", err: domain.NewDuplicateOrderError("op", "ORD-1", nil), want: ResultDuplicate},
		{name: "not found", err: domain.NewNotFoundError("op", 1), want: ResultNotFound},
		{name: "internal", err: domain.NewInternalError("op", "boom", nil), want: ResultInternal},
		{name: "untyped", err: errors.New("boom"), want: ResultInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResultOf(tc.err); got != tc.want {
				t.Fatalf("ResultOf() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRecordOperation(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOperation("create", nil, 10*time.Millisecond)
	metrics.RecordOperation("create", domain.NewDuplicateOrderError("create", "ORD-1", nil), time.Millisecond)

	if got := testutil.ToFloat64(metrics.operations.WithLabelValues("create", ResultSuccess)); got != 1 {
		t.Errorf("expected 1 success, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.operations.WithLabelValues("create", ResultDuplicate)); got != 1 {
		t.Errorf("expected 1 duplicate, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.operationDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestIntakeMetrics(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordIntake("accepted")
	metrics.RecordIntake("rejected")
	metrics.RecordIntake("rejected")
	metrics.RecordDeadLetter()
	metrics.SetIntakeQueueDepth(4)

	if got := testutil.ToFloat64(metrics.intakeMessages.WithLabelValues("rejected")); got != 2 {
		t.Errorf("expected 2 rejected, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.deadLetters); got != 1 {
		t.Errorf("expected 1 dead letter, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.intakeQueue); got != 4 {
		t.Errorf("expected queue depth 4, got %f", got)
	}
}

func TestSetOrdersByStatus(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.SetOrdersByStatus(map[domain.OrderStatus]int64{domain.OrderStatusShipped: 3})
	metrics.SetOrdersByStatus(map[domain.OrderStatus]int64{domain.OrderStatusReceived: 1})

	if got := testutil.ToFloat64(metrics.ordersByStatus.WithLabelValues("SHIPPED")); got != 0 {
		t.Errorf("expected SHIPPED reset to 0, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ordersByStatus.WithLabelValues("RECEIVED")); got != 1 {
		t.Errorf("expected RECEIVED 1, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.ordersByStatus); got != len(domain.OrderStatuses()) {
		t.Errorf("expected a series per status, got %d", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *OrderMetrics

	metrics.RecordOperation("get", nil, time.Millisecond)
	metrics.RecordCache(CacheMiss)
	metrics.RecordIntake("accepted")
	metrics.RecordDeadLetter()
	metrics.SetIntakeQueueDepth(1)
	metrics.SetOrdersByStatus(nil)
}
