package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"restoflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

type fakeConfigs struct {
	configs map[int64]Config
	err     error
}

func (f *fakeConfigs) GetThrottleConfig(ctx context.Context, tenantID int64) (Config, error) {
	if f.err != nil {
		return Config{}, f.err
	}
	return f.configs[tenantID], nil
}

type fakeOrder struct {
	tenantID  int64
	createdAt time.Time
	status    string
}

type fakeOrders struct {
	orders []fakeOrder
}

func (f *fakeOrders) CountOrders(ctx context.Context, tenantID int64, from, to time.Time, excludeStatuses []string) (int, error) {
	excluded := map[string]bool{}
	for _, s := range excludeStatuses {
		excluded[s] = true
	}

	count := 0
	for _, o := range f.orders {
		if o.tenantID != tenantID || excluded[o.status] {
			continue
		}
		if !o.createdAt.Before(from) && o.createdAt.Before(to) {
			count++
		}
	}
	return count, nil
}

// windowBase is aligned to any whole-minute window size
var windowBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestThrottle(cfg Config, orders *fakeOrders, now time.Time) *Throttle {
	th := New(&fakeConfigs{configs: map[int64]Config{1: cfg}}, orders)
	th.now = func() time.Time { return now }
	return th
}

func TestThrottleDisabledWhenConfigAbsent(t *testing.T) {
	orders := &fakeOrders{}
	for i := 0; i < 100; i++ {
		orders.orders = append(orders.orders, fakeOrder{tenantID: 1, createdAt: windowBase, status: models.OrderStatusPending})
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"both nil", Config{}},
		{"max only", Config{MaxOrdersPerWindow: intPtr(5)}},
		{"window only", Config{WindowMinutes: intPtr(15)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestThrottle(tt.cfg, orders, windowBase.Add(time.Minute))

			decision, err := th.CheckAdmission(context.Background(), 1)
			require.NoError(t, err)
			assert.True(t, decision.Allowed)
			assert.True(t, decision.WindowStart.IsZero(), "no window computed when disabled")
		})
	}
}

func TestThrottleDeniesAtCapacity(t *testing.T) {
	cfg := Config{MaxOrdersPerWindow: intPtr(5), WindowMinutes: intPtr(15)}

	orders := &fakeOrders{}
	for i := 0; i < 5; i++ {
		orders.orders = append(orders.orders, fakeOrder{
			tenantID:  1,
			createdAt: windowBase.Add(time.Duration(i) * time.Minute),
			status:    models.OrderStatusPending,
		})
	}

	th := newTestThrottle(cfg, orders, windowBase.Add(6*time.Minute))

	decision, err := th.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5, decision.CurrentCount)
	assert.Equal(t, 5, decision.MaxOrders)

	// A sixth cancelled order frees no capacity it never held
	orders.orders = append(orders.orders, fakeOrder{
		tenantID:  1,
		createdAt: windowBase.Add(6 * time.Minute),
		status:    models.OrderStatusCancelled,
	})

	decision, err = th.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5, decision.CurrentCount, "cancelled orders must not count against capacity")
}

func TestCancellingFreesCapacity(t *testing.T) {
	cfg := Config{MaxOrdersPerWindow: intPtr(2), WindowMinutes: intPtr(10)}

	orders := &fakeOrders{orders: []fakeOrder{
		{tenantID: 1, createdAt: windowBase.Add(1 * time.Minute), status: models.OrderStatusPending},
		{tenantID: 1, createdAt: windowBase.Add(2 * time.Minute), status: models.OrderStatusPending},
	}}

	now := windowBase.Add(3 * time.Minute)
	th := newTestThrottle(cfg, orders, now)

	decision, err := th.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 2, decision.CurrentCount)
	assert.Equal(t, 420, decision.RetryAfterSeconds, "7 minutes to window end")

	// Cancel the second order and recheck immediately
	orders.orders[1].status = models.OrderStatusCancelled

	decision, err = th.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.CurrentCount)
}

func TestWindowAlignment(t *testing.T) {
	cfg := Config{MaxOrdersPerWindow: intPtr(5), WindowMinutes: intPtr(15)}
	orders := &fakeOrders{orders: []fakeOrder{
		{tenantID: 1, createdAt: windowBase.Add(time.Minute), status: models.OrderStatusPending},
	}}

	// Two checks inside the same aligned window report the same bounds
	first := newTestThrottle(cfg, orders, windowBase.Add(2*time.Minute))
	second := newTestThrottle(cfg, orders, windowBase.Add(14*time.Minute))

	d1, err := first.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	d2, err := second.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, d1.WindowStart, d2.WindowStart)
	assert.Equal(t, d1.WindowEnd, d2.WindowEnd)
	assert.Equal(t, windowBase, d1.WindowStart)
	assert.Equal(t, windowBase.Add(15*time.Minute), d1.WindowEnd)
	assert.Equal(t, 1, d1.CurrentCount)

	// A check in the next window counts only that window's orders
	third := newTestThrottle(cfg, orders, windowBase.Add(16*time.Minute))
	d3, err := third.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, windowBase.Add(15*time.Minute), d3.WindowStart)
	assert.Equal(t, 0, d3.CurrentCount)
	assert.True(t, d3.Allowed)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	cfg := Config{MaxOrdersPerWindow: intPtr(1), WindowMinutes: intPtr(10)}
	orders := &fakeOrders{orders: []fakeOrder{
		{tenantID: 1, createdAt: windowBase, status: models.OrderStatusPending},
	}}

	now := windowBase.Add(9*time.Minute + 59*time.Second + 500*time.Millisecond)
	th := newTestThrottle(cfg, orders, now)

	decision, err := th.CheckAdmission(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 1, decision.RetryAfterSeconds)
}

func TestConfigErrorPropagates(t *testing.T) {
	th := New(&fakeConfigs{err: errors.New("tenant lookup failed")}, &fakeOrders{})

	_, err := th.CheckAdmission(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "tenant lookup failed")
}

func TestDescribeAvailability(t *testing.T) {
	cfg := Config{MaxOrdersPerWindow: intPtr(5), WindowMinutes: intPtr(15)}

	t.Run("plenty of capacity", func(t *testing.T) {
		orders := &fakeOrders{orders: []fakeOrder{
			{tenantID: 1, createdAt: windowBase, status: models.OrderStatusPending},
		}}
		th := newTestThrottle(cfg, orders, windowBase.Add(time.Minute))

		avail, err := th.DescribeAvailability(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, avail.Accepting)
		assert.Equal(t, 4, avail.SpotsRemaining)
		assert.Empty(t, avail.Message)
	})

	t.Run("low capacity warns", func(t *testing.T) {
		orders := &fakeOrders{}
		for i := 0; i < 3; i++ {
			orders.orders = append(orders.orders, fakeOrder{tenantID: 1, createdAt: windowBase, status: models.OrderStatusPending})
		}
		th := newTestThrottle(cfg, orders, windowBase.Add(time.Minute))

		avail, err := th.DescribeAvailability(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, avail.Accepting)
		assert.Equal(t, 2, avail.SpotsRemaining)
		assert.Contains(t, avail.Message, "2 order slots left")
	})

	t.Run("at capacity", func(t *testing.T) {
		orders := &fakeOrders{}
		for i := 0; i < 5; i++ {
			orders.orders = append(orders.orders, fakeOrder{tenantID: 1, createdAt: windowBase, status: models.OrderStatusPending})
		}
		th := newTestThrottle(cfg, orders, windowBase.Add(time.Minute))

		avail, err := th.DescribeAvailability(context.Background(), 1)
		require.NoError(t, err)
		assert.False(t, avail.Accepting)
		assert.Equal(t, 0, avail.SpotsRemaining)
		assert.Contains(t, avail.Message, "at capacity")
	})

	t.Run("throttling disabled", func(t *testing.T) {
		th := newTestThrottle(Config{}, &fakeOrders{}, windowBase)

		avail, err := th.DescribeAvailability(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, avail.Accepting)
		assert.True(t, avail.Unlimited)
	})
}

func TestWaitMessagePhrasing(t *testing.T) {
	d := Decision{RetryAfterSeconds: 420}
	assert.Contains(t, d.WaitMessage(), "7 minutes")

	d = Decision{RetryAfterSeconds: 30}
	assert.Contains(t, d.WaitMessage(), "in a minute")
}
