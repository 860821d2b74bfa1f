package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"restoflow/internal/models"
	"restoflow/internal/util"

	"go.uber.org/zap"
)

// Config is a tenant's throttle configuration. If either field is nil,
// throttling is disabled for that tenant.
type Config struct {
	MaxOrdersPerWindow *int
	WindowMinutes      *int
}

// ConfigSource reads tenant throttle configuration. It is consulted fresh
// on every admission check so operators can change capacity live.
type ConfigSource interface {
	GetThrottleConfig(ctx context.Context, tenantID int64) (Config, error)
}

// OrderCounter counts a tenant's orders created within [from, to),
// excluding the given statuses.
type OrderCounter interface {
	CountOrders(ctx context.Context, tenantID int64, from, to time.Time, excludeStatuses []string) (int, error)
}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed           bool      `json:"allowed"`
	CurrentCount      int       `json:"current_count"`
	MaxOrders         int       `json:"max_orders"`
	WindowStart       time.Time `json:"window_start,omitempty"`
	WindowEnd         time.Time `json:"window_end,omitempty"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// WaitMessage returns a customer-facing phrasing of the retry hint
func (d Decision) WaitMessage() string {
	minutes := (d.RetryAfterSeconds + 59) / 60
	if minutes <= 1 {
		return "We're at capacity right now. Please try again in a minute."
	}
	return fmt.Sprintf("We're at capacity right now. Please try again in about %d minutes.", minutes)
}

// Availability is a read-friendly projection of the admission check for
// UI display.
type Availability struct {
	Accepting      bool      `json:"accepting"`
	Unlimited      bool      `json:"unlimited,omitempty"`
	SpotsRemaining int       `json:"spots_remaining"`
	WindowEnds     time.Time `json:"window_ends,omitempty"`
	Message        string    `json:"message,omitempty"`
}

const lowSpotsThreshold = 3

// Throttle caps new-order intake per tenant within fixed, aligned time
// windows. Windows are aligned to floor(now/window), not sliding: a burst
// straddling a window boundary can exceed the cap by up to 2x, an accepted
// tradeoff for query simplicity.
//
// The check is read-only and reserves nothing, so concurrent requests can
// jointly overshoot the cap by the number of racing requests. This is a
// courtesy throttle, not a hard capacity guarantee.
type Throttle struct {
	configs ConfigSource
	orders  OrderCounter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an order throttle
func New(configs ConfigSource, orders OrderCounter) *Throttle {
	return &Throttle{
		configs: configs,
		orders:  orders,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// CheckAdmission decides whether the tenant may accept another order in
// the current window. The count is always recomputed from the order table;
// cancelled orders do not count against capacity.
func (t *Throttle) CheckAdmission(ctx context.Context, tenantID int64) (Decision, error) {
	cfg, err := t.configs.GetThrottleConfig(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read throttle config for tenant %d: %w", tenantID, err)
	}

	if cfg.MaxOrdersPerWindow == nil || cfg.WindowMinutes == nil {
		return Decision{Allowed: true}, nil
	}

	maxOrders := *cfg.MaxOrdersPerWindow
	windowStart, windowEnd := t.windowBounds(*cfg.WindowMinutes)

	count, err := t.orders.CountOrders(ctx, tenantID, windowStart, windowEnd,
		[]string{models.OrderStatusCancelled})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count orders for tenant %d: %w", tenantID, err)
	}

	decision := Decision{
		Allowed:      count < maxOrders,
		CurrentCount: count,
		MaxOrders:    maxOrders,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
	}

	if !decision.Allowed {
		remaining := windowEnd.Sub(t.now())
		decision.RetryAfterSeconds = int((remaining + time.Second - 1) / time.Second)

		util.OrdersThrottledTotal.WithLabelValues(strconv.FormatInt(tenantID, 10)).Inc()
		t.logger.Info("Order rejected by throttle",
			zap.Int64("tenant_id", tenantID),
			zap.Int("current_count", count),
			zap.Int("max_orders", maxOrders),
			zap.Time("window_end", windowEnd),
			zap.Int("retry_after_seconds", decision.RetryAfterSeconds))
	}

	return decision, nil
}

// DescribeAvailability projects the admission check for display, with a
// low-capacity warning when few spots remain.
func (t *Throttle) DescribeAvailability(ctx context.Context, tenantID int64) (Availability, error) {
	decision, err := t.CheckAdmission(ctx, tenantID)
	if err != nil {
		return Availability{}, err
	}

	if decision.MaxOrders == 0 {
		return Availability{Accepting: true, Unlimited: true}, nil
	}

	avail := Availability{
		Accepting:      decision.Allowed,
		SpotsRemaining: decision.MaxOrders - decision.CurrentCount,
		WindowEnds:     decision.WindowEnd,
	}
	if avail.SpotsRemaining < 0 {
		avail.SpotsRemaining = 0
	}

	switch {
	case !avail.Accepting:
		avail.Message = decision.WaitMessage()
	case avail.SpotsRemaining <= lowSpotsThreshold:
		avail.Message = fmt.Sprintf("Hurry! Only %d order slots left in this window.", avail.SpotsRemaining)
	}

	return avail, nil
}

// windowBounds floors the current time to the nearest multiple of the
// window size.
func (t *Throttle) windowBounds(windowMinutes int) (time.Time, time.Time) {
	window := time.Duration(windowMinutes) * time.Minute
	nowMs := t.now().UnixMilli()
	startMs := nowMs - nowMs%window.Milliseconds()
	start := time.UnixMilli(startMs).UTC()
	return start, start.Add(window)
}
