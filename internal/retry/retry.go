package retry

import (
	"context"
	"time"

	"restoflow/internal/util"

	"go.uber.org/zap"
)

// Default backoff parameters
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 1000 * time.Millisecond
	DefaultMaxDelay          = 8000 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Predicate decides whether an error is transient and worth retrying.
type Predicate func(error) bool

// Options configures a single retry sequence
type Options struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Predicate         Predicate
	// Context is a free-form label carried into logs and metrics
	Context string
}

// DefaultOptions returns options with the standard backoff parameters
// and a predicate that retries every error.
func DefaultOptions(label string) Options {
	return Options{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Predicate:         func(error) bool { return true },
		Context:           label,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.BackoffMultiplier == 0 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.Predicate == nil {
		o.Predicate = func(error) bool { return true }
	}
	if o.Context == "" {
		o.Context = "default"
	}
	return o
}

// Executor runs operations with retry and exponential backoff
type Executor struct {
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a retry executor
func NewExecutor() *Executor {
	return &Executor{
		logger: util.GetLogger(),
		sleep:  sleepCtx,
	}
}

// Do runs op, retrying transient failures with exponential backoff.
// It invokes op at most MaxRetries+1 times. A non-retryable error (per the
// predicate) is returned immediately. On exhaustion the last error from op
// is returned unchanged, never wrapped. The backoff sleep honors ctx; a
// cancellation mid-backoff returns ctx.Err().
func (e *Executor) Do(ctx context.Context, opts Options, op func(context.Context) error) error {
	opts = opts.withDefaults()

	delay := opts.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !opts.Predicate(lastErr) {
			e.logger.Debug("Error not retryable, giving up",
				zap.String("context", opts.Context),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			return lastErr
		}

		if attempt == opts.MaxRetries {
			break
		}

		wait := delay
		if wait > opts.MaxDelay {
			wait = opts.MaxDelay
		}

		util.RetryAttemptsTotal.WithLabelValues(opts.Context).Inc()
		e.logger.Warn("Operation failed, retrying",
			zap.String("context", opts.Context),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", opts.MaxRetries+1),
			zap.Duration("delay", wait),
			zap.Error(lastErr))

		if err := e.sleep(ctx, wait); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * opts.BackoffMultiplier)
	}

	util.RetryExhaustedTotal.WithLabelValues(opts.Context).Inc()
	e.logger.Error("Retries exhausted",
		zap.String("context", opts.Context),
		zap.Int("attempts", opts.MaxRetries+1),
		zap.Error(lastErr))

	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
