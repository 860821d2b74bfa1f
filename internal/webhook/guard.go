package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restoflow/internal/util"

	"go.uber.org/zap"
)

// Event sources. SourceInternal covers events consumed off the broker
// rather than delivered by a provider webhook.
const (
	SourceStripe   = "stripe"
	SourceDoorDash = "doordash"
	SourceInternal = "internal"
)

// DefaultRetention is how long processed-event records are kept before
// the cleanup sweep removes them.
const DefaultRetention = 30 * 24 * time.Hour

// ErrDuplicateEvent is returned by RecordStore.InsertRecord when a record
// for the event id already exists (uniqueness constraint violation).
var ErrDuplicateEvent = errors.New("webhook event already recorded")

// Record marks one externally delivered event as handled. At most one
// record per event id ever exists; the storage layer enforces this with
// a uniqueness constraint.
type Record struct {
	EventID     string    `db:"event_id"`
	Source      string    `db:"source"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// RecordStore is the persistence contract the guard requires.
type RecordStore interface {
	FindRecord(ctx context.Context, eventID string) (*Record, error)
	InsertRecord(ctx context.Context, eventID, source, eventType string) error
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Outcome reports whether ProcessOnce actually invoked the handler.
type Outcome struct {
	Processed bool
}

// Guard ensures an externally delivered event is processed at most once.
//
// The check-handle-mark sequence is not transactional: two concurrent
// deliveries of the same event can both pass the existence check, so the
// uniqueness constraint on insert is the actual safety net. Handlers must
// therefore tolerate running at least once (prefer upserts and other
// naturally idempotent side effects).
type Guard struct {
	store  RecordStore
	logger *zap.Logger
}

// NewGuard creates a webhook idempotency guard
func NewGuard(store RecordStore) *Guard {
	return &Guard{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ProcessOnce runs handler for the event unless a record shows it was
// already handled. A failed existence check fails open: losing a payment
// or delivery event outright is worse than an occasional duplicate side
// effect. A duplicate-key failure when marking the event is a benign
// race outcome and is swallowed; any other mark failure propagates.
func (g *Guard) ProcessOnce(ctx context.Context, eventID, source, eventType string, handler func(context.Context) error) (Outcome, error) {
	start := time.Now()

	existing, err := g.store.FindRecord(ctx, eventID)
	if err != nil {
		g.logger.Warn("Webhook dedup check failed, processing anyway",
			zap.String("event_id", eventID),
			zap.String("source", source),
			zap.Error(err))
	}
	if existing != nil {
		util.WebhookDuplicatesTotal.WithLabelValues(source).Inc()
		g.logger.Info("Webhook already processed, skipping",
			zap.String("event_id", eventID),
			zap.String("source", source),
			zap.String("event_type", eventType))
		return Outcome{Processed: false}, nil
	}

	if err := handler(ctx); err != nil {
		return Outcome{}, err
	}

	if err := g.store.InsertRecord(ctx, eventID, source, eventType); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			g.logger.Info("Webhook processed concurrently by another delivery",
				zap.String("event_id", eventID),
				zap.String("source", source))
			return Outcome{Processed: true}, nil
		}
		// The event was handled but not recorded; a redelivery will
		// reprocess it.
		g.logger.Error("Failed to record processed webhook",
			zap.String("event_id", eventID),
			zap.String("source", source),
			zap.Error(err))
		return Outcome{}, fmt.Errorf("failed to record processed webhook %s: %w", eventID, err)
	}

	util.WebhooksProcessedTotal.WithLabelValues(source).Inc()
	g.logger.Info("Webhook processed",
		zap.String("event_id", eventID),
		zap.String("source", source),
		zap.String("event_type", eventType),
		zap.Duration("elapsed", time.Since(start)))

	return Outcome{Processed: true}, nil
}

// Cleanup deletes processed-event records older than maxAge. Purely
// storage hygiene: safe as long as no provider redelivers an event older
// than the retention window.
func (g *Guard) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	cutoff := time.Now().Add(-maxAge)
	deleted, err := g.store.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("webhook record cleanup failed: %w", err)
	}

	if deleted > 0 {
		g.logger.Info("Cleaned up processed webhook records",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
