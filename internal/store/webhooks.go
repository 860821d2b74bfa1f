package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"restoflow/internal/webhook"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// FindRecord looks up a processed-webhook record by event ID. Returns
// (nil, nil) when the event has not been seen.
func (s *Store) FindRecord(ctx context.Context, eventID string) (*webhook.Record, error) {
	var record webhook.Record
	err := s.db.GetContext(ctx, &record,
		"SELECT event_id, source, event_type, processed_at FROM processed_webhooks WHERE event_id = $1",
		eventID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// InsertRecord marks an event as processed. The unique index on event_id
// is the concurrency safety net: a concurrent insert for the same event
// surfaces as webhook.ErrDuplicateEvent.
func (s *Store) InsertRecord(ctx context.Context, eventID, source, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_webhooks (event_id, source, event_type) VALUES ($1, $2, $3)",
		eventID, source, eventType)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return fmt.Errorf("event %s: %w", eventID, webhook.ErrDuplicateEvent)
		}
		return err
	}
	return nil
}

// DeleteRecordsBefore deletes processed-webhook records older than cutoff
func (s *Store) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM processed_webhooks WHERE processed_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
