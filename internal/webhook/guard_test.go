package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	findErr   error
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*Record{}}
}

func (f *fakeStore) FindRecord(ctx context.Context, eventID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.records[eventID], nil
}

func (f *fakeStore) InsertRecord(ctx context.Context, eventID, source, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, exists := f.records[eventID]; exists {
		return fmt.Errorf("event %s: %w", eventID, ErrDuplicateEvent)
	}
	f.records[eventID] = &Record{
		EventID:     eventID,
		Source:      source,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	return nil
}

func (f *fakeStore) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, rec := range f.records {
		if rec.ProcessedAt.Before(cutoff) {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestProcessOnceInvokesHandlerAndMarks(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	calls := 0
	outcome, err := guard.ProcessOnce(context.Background(), "evt_1", SourceStripe, "payment_intent.succeeded",
		func(ctx context.Context) error {
			calls++
			return nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Processed)
	assert.Equal(t, 1, calls)

	rec := store.records["evt_1"]
	require.NotNil(t, rec)
	assert.Equal(t, SourceStripe, rec.Source)
	assert.Equal(t, "payment_intent.succeeded", rec.EventType)
}

func TestRedeliveryIsSkipped(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	sideEffects := 0
	handler := func(ctx context.Context) error {
		sideEffects++
		return nil
	}

	first, err := guard.ProcessOnce(context.Background(), "evt_dup", SourceDoorDash, "delivery_status", handler)
	require.NoError(t, err)
	assert.True(t, first.Processed)

	second, err := guard.ProcessOnce(context.Background(), "evt_dup", SourceDoorDash, "delivery_status", handler)
	require.NoError(t, err)
	assert.False(t, second.Processed)

	assert.Equal(t, 1, sideEffects, "side effect must occur exactly once across redeliveries")
}

func TestConcurrentDeliveriesNeverDuplicateRecord(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	const callers = 20
	var handlerRuns int64

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := guard.ProcessOnce(context.Background(), "evt_race", SourceStripe, "payment_intent.succeeded",
				func(ctx context.Context) error {
					atomic.AddInt64(&handlerRuns, 1)
					return nil
				})
			errs <- err
		}()
	}

	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err, "racing deliveries must not surface the duplicate insert")
	}

	// The handler may run more than once when callers race past the
	// check, but the record is never duplicated.
	assert.GreaterOrEqual(t, atomic.LoadInt64(&handlerRuns), int64(1))
	assert.Equal(t, 1, store.recordCount())
}

func TestCheckFailureFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection refused")
	guard := NewGuard(store)

	calls := 0
	outcome, err := guard.ProcessOnce(context.Background(), "evt_failopen", SourceStripe, "payment_intent.succeeded",
		func(ctx context.Context) error {
			calls++
			return nil
		})

	require.NoError(t, err)
	assert.True(t, outcome.Processed)
	assert.Equal(t, 1, calls, "a failed dedup check must not drop the event")
}

func TestHandlerErrorPropagatesWithoutMarking(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	handlerErr := errors.New("order lookup failed")
	outcome, err := guard.ProcessOnce(context.Background(), "evt_err", SourceStripe, "payment_intent.succeeded",
		func(ctx context.Context) error {
			return handlerErr
		})

	require.ErrorIs(t, err, handlerErr)
	assert.False(t, outcome.Processed)
	assert.Equal(t, 0, store.recordCount(), "a failed handler must leave no record so redelivery can retry")
}

func TestDuplicateInsertSwallowed(t *testing.T) {
	store := newFakeStore()
	store.insertErr = fmt.Errorf("event evt_x: %w", ErrDuplicateEvent)
	guard := NewGuard(store)

	outcome, err := guard.ProcessOnce(context.Background(), "evt_x", SourceDoorDash, "delivery_status",
		func(ctx context.Context) error { return nil })

	require.NoError(t, err, "losing the insert race is a benign outcome")
	assert.True(t, outcome.Processed)
}

func TestInsertFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("disk full")
	guard := NewGuard(store)

	_, err := guard.ProcessOnce(context.Background(), "evt_y", SourceStripe, "payment_intent.succeeded",
		func(ctx context.Context) error { return nil })

	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestCleanupDeletesOnlyExpiredRecords(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	store.records["evt_old"] = &Record{
		EventID:     "evt_old",
		Source:      SourceStripe,
		ProcessedAt: time.Now().Add(-45 * 24 * time.Hour),
	}
	store.records["evt_recent"] = &Record{
		EventID:     "evt_recent",
		Source:      SourceStripe,
		ProcessedAt: time.Now().Add(-10 * 24 * time.Hour),
	}

	deleted, err := guard.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.Nil(t, store.records["evt_old"])
	assert.NotNil(t, store.records["evt_recent"])
}

func TestCleanupDefaultsRetention(t *testing.T) {
	store := newFakeStore()
	guard := NewGuard(store)

	store.records["evt_ancient"] = &Record{
		EventID:     "evt_ancient",
		ProcessedAt: time.Now().Add(-60 * 24 * time.Hour),
	}

	deleted, err := guard.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
