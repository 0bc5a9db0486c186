package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/scheduler"
	"github.com/heromessaging/messaging/pkg/storage"
	"github.com/heromessaging/messaging/pkg/storage/memory"
)

func TestMemoryScheduler_DeliversAtDueTime(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var mu sync.Mutex
	var delivered []uuid.UUID
	s := scheduler.NewMemory(fc, time.Millisecond, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, id)
		return nil
	})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now().Add(time.Minute), "rk", []byte("x")))

	fc.Advance(30 * time.Second)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, delivered)
	mu.Unlock()

	fc.Advance(31 * time.Second)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	assert.Contains(t, delivered, id)
	mu.Unlock()
}

func TestMemoryScheduler_CancelPreventsDelivery(t *testing.T) {
	fc := clock.NewFake(time.Now())
	delivered := false
	s := scheduler.NewMemory(fc, time.Millisecond, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		delivered = true
		return nil
	})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now().Add(time.Minute), "rk", []byte("x")))
	require.NoError(t, s.Cancel(context.Background(), id))

	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.ScheduledCancelled, rec.Status)

	fc.Advance(2 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, delivered)

	// Past the grace window the resolved record is evicted.
	_, err = s.Get(context.Background(), id)
	assert.Error(t, err)
}

func TestMemoryScheduler_PendingCountReflectsOutstandingMessages(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := scheduler.NewMemory(fc, time.Millisecond, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		return nil
	})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now().Add(time.Minute), "rk", []byte("x")))

	count, err := s.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err := s.Pending(context.Background(), storage.ScheduledQuery{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	fc.Advance(2 * time.Minute)
	time.Sleep(10 * time.Millisecond)

	count, err = s.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPollingScheduler_DeliversDueMessages(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewScheduled(fc)

	var mu sync.Mutex
	var delivered []uuid.UUID
	s := scheduler.NewPolling(store, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, id)
		return nil
	}, scheduler.PollingOptions{PollInterval: time.Millisecond, Clock: fc})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now(), "rk", []byte("x")))

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fc.Advance(time.Millisecond)
		mu.Lock()
		found := len(delivered) > 0
		mu.Unlock()
		if found {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, delivered, id)
}

func TestPollingScheduler_MarksFailedAndInvokesHook(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewScheduled(fc)

	var mu sync.Mutex
	var hookErr error
	var hookID uuid.UUID
	s := scheduler.NewPolling(store, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		return assert.AnError
	}, scheduler.PollingOptions{
		PollInterval: time.Millisecond,
		Clock:        fc,
		OnDeliveryFailure: func(ctx context.Context, id uuid.UUID, err error) {
			mu.Lock()
			defer mu.Unlock()
			hookID = id
			hookErr = err
		},
	})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now(), "rk", []byte("x")))

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fc.Advance(time.Millisecond)
		mu.Lock()
		found := hookErr != nil
		mu.Unlock()
		if found {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, hookErr)
	assert.Equal(t, id, hookID)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.ScheduledFailed, rec.Status)
}

func TestSchedule_PastDeliveryToleranceBoundary(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := scheduler.NewMemory(fc, time.Millisecond, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		return nil
	})

	// deliver_at == now (zero delay) delivers immediately, no error.
	require.NoError(t, s.Schedule(context.Background(), uuid.New(), fc.Now(), "rk", nil))

	// Within the 1s tolerance: accepted.
	require.NoError(t, s.Schedule(context.Background(), uuid.New(), fc.Now().Add(-500*time.Millisecond), "rk", nil))

	// Past the tolerance: rejected.
	err := s.Schedule(context.Background(), uuid.New(), fc.Now().Add(-2*time.Second), "rk", nil)
	assert.ErrorIs(t, err, scheduler.ErrDeliverAtInPast)
}

func TestPollingScheduler_RejectsDeliveryTimeInPast(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := scheduler.NewPolling(memory.NewScheduled(fc), func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		return nil
	}, scheduler.PollingOptions{Clock: fc})

	err := s.Schedule(context.Background(), uuid.New(), fc.Now().Add(-2*time.Second), "rk", nil)
	assert.ErrorIs(t, err, scheduler.ErrDeliverAtInPast)
}

func TestPollingScheduler_CleanerRemovesResolvedMessages(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewScheduled(fc)

	s := scheduler.NewPolling(store, func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error {
		return nil
	}, scheduler.PollingOptions{
		PollInterval:    time.Millisecond,
		Clock:           fc,
		CleanupInterval: 10 * time.Millisecond,
		CleanupAge:      time.Minute,
	})

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, fc.Now(), "rk", []byte("x")))

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fc.Advance(time.Minute)
		if _, err := store.Get(context.Background(), id); err != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	_, err := store.Get(context.Background(), id)
	assert.Error(t, err, "delivered message older than cleanup age must be removed")
}
