package deadletter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/message"
)

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process Queue backed by a map, intended for tests
// and single-process deployments that don't need entries to outlive the
// running process.
type MemoryQueue struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewMemoryQueue builds an empty MemoryQueue using c to stamp CreatedAt.
func NewMemoryQueue(c clock.Clock) *MemoryQueue {
	if c == nil {
		c = clock.New()
	}
	return &MemoryQueue{clock: c, entries: make(map[uuid.UUID]*Entry)}
}

// Send always succeeds, storing a new Active entry.
func (q *MemoryQueue) Send(_ context.Context, msg message.Message, fc FailureContext) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.New()
	q.entries[id] = &Entry{
		ID:        id,
		Message:   msg,
		Context:   fc,
		Status:    StatusActive,
		CreatedAt: q.clock.Now(),
	}
	return id, nil
}

// List returns Active entries, newest-first, up to limit (0 means
// unbounded).
func (q *MemoryQueue) List(_ context.Context, limit int) ([]Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	active := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status == StatusActive {
			active = append(active, *e)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// Retry marks Active -> Retried. expectedType must equal the Kind of
// the stored message's concrete type, reported by the caller as a
// stable discriminator (e.g. a registered type name), since this queue
// has no generic reflection-based type registry.
func (q *MemoryQueue) Retry(_ context.Context, id uuid.UUID, expectedType string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != StatusActive {
		return false, nil
	}
	if expectedType != "" && e.Message != nil && e.Message.Kind().String() != expectedType {
		return false, nil
	}
	now := q.clock.Now()
	e.Status = StatusRetried
	e.RetriedAt = &now
	return true, nil
}

// Discard marks Active -> Discarded.
func (q *MemoryQueue) Discard(_ context.Context, id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != StatusActive {
		return false, nil
	}
	now := q.clock.Now()
	e.Status = StatusDiscarded
	e.DiscardedAt = &now
	return true, nil
}

// Count returns the number of Active entries.
func (q *MemoryQueue) Count(_ context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, e := range q.entries {
		if e.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

// Statistics returns an aggregate snapshot across all entries regardless
// of status.
func (q *MemoryQueue) Statistics(_ context.Context) (Statistics, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Statistics{
		TotalByStatus: make(map[Status]int),
		ByComponent:   make(map[string]int),
		ByReason:      make(map[string]int),
	}
	for _, e := range q.entries {
		stats.TotalByStatus[e.Status]++
		if e.Context.Component != "" {
			stats.ByComponent[e.Context.Component]++
		}
		stats.ByReason[TruncateReason(e.Context.Reason)]++
		if stats.Oldest.IsZero() || e.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = e.CreatedAt
		}
		if stats.Newest.IsZero() || e.CreatedAt.After(stats.Newest) {
			stats.Newest = e.CreatedAt
		}
	}
	return stats, nil
}

// ExpireOlderThan marks Active entries created before cutoff as
// Expired. Returns how many were expired. Intended to run from a
// periodic maintenance job.
func (q *MemoryQueue) ExpireOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.Status == StatusActive && e.CreatedAt.Before(cutoff) {
			e.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the entry, mainly for tests/diagnostics.
func (q *MemoryQueue) Get(id uuid.UUID) (Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
