package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Scheduled is an in-memory storage.ScheduledMessageStorage backing the
// polling scheduler variant.
type Scheduled struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*storage.ScheduledMessageRecord
	clock clock.Clock
}

// NewScheduled builds an empty in-memory scheduled-message store.
func NewScheduled(c clock.Clock) *Scheduled {
	return &Scheduled{rows: make(map[uuid.UUID]*storage.ScheduledMessageRecord), clock: defaultClock(c)}
}

func (s *Scheduled) Schedule(_ context.Context, rec storage.ScheduledMessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	if cp.Status == "" {
		cp.Status = storage.ScheduledPending
	}
	s.rows[rec.ID] = &cp
	return nil
}

func (s *Scheduled) Get(_ context.Context, id uuid.UUID) (storage.ScheduledMessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return storage.ScheduledMessageRecord{}, herrors.ErrNotFound
	}
	return *row, nil
}

func (s *Scheduled) ClaimDue(_ context.Context, now time.Time, limit int, owner string, lease time.Duration) ([]storage.ScheduledMessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*storage.ScheduledMessageRecord
	for _, row := range s.rows {
		if row.Status != storage.ScheduledPending {
			continue
		}
		if row.DeliverAt.After(now) {
			continue
		}
		if row.ClaimedBy != "" && row.ClaimedAt.Add(lease).After(now) {
			continue
		}
		due = append(due, row)
	}
	sortByDeliveryOrder(due)
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]storage.ScheduledMessageRecord, 0, len(due))
	for _, row := range due {
		row.ClaimedBy = owner
		row.ClaimedAt = now
		out = append(out, *row)
	}
	return out, nil
}

// Pending lists rows still awaiting delivery, ordered deliver_at ASC,
// priority DESC, optionally restricted to rows due at or before
// query.Before.
func (s *Scheduled) Pending(_ context.Context, query storage.ScheduledQuery) ([]storage.ScheduledMessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*storage.ScheduledMessageRecord
	for _, row := range s.rows {
		if row.Status != storage.ScheduledPending {
			continue
		}
		if !query.Before.IsZero() && row.DeliverAt.After(query.Before) {
			continue
		}
		rows = append(rows, row)
	}
	sortByDeliveryOrder(rows)
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	out := make([]storage.ScheduledMessageRecord, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}

func (s *Scheduled) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.Status == storage.ScheduledPending {
			n++
		}
	}
	return n, nil
}

func (s *Scheduled) MarkDelivered(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.Status = storage.ScheduledDelivered
	}
	return nil
}

func (s *Scheduled) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.Status = storage.ScheduledFailed
		row.ErrorMessage = reason
	}
	return nil
}

// Cancel marks id Cancelled if it's still Pending; a no-op once it has
// already Delivered or Failed, so the observable status tells a caller
// which race it lost.
func (s *Scheduled) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok && row.Status == storage.ScheduledPending {
		row.Status = storage.ScheduledCancelled
	}
	return nil
}

// DeleteResolvedBefore removes Delivered/Cancelled rows whose delivery
// time precedes cutoff.
func (s *Scheduled) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, row := range s.rows {
		if row.Status != storage.ScheduledDelivered && row.Status != storage.ScheduledCancelled {
			continue
		}
		if row.DeliverAt.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func sortByDeliveryOrder(rows []*storage.ScheduledMessageRecord) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DeliverAt.Equal(rows[j].DeliverAt) {
			return rows[i].DeliverAt.Before(rows[j].DeliverAt)
		}
		return rows[i].Priority > rows[j].Priority
	})
}

var _ storage.ScheduledMessageStorage = (*Scheduled)(nil)
