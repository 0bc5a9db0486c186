package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/storage"
)

// MemoryScheduler arms one clock.Timer per scheduled message — no
// polling, no external storage. A records map tracks each message's
// lifecycle status (Pending/Delivered/Cancelled/Failed) the same
// way a storage.ScheduledMessageStorage row would, so Get/Pending/
// PendingCount and a Cancel-vs-already-fired race are all observable
// even without a backing store. A resolved entry (Delivered, Failed, or
// Cancelled) stays queryable for a short grace period and is then
// removed from both maps, the in-memory counterpart of the polling
// variant's cleaner, so long-running processes don't accumulate
// resolved records forever.
type MemoryScheduler struct {
	clock clock.Clock
	grace time.Duration

	mu      sync.Mutex
	timers  map[uuid.UUID]clock.Timer
	records map[uuid.UUID]*storage.ScheduledMessageRecord
	cancel  context.CancelFunc
	running bool

	deliver Deliver
}

// NewMemory builds a MemoryScheduler. grace bounds how long a resolved
// entry lingers in the tracking maps before removal: long enough for a
// concurrent Cancel or status query to observe the terminal state,
// short enough that the maps don't grow with every message ever
// scheduled.
func NewMemory(c clock.Clock, grace time.Duration, deliver Deliver) *MemoryScheduler {
	if c == nil {
		c = clock.New()
	}
	if grace <= 0 {
		grace = time.Second
	}
	return &MemoryScheduler{
		clock:   c,
		grace:   grace,
		timers:  make(map[uuid.UUID]clock.Timer),
		records: make(map[uuid.UUID]*storage.ScheduledMessageRecord),
		deliver: deliver,
	}
}

func (s *MemoryScheduler) Schedule(ctx context.Context, id uuid.UUID, deliverAt time.Time, routingKey string, body []byte) error {
	if err := validateDeliverAt(s.clock.Now(), deliverAt); err != nil {
		return err
	}
	delay := deliverAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	timer := s.clock.NewTimer(delay)

	s.mu.Lock()
	s.timers[id] = timer
	s.records[id] = &storage.ScheduledMessageRecord{
		ID: id, DeliverAt: deliverAt, RoutingKey: routingKey, Body: body,
		Status: storage.ScheduledPending,
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			s.mu.Lock()
			rec, armed := s.records[id]
			alreadyResolved := !armed || rec.Status != storage.ScheduledPending
			s.mu.Unlock()
			if alreadyResolved {
				return
			}

			err := s.deliver(ctx, id, routingKey, body)

			s.mu.Lock()
			if rec, ok := s.records[id]; ok {
				if err != nil {
					rec.Status = storage.ScheduledFailed
					rec.ErrorMessage = err.Error()
				} else {
					rec.Status = storage.ScheduledDelivered
				}
			}
			s.mu.Unlock()

			<-s.clock.NewTimer(s.grace).C()
			s.mu.Lock()
			delete(s.timers, id)
			delete(s.records, id)
			s.mu.Unlock()
		}
	}()
	return nil
}

// Cancel marks id Cancelled if it hasn't fired yet; a no-op (status
// stays Delivered/Failed) if it already has. Like a fired timer's
// record, a cancelled record stays observable for the grace window and
// is then removed.
func (s *MemoryScheduler) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	if rec, ok := s.records[id]; ok && rec.Status == storage.ScheduledPending {
		rec.Status = storage.ScheduledCancelled
		graceTimer := s.clock.NewTimer(s.grace)
		go func() {
			<-graceTimer.C()
			s.mu.Lock()
			delete(s.records, id)
			s.mu.Unlock()
		}()
	}
	return nil
}

// Get returns the tracked record for id.
func (s *MemoryScheduler) Get(_ context.Context, id uuid.UUID) (storage.ScheduledMessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ScheduledMessageRecord{}, herrors.ErrNotFound
	}
	return *rec, nil
}

// Pending lists still-Pending records, optionally restricted to those
// due at or before query.Before.
func (s *MemoryScheduler) Pending(_ context.Context, query storage.ScheduledQuery) ([]storage.ScheduledMessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ScheduledMessageRecord
	for _, rec := range s.records {
		if rec.Status != storage.ScheduledPending {
			continue
		}
		if !query.Before.IsZero() && rec.DeliverAt.After(query.Before) {
			continue
		}
		out = append(out, *rec)
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *MemoryScheduler) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.Status == storage.ScheduledPending {
			n++
		}
	}
	return n, nil
}

// Start and Stop are no-ops for MemoryScheduler: each Schedule call
// already owns its own goroutine and timer, so there is no shared poll
// loop to start or stop. Present to satisfy the Scheduler interface.
func (s *MemoryScheduler) Start(context.Context) {}
func (s *MemoryScheduler) Stop()                 {}

var _ Scheduler = (*MemoryScheduler)(nil)
