package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/storage"
)

// PollingOptions configures the storage-backed scheduler.
type PollingOptions struct {
	PollInterval   time.Duration
	BatchSize      int
	Lease          time.Duration
	MaxConcurrency int
	Owner          string
	Clock          clock.Clock
	Logger         zerolog.Logger

	// CleanupInterval > 0 starts the Cleaner worker alongside the
	// poller: every interval it removes Delivered/Cancelled rows older
	// than CleanupAge. Zero disables cleanup entirely.
	CleanupInterval time.Duration
	CleanupAge      time.Duration

	// OnDeliveryFailure is invoked after store.MarkFailed, analogous to
	// the outbox's dead-letter routing, so a caller can queue a failed
	// scheduled delivery for review instead of it only being logged.
	OnDeliveryFailure func(ctx context.Context, id uuid.UUID, err error)
}

// DefaultPollingOptions is a 1s poll / batch of 50 / 30s lease / 8-way
// concurrent deliverer pool.
func DefaultPollingOptions() PollingOptions {
	return PollingOptions{
		PollInterval:   time.Second,
		BatchSize:      50,
		Lease:          30 * time.Second,
		MaxConcurrency: 8,
		Owner:          "scheduler",
	}
}

// PollingScheduler is the durable, multi-replica-safe variant: a Poller
// claims due rows with a lease, a bounded pool of Deliverer workers
// invokes Deliver, and successful deliveries are marked delivered so
// the cleaner never needs to revisit them. Concurrency is bounded by
// MaxConcurrency via a buffered-channel semaphore.
type PollingScheduler struct {
	store   storage.ScheduledMessageStorage
	deliver Deliver
	opts    PollingOptions

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cleaned chan struct{}
	running bool
}

// NewPolling builds a PollingScheduler.
func NewPolling(store storage.ScheduledMessageStorage, deliver Deliver, opts PollingOptions) *PollingScheduler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.Owner == "" {
		opts.Owner = "scheduler"
	}
	return &PollingScheduler{store: store, deliver: deliver, opts: opts}
}

func (s *PollingScheduler) Schedule(ctx context.Context, id uuid.UUID, deliverAt time.Time, routingKey string, body []byte) error {
	if err := validateDeliverAt(s.opts.Clock.Now(), deliverAt); err != nil {
		return err
	}
	return s.store.Schedule(ctx, storage.ScheduledMessageRecord{
		ID: id, DeliverAt: deliverAt, RoutingKey: routingKey, Body: body,
	})
}

func (s *PollingScheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.store.Cancel(ctx, id)
}

func (s *PollingScheduler) Get(ctx context.Context, id uuid.UUID) (storage.ScheduledMessageRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *PollingScheduler) Pending(ctx context.Context, query storage.ScheduledQuery) ([]storage.ScheduledMessageRecord, error) {
	return s.store.Pending(ctx, query)
}

func (s *PollingScheduler) PendingCount(ctx context.Context) (int, error) {
	return s.store.PendingCount(ctx)
}

// Start launches the poll loop: each tick claims due rows and fans them
// out to at most MaxConcurrency concurrent Deliverer invocations.
func (s *PollingScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cleaned = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	if s.opts.CleanupInterval > 0 {
		go s.cleanLoop(ctx)
	} else {
		close(s.cleaned)
	}

	sem := make(chan struct{}, s.opts.MaxConcurrency)
	go func() {
		defer close(s.done)
		timer := s.opts.Clock.NewTimer(s.opts.PollInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C():
				s.pollOnce(ctx, sem)
				timer.Reset(s.opts.PollInterval)
			}
		}
	}()
}

func (s *PollingScheduler) pollOnce(ctx context.Context, sem chan struct{}) {
	due, err := s.store.ClaimDue(ctx, s.opts.Clock.Now(), s.opts.BatchSize, s.opts.Owner, s.opts.Lease)
	if err != nil {
		s.opts.Logger.Error().Err(err).Msg("scheduler: claim failed")
		return
	}
	var wg sync.WaitGroup
	for _, rec := range due {
		rec := rec
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.deliver(ctx, rec.ID, rec.RoutingKey, rec.Body); err != nil {
				s.opts.Logger.Error().Err(err).Str("id", rec.ID.String()).Msg("scheduler: deliver failed")
				_ = s.store.MarkFailed(ctx, rec.ID, err.Error())
				if s.opts.OnDeliveryFailure != nil {
					s.opts.OnDeliveryFailure(ctx, rec.ID, err)
				}
				return
			}
			_ = s.store.MarkDelivered(ctx, rec.ID)
		}()
	}
	wg.Wait()
}

func (s *PollingScheduler) cleanLoop(ctx context.Context) {
	defer close(s.cleaned)
	timer := s.opts.Clock.NewTimer(s.opts.CleanupInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			cutoff := s.opts.Clock.Now().Add(-s.opts.CleanupAge)
			if n, err := s.store.DeleteResolvedBefore(ctx, cutoff); err != nil {
				s.opts.Logger.Error().Err(err).Msg("scheduler: cleanup failed")
			} else if n > 0 {
				s.opts.Logger.Debug().Int("removed", n).Msg("scheduler: cleaned resolved messages")
			}
			timer.Reset(s.opts.CleanupInterval)
		}
	}
}

// Stop cancels the workers and waits for them to exit.
func (s *PollingScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done, cleaned := s.done, s.cleaned
	s.running = false
	s.mu.Unlock()
	<-done
	<-cleaned
}

var _ Scheduler = (*PollingScheduler)(nil)
