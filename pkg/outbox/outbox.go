// Package outbox implements the transactional-outbox background
// processor: claim due rows, publish each through the
// resilience-wrapped transport, and mark the result — sent, rescheduled
// with backoff, or dead-lettered once the attempt budget is exhausted.
package outbox

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/metrics"
	"github.com/heromessaging/messaging/pkg/resilience"
	"github.com/heromessaging/messaging/pkg/storage"
	"github.com/heromessaging/messaging/pkg/transport"
)

// Options configures the outbox poller.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Reservation  time.Duration
	MaxAttempts  int
	Exchange     string
	Clock        clock.Clock
	Logger       zerolog.Logger
	Metrics      metrics.Recorder

	// Breaker and Retry wrap every publish attempt. Breaker defaults
	// to a fresh Manager with DefaultBreakerOptions; Retry's Delay
	// (not Do — a failed publish is rescheduled via storage, not
	// retried in-process) supplies the backoff for the next_retry_at
	// write.
	Breaker *resilience.BreakerManager
	Retry   resilience.RetryPolicy

	// Rand seeds the poll-start jitter; the backoff jitter comes from
	// Retry.Rand. Injected so callers can make the poll start
	// deterministic in tests instead of this package ever touching the
	// process-wide math/rand default.
	Rand *rand.Rand
}

// DefaultOptions is a 500ms poll / batch of 20 / 10-attempt ceiling,
// with a 30s reservation lease.
func DefaultOptions() Options {
	return Options{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    20,
		Reservation:  30 * time.Second,
		MaxAttempts:  10,
	}
}

// Processor polls OutboxStorage and publishes due rows through Transport.
type Processor struct {
	store storage.OutboxStorage
	out   transport.MessageTransport
	dlq   deadletter.Queue
	opts  Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	processed     uint64
	failed        uint64
	lastProcessed time.Time
}

// UndeliveredMessage is the typed payload an exhausted outbox row is
// dead-lettered with: the original message id plus the routing key and
// raw serialized body, enough to inspect the entry and resubmit it.
type UndeliveredMessage struct {
	message.BaseEvent
	RoutingKey string
	Body       []byte
}

// Metrics is the processor's counter snapshot. Pending is read from
// storage at snapshot time; the rest accumulate over the processor's
// lifetime.
type Metrics struct {
	Pending         int
	Processed       uint64
	Failed          uint64
	LastProcessedAt time.Time
}

// New builds a Processor. dlq may be nil, in which case exhausted
// retries are only marked dead in storage and never queued for review.
func New(store storage.OutboxStorage, out transport.MessageTransport, dlq deadletter.Queue, opts Options) *Processor {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreakerManager(resilience.DefaultBreakerOptions())
	}
	if opts.Retry.MaxDelay == 0 {
		opts.Retry = resilience.DefaultRetryPolicy()
		opts.Retry.Clock = opts.Clock
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Clock.Now().UnixNano())) //nolint:gosec // jitter only
	}
	return &Processor{store: store, out: out, dlq: dlq, opts: opts}
}

// Start launches the poll loop in a background goroutine, jittering the
// first tick to avoid a thundering herd across replicas.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		jitter := time.Duration(p.opts.Rand.Int63n(int64(p.opts.PollInterval) + 1))
		select {
		case <-ctx.Done():
			return
		case <-p.opts.Clock.After(jitter):
		}

		timer := p.opts.Clock.NewTimer(p.opts.PollInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C():
				if err := p.poll(ctx); err != nil {
					p.opts.Logger.Error().Err(err).Msg("outbox: poll failed")
				}
				timer.Reset(p.opts.PollInterval)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.running = false
	p.mu.Unlock()
	<-done
}

// IsRunning reports whether the poll loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Metrics snapshots the processor's counters plus the store's current
// pending count.
func (p *Processor) Metrics(ctx context.Context) (Metrics, error) {
	pending, err := p.store.PendingCount(ctx)
	if err != nil {
		return Metrics{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		Pending:         pending,
		Processed:       p.processed,
		Failed:          p.failed,
		LastProcessedAt: p.lastProcessed,
	}, nil
}

func (p *Processor) poll(ctx context.Context) error {
	batch, err := p.store.ClaimPending(ctx, p.opts.BatchSize, p.opts.Reservation)
	if err != nil {
		return err
	}
	for _, row := range batch {
		p.processOne(ctx, row)
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, row storage.OutboxRecord) {
	start := p.opts.Clock.Now()
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.opts.Breaker.Execute(pubCtx, "outbox.publish", func(ctx context.Context) error {
		return p.out.Publish(ctx, transport.OutboundMessage{
			RoutingKey: row.RoutingKey,
			Body:       row.Body,
			MessageID:  row.MessageID.String(),
			Persistent: true,
			Headers:    map[string]any{"exchange": p.opts.Exchange},
		})
	})

	p.opts.Metrics.Observe("outbox.publish", p.opts.Clock.Now().Sub(start), err == nil)

	if err == nil {
		_ = p.store.MarkSent(ctx, row.ID)
		p.mu.Lock()
		p.processed++
		p.lastProcessed = p.opts.Clock.Now()
		p.mu.Unlock()
		return
	}

	if row.Attempts+1 >= p.opts.MaxAttempts {
		_ = p.store.MarkDead(ctx, row.ID, err.Error())
		p.mu.Lock()
		p.failed++
		p.mu.Unlock()
		if p.dlq != nil {
			created := row.CreatedAt
			if created.IsZero() {
				created = p.opts.Clock.Now()
			}
			undelivered := &UndeliveredMessage{
				BaseEvent: message.BaseEvent{Envelope: message.Envelope{
					ID:        row.MessageID,
					Timestamp: created,
					Metadata:  message.Metadata{},
				}},
				RoutingKey: row.RoutingKey,
				Body:       row.Body,
			}
			_, _ = p.dlq.Send(ctx, undelivered, deadletter.FailureContext{
				Component:  "outbox",
				Reason:     err.Error(),
				RetryCount: row.Attempts + 1,
				FailedAt:   p.opts.Clock.Now(),
			})
		}
		return
	}

	backoff := p.opts.Retry.Delay(uint(row.Attempts + 1))
	nextRetry := p.opts.Clock.Now().Add(backoff)
	_ = p.store.MarkFailed(ctx, row.ID, nextRetry, err.Error())
}
