package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/heromessaging/messaging/pkg/herrors"
)

// BreakerOptions configures the per-operation breakers a Manager hands
// out.
type BreakerOptions struct {
	FailureThreshold uint32
	BreakDuration    time.Duration
	OnStateChange    func(operation string, from, to gobreaker.State)
}

// DefaultBreakerOptions trips after 5 consecutive failures and probes
// again after 30s.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{FailureThreshold: 5, BreakDuration: 30 * time.Second}
}

// BreakerManager hands out one gobreaker.CircuitBreaker per operation
// name, lazily created: a single shared breaker per operation name,
// independent breakers across names.
type BreakerManager struct {
	opts BreakerOptions

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerManager builds a Manager with the given per-operation
// defaults.
func NewBreakerManager(opts BreakerOptions) *BreakerManager {
	return &BreakerManager{opts: opts, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (m *BreakerManager) breaker(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one HalfOpen probe at a time
		Interval:    0, // never reset Closed-state counts on a timer; only on success
		Timeout:     m.opts.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.opts.FailureThreshold
		},
	}
	if m.opts.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			m.opts.OnStateChange(name, from, to)
		}
	}
	b := gobreaker.NewCircuitBreaker(settings)
	m.breakers[name] = b
	return b
}

// State returns the current state of the named operation's breaker,
// creating it (Closed) if it does not yet exist.
func (m *BreakerManager) State(operation string) gobreaker.State {
	return m.breaker(operation).State()
}

// CanExecute reports whether an attempt would currently be allowed,
// without recording one. Used by callers (e.g. the scheduler's delivery
// handler) that want to probe without side effects.
func (m *BreakerManager) CanExecute(operation string) bool {
	return m.breaker(operation).State() != gobreaker.StateOpen
}

// Execute runs fn under the named operation's breaker. If the breaker is
// Open, fn is never called and herrors.ErrCircuitOpen is returned,
// matching the pipeline's circuit-breaker stage short-circuit. Context
// cancellation is never recorded as a breaker failure.
func (m *BreakerManager) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	b := m.breaker(operation)
	var cancelled error
	_, err := b.Execute(func() (any, error) {
		innerErr := fn(ctx)
		if herrors.IsCancellation(innerErr) {
			// Report success to gobreaker's bookkeeping: a cancelled
			// attempt tells us nothing about the operation's health and
			// must not count toward tripping the breaker.
			cancelled = innerErr
			return nil, nil
		}
		return nil, innerErr
	})
	if cancelled != nil {
		return cancelled
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return herrors.Wrap(herrors.CodeCircuitOpen, "circuit breaker open for "+operation, err)
	}
	return err
}
