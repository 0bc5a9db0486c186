// Package resilience implements the retry policy, circuit breaker, and
// health monitor the pipeline's decorators and the background
// processors share: avast/retry-go/v4 drives the backoff executor,
// sony/gobreaker the breaker state machine.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
)

// RetryPolicy bounds retry attempts and executes a function under those
// bounds using avast/retry-go/v4, with a custom delay function:
// delay = min(MaxDelay, BaseDelay * 2^(retry-1) * (1 + U[0, 0.3])).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Clock and Rand are injected so tests can make backoff deterministic
	// instead of calling the process-wide time/rand defaults.
	Clock clock.Clock
	Rand  *rand.Rand
}

// DefaultRetryPolicy is 3 retries, 1s base delay, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Clock:      clock.New(),
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
}

// Delay computes the backoff for the given 1-indexed retry attempt.
func (p RetryPolicy) Delay(attempt uint) time.Duration {
	if attempt == 0 {
		return 0
	}
	jitter := 1.0
	if p.Rand != nil {
		jitter += p.Rand.Float64() * 0.3
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)) * jitter
	max := float64(p.MaxDelay)
	if d > max {
		d = max
	}
	return time.Duration(d)
}

// DoOption customizes a single Do invocation without changing the
// underlying avast/retry-go/v4 executor call site, so every retry loop
// in the core — the standalone policy and the pipeline's Retry stage
// alike — goes through the same library call.
type DoOption func(*doConfig)

type doConfig struct {
	onRetry func(attempt uint)
	stopIf  func() bool
}

// OnRetry registers a callback invoked between attempts, after the
// n'th attempt has failed and before its backoff delay, with the
// 1-indexed attempt number that just failed. Callers use this to
// advance their own retry bookkeeping (e.g. a ProcessingContext's
// RetryCount) in step with the library's own attempt loop.
func OnRetry(fn func(attempt uint)) DoOption {
	return func(c *doConfig) { c.onRetry = fn }
}

// StopIf registers an additional stop condition checked alongside
// herrors.IsTransient before each retry; once it reports true, Do stops
// retrying regardless of MaxRetries.
func StopIf(fn func() bool) DoOption {
	return func(c *doConfig) { c.stopIf = fn }
}

// Do executes fn, retrying on transient errors per herrors.IsTransient,
// up to MaxRetries additional attempts, honoring ctx cancellation. A
// non-transient failure or cancellation aborts retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, opts ...DoOption) error {
	cfg := doConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	attempts := uint(p.MaxRetries) + 1
	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if cfg.stopIf != nil && cfg.stopIf() {
				return false
			}
			return herrors.IsTransient(err)
		}),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.Delay(n + 1)
		}),
	}
	if cfg.onRetry != nil {
		retryOpts = append(retryOpts, retry.OnRetry(func(n uint, _ error) {
			cfg.onRetry(n + 1)
		}))
	}
	return retry.Do(fn, retryOpts...)
}

// MaxCumulativeDelay bounds the cumulative backoff a single message may
// incur: sum_{k=1..MaxRetries} min(MaxDelay, BaseDelay*2^(k-1)*1.3).
func (p RetryPolicy) MaxCumulativeDelay() time.Duration {
	var total time.Duration
	for k := 1; k <= p.MaxRetries; k++ {
		d := float64(p.BaseDelay) * math.Pow(2, float64(k-1)) * 1.3
		if max := float64(p.MaxDelay); d > max {
			d = max
		}
		total += time.Duration(d)
	}
	return total
}
