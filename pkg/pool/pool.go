// Package pool implements a generic resource pool — connection pools
// and AMQP channel pools alike — on top of jackc/puddle/v2, the pooling
// library pgx already carries transitively. Health checking and idle
// reaping run on top of puddle's bare acquire/release primitives.
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
)

// Options configures a Pool.
type Options struct {
	MinSize     int32
	MaxSize     int32
	IdleTimeout time.Duration
	// HealthCheck runs on an acquired resource before it is handed back
	// to the caller; a false return destroys the resource and retries.
	HealthCheck func(ctx context.Context, v any) bool
	Clock       clock.Clock
}

// Pool wraps puddle.Pool[T] with min-pool-size maintenance and
// health-check-before-acquire behavior.
type Pool[T any] struct {
	inner *puddle.Pool[T]
	opts  Options
}

// New builds a Pool whose resources are created by constructor and torn
// down by destructor, per puddle's contract.
func New[T any](constructor func(ctx context.Context) (T, error), destructor func(T), opts Options) (*Pool[T], error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	inner, err := puddle.NewPool(&puddle.Config[T]{
		Constructor: func(ctx context.Context) (T, error) { return constructor(ctx) },
		Destructor:  destructor,
		MaxSize:     opts.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	return &Pool[T]{inner: inner, opts: opts}, nil
}

// Acquire blocks until a resource is available or ctx is done. If
// HealthCheck is configured and reports a resource unhealthy, it is
// destroyed and acquisition retries once more before giving up.
func (p *Pool[T]) Acquire(ctx context.Context) (*puddle.Resource[T], error) {
	res, err := p.inner.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, herrors.Wrap(herrors.CodePermanent, "pool exhausted: no resource freed before deadline", err)
		}
		return nil, err
	}
	if p.opts.HealthCheck != nil && !p.opts.HealthCheck(ctx, res.Value()) {
		res.Destroy()
		res, err = p.inner.Acquire(ctx)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// EnsureMinIdle tops up idle resources to MinSize, creating new ones as
// needed. Intended to run once at startup and periodically thereafter.
func (p *Pool[T]) EnsureMinIdle(ctx context.Context) error {
	if p.opts.MinSize <= 0 {
		return nil
	}
	stat := p.inner.Stat()
	deficit := int(p.opts.MinSize) - int(stat.IdleResources())
	for i := 0; i < deficit; i++ {
		if err := p.inner.CreateResource(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ReapIdle destroys idle resources that have sat unused longer than
// IdleTimeout, always leaving at least MinSize idle resources behind.
func (p *Pool[T]) ReapIdle() {
	if p.opts.IdleTimeout <= 0 {
		return
	}
	idle := p.inner.AcquireAllIdle()

	kept := 0
	for _, res := range idle {
		if kept < int(p.opts.MinSize) || res.IdleDuration() < p.opts.IdleTimeout {
			kept++
			res.Release()
			continue
		}
		res.Destroy()
	}
}

// Stat returns puddle's current pool statistics.
func (p *Pool[T]) Stat() *puddle.Stat {
	return p.inner.Stat()
}

// Close destroys every resource and stops the pool.
func (p *Pool[T]) Close() {
	p.inner.Close()
}
