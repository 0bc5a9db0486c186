package message

import (
	"context"
	"time"
)

// ProcessingContext is the request-scoped container carried through the
// pipeline alongside the message. It is immutable except through the
// With* helpers, each of which returns a modified copy.
type ProcessingContext struct {
	ctx context.Context //nolint:containedctx // carried deliberately per stage contract

	Component      string
	RetryCount     int
	MaxRetries     int
	FirstFailureAt time.Time
	LastFailureAt  time.Time
	Metadata       Metadata
}

// NewContext builds a ProcessingContext rooted at ctx for the named
// component (e.g. "outbox", "inbox", "dispatcher:command").
func NewContext(ctx context.Context, component string, maxRetries int) ProcessingContext {
	return ProcessingContext{
		ctx:        ctx,
		Component:  component,
		MaxRetries: maxRetries,
		Metadata:   Metadata{},
	}
}

// Context returns the underlying cancellation-carrying context.Context.
func (c ProcessingContext) Context() context.Context { return c.ctx }

// Done mirrors context.Context.Done for cooperative cancellation checks.
func (c ProcessingContext) Done() <-chan struct{} { return c.ctx.Done() }

// Cancelled reports whether the carried context has been cancelled.
func (c ProcessingContext) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// WithContext returns a copy carrying a different context.Context
// (typically one derived with a timeout).
func (c ProcessingContext) WithContext(ctx context.Context) ProcessingContext {
	c.ctx = ctx
	return c
}

// WithRetry returns a copy with RetryCount incremented and failure
// timestamps updated.
func (c ProcessingContext) WithRetry(now time.Time) ProcessingContext {
	c.RetryCount++
	if c.FirstFailureAt.IsZero() {
		c.FirstFailureAt = now
	}
	c.LastFailureAt = now
	return c
}

// WithMetadata returns a copy with key set in the metadata bag.
func (c ProcessingContext) WithMetadata(key string, value any) ProcessingContext {
	c.Metadata = c.Metadata.Clone()
	c.Metadata[key] = value
	return c
}

// ExhaustedRetries reports whether another retry attempt would exceed
// MaxRetries.
func (c ProcessingContext) ExhaustedRetries() bool {
	return c.RetryCount >= c.MaxRetries
}
