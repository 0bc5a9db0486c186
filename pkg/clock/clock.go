// Package clock abstracts wall-clock access so the processing pipeline,
// resilience decorators, and schedulers never call time.Now directly.
package clock

import "time"

// Clock is the seam every background worker and decorator reads "now"
// through, so tests can drive timers and backoff with virtual time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors the subset of time.Timer the scheduler needs, so fakes can
// replace it without a background goroutine.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Real is the production Clock backed by the standard library.
type Real struct{}

// New returns the production clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTimer(d time.Duration) Timer         { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
