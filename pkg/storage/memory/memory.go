// Package memory implements every storage.* seam in process memory,
// used for tests and for the outbox/scheduler's default configuration
// when no external store is wired.
package memory

import (
	"context"

	"github.com/heromessaging/messaging/pkg/clock"
)

// Tx is a no-op storage.Tx: the memory adapters write immediately, so
// there's nothing to commit or roll back. Exported so callers have a
// concrete value to pass into InsertPending without a real transaction
// manager.
type Tx struct{}

func (Tx) Commit(context.Context) error   { return nil }
func (Tx) Rollback(context.Context) error { return nil }

func defaultClock(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.New()
	}
	return c
}
