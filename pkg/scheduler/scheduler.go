// Package scheduler implements time-based message release in two
// variants: an in-memory one-timer-per-message scheduler for
// single-process use, and a storage-backed polling variant
// (poller/deliverer/cleaner) for durable, multi-replica delivery.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Deliver is invoked when a scheduled message comes due.
type Deliver func(ctx context.Context, id uuid.UUID, routingKey string, body []byte) error

// pastTolerance is how far in the past a deliver_at may lie and still be
// accepted (delivered immediately); anything older is rejected.
const pastTolerance = time.Second

// ErrDeliverAtInPast is returned by Schedule when deliver_at lies more
// than the tolerance before the clock's current time.
var ErrDeliverAtInPast = herrors.New(herrors.CodeInvalid, "scheduler: deliver_at is in the past")

func validateDeliverAt(now, deliverAt time.Time) error {
	if deliverAt.Before(now.Add(-pastTolerance)) {
		return ErrDeliverAtInPast
	}
	return nil
}

// Scheduler is the common contract both variants implement, including
// the status-query operations (Get, Pending, PendingCount) so a caller
// can observe a scheduled message's lifecycle regardless of which
// variant is backing it.
type Scheduler interface {
	Schedule(ctx context.Context, id uuid.UUID, deliverAt time.Time, routingKey string, body []byte) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (storage.ScheduledMessageRecord, error)
	Pending(ctx context.Context, query storage.ScheduledQuery) ([]storage.ScheduledMessageRecord, error)
	PendingCount(ctx context.Context) (int, error)
	Start(ctx context.Context)
	Stop()
}
