// Package storage defines the core's persistence seams — message,
// outbox, inbox, queue, and scheduled-message storage — independent of
// any particular backend.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord is a row of the transactional outbox.
type OutboxRecord struct {
	ID          int64
	MessageID   uuid.UUID
	RoutingKey  string
	Body        []byte
	Status      string
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
	SentAt      time.Time
	LastError   string
}

// OutboxStorage is the transactional-outbox seam: InsertPending
// runs inside the caller's business transaction; ClaimPending,
// MarkSent, MarkFailed, and MarkDead run standalone against the
// claim-check pattern.
type OutboxStorage interface {
	InsertPending(ctx context.Context, tx Tx, messageID uuid.UUID, routingKey string, body []byte) error
	ClaimPending(ctx context.Context, limit int, reservation time.Duration) ([]OutboxRecord, error)
	PendingCount(ctx context.Context) (int, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id int64, lastErr string) error
}

// Tx is the storage-agnostic transaction handle business code runs its
// own writes and the outbox insert through.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MessageStorage persists raw message payloads keyed by id (used by the
// scheduler and saga stores to look up the message being acted on).
type MessageStorage interface {
	Save(ctx context.Context, id uuid.UUID, body []byte) error
	Load(ctx context.Context, id uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// InboxRecord tracks a processed-or-in-flight inbound message for
// dedup.
type InboxRecord struct {
	MessageID   uuid.UUID
	ReceivedAt  time.Time
	ProcessedAt time.Time
	Status      string // "pending", "processed", "failed"
}

// InboxStorage is the dedup seam the inbox processor checks before
// dispatching an inbound message.
type InboxStorage interface {
	// TryInsertPending inserts a pending record for messageID if one
	// doesn't already exist within window; returns false when a record
	// already exists (i.e. this is a duplicate).
	TryInsertPending(ctx context.Context, messageID uuid.UUID, window time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, messageID uuid.UUID) error
	MarkFailed(ctx context.Context, messageID uuid.UUID) error
}

// ScheduledStatus is a scheduled message's lifecycle state.
type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledDelivered ScheduledStatus = "delivered"
	ScheduledCancelled ScheduledStatus = "cancelled"
	ScheduledFailed    ScheduledStatus = "failed"
)

// ScheduledMessageRecord is a message scheduled for future delivery.
// Priority breaks ties among rows with the same DeliverAt:
// ClaimDue and Pending order by deliver_at ASC, priority DESC.
type ScheduledMessageRecord struct {
	ID           uuid.UUID
	DeliverAt    time.Time
	RoutingKey   string
	Body         []byte
	Priority     int
	Status       ScheduledStatus
	ClaimedBy    string
	ClaimedAt    time.Time
	ErrorMessage string
}

// ScheduledQuery filters ScheduledMessageStorage.Pending.
type ScheduledQuery struct {
	// Before, if non-zero, restricts to rows due at or before this time.
	Before time.Time
	Limit  int
}

// ScheduledMessageStorage is the polling-variant scheduler's backing
// store.
type ScheduledMessageStorage interface {
	Schedule(ctx context.Context, rec ScheduledMessageRecord) error
	Get(ctx context.Context, id uuid.UUID) (ScheduledMessageRecord, error)
	ClaimDue(ctx context.Context, now time.Time, limit int, owner string, lease time.Duration) ([]ScheduledMessageRecord, error)
	// Pending lists rows in ScheduledPending state matching query,
	// ordered deliver_at ASC, priority DESC.
	Pending(ctx context.Context, query ScheduledQuery) ([]ScheduledMessageRecord, error)
	PendingCount(ctx context.Context) (int, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	// DeleteResolvedBefore removes Delivered and Cancelled rows whose
	// delivery time precedes cutoff, returning how many were removed.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// QueueItem is one durable-queue entry handed to a consumer; Receipt
// identifies this specific delivery for Acknowledge/Reject, the way an
// AMQP delivery tag does.
type QueueItem struct {
	Receipt string
	Body    []byte
}

// QueueStorage is a minimal durable FIFO seam used where a broker isn't
// available (e.g. local/dev transport): named-queue lifecycle plus
// ack/reject consumption.
type QueueStorage interface {
	CreateQueue(ctx context.Context, queue string) error
	DeleteQueue(ctx context.Context, queue string) error
	GetQueues(ctx context.Context) ([]string, error)
	QueueExists(ctx context.Context, queue string) (bool, error)

	Enqueue(ctx context.Context, queue string, body []byte) error
	// Dequeue removes and returns the head item, marking it in-flight
	// until Acknowledge or Reject resolves it.
	Dequeue(ctx context.Context, queue string) (QueueItem, bool, error)
	// Peek returns the head item without removing it.
	Peek(ctx context.Context, queue string) (QueueItem, bool, error)
	Acknowledge(ctx context.Context, queue string, receipt string) error
	// Reject resolves a dequeued item as failed; requeue puts it back
	// at the tail instead of discarding it.
	Reject(ctx context.Context, queue string, receipt string, requeue bool) error
	GetQueueDepth(ctx context.Context, queue string) (int, error)
}
