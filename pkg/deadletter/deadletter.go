// Package deadletter implements the durable sink failed messages land in
// after retries are exhausted or a non-transient error is classified:
// a storage-backed contract any backend can serve, not just a broker's
// native dead-letter exchange.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/message"
)

// Status is a dead-letter entry's lifecycle state. Terminal transitions
// (Active -> {Retried, Discarded, Expired}) are irreversible.
type Status string

const (
	StatusActive    Status = "active"
	StatusRetried   Status = "retried"
	StatusDiscarded Status = "discarded"
	StatusExpired   Status = "expired"
)

// FailureContext carries the reason a message was dead-lettered: the
// inner error, the originating component, how many retries had already
// been attempted, when the failure occurred, and any metadata the
// pipeline attached.
type FailureContext struct {
	Reason     string
	InnerError error
	Component  string
	RetryCount int
	FailedAt   time.Time
	Metadata   message.Metadata
}

// Entry is one stored dead-letter record.
type Entry struct {
	ID          uuid.UUID
	Message     message.Message
	Context     FailureContext
	Status      Status
	CreatedAt   time.Time
	RetriedAt   *time.Time
	DiscardedAt *time.Time
}

// Queue is the dead-letter storage and lifecycle contract.
type Queue interface {
	// Send always succeeds; it stores a new Active entry and returns its id.
	Send(ctx context.Context, msg message.Message, fc FailureContext) (uuid.UUID, error)
	// List returns Active entries, newest-first, up to limit.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Retry marks Active -> Retried, requiring msg to be of expectedType's
	// concrete shape (reported by the caller, since this package never
	// re-dispatches; it is the caller's job to re-submit the original
	// message). Returns false if the entry does not exist, is not Active,
	// or the type does not match.
	Retry(ctx context.Context, id uuid.UUID, expectedType string) (bool, error)
	// Discard marks Active -> Discarded.
	Discard(ctx context.Context, id uuid.UUID) (bool, error)
	// Count returns the number of Active entries.
	Count(ctx context.Context) (int, error)
	// Statistics returns an aggregate snapshot.
	Statistics(ctx context.Context) (Statistics, error)
}

// Statistics is an aggregate snapshot: totals by status, grouped
// counts by component and by (truncated) reason, and the oldest/newest
// entry timestamps across all statuses.
type Statistics struct {
	TotalByStatus   map[Status]int
	ByComponent     map[string]int
	ByReason        map[string]int
	Oldest          time.Time
	Newest          time.Time
}

// TruncateReason caps reason to 50 characters, appending an ellipsis
// when truncated, so grouped statistics stay readable for long reasons.
func TruncateReason(reason string) string {
	const maxLen = 50
	r := []rune(reason)
	if len(r) <= maxLen {
		return reason
	}
	return string(r[:maxLen]) + "…"
}
