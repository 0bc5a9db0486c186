package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/storage"
)

type inboxEntry struct {
	status    string
	expiresAt time.Time
}

// Inbox is an in-memory storage.InboxStorage with window-based expiry
// checked lazily on access.
type Inbox struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*inboxEntry
	clock   clock.Clock
}

// NewInbox builds an empty in-memory inbox.
func NewInbox(c clock.Clock) *Inbox {
	return &Inbox{entries: make(map[uuid.UUID]*inboxEntry), clock: defaultClock(c)}
}

func (i *Inbox) TryInsertPending(_ context.Context, messageID uuid.UUID, window time.Duration) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clock.Now()
	if existing, ok := i.entries[messageID]; ok && now.Before(existing.expiresAt) {
		return false, nil
	}
	i.entries[messageID] = &inboxEntry{status: "pending", expiresAt: now.Add(window)}
	return true, nil
}

func (i *Inbox) MarkProcessed(_ context.Context, messageID uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if e, ok := i.entries[messageID]; ok {
		e.status = "processed"
	}
	return nil
}

func (i *Inbox) MarkFailed(_ context.Context, messageID uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if e, ok := i.entries[messageID]; ok {
		e.status = "failed"
	}
	return nil
}

var _ storage.InboxStorage = (*Inbox)(nil)
