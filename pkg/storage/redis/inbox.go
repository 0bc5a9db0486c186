// Package redis adapts redis/go-redis/v9 into the storage.InboxStorage
// seam: SET NX EX gives the atomic first-writer-wins insert dedup
// needs, with "mark pending" and "mark processed" folded into a single
// per-message state key instead of two separate key spaces.
package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heromessaging/messaging/pkg/storage"
)

const (
	statePending   = "pending"
	stateProcessed = "processed"
	stateFailed    = "failed"
)

// Inbox implements storage.InboxStorage on a single Redis key per
// message id.
type Inbox struct {
	client *redis.Client
	prefix string
}

// NewInbox builds an Inbox storage adapter. Keys are prefixed to avoid
// collisions with other key spaces sharing the same Redis instance.
func NewInbox(client *redis.Client, prefix string) *Inbox {
	if prefix == "" {
		prefix = "inbox:"
	}
	return &Inbox{client: client, prefix: prefix}
}

func (i *Inbox) key(id uuid.UUID) string {
	return i.prefix + id.String()
}

// TryInsertPending sets the message's state to pending with NX (only if
// absent) and a TTL of window; a false return means the key already
// existed, i.e. this message was seen before within the window.
func (i *Inbox) TryInsertPending(ctx context.Context, messageID uuid.UUID, window time.Duration) (bool, error) {
	ok, err := i.client.SetNX(ctx, i.key(messageID), statePending, window).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MarkProcessed overwrites the state, keeping the original TTL via KEEPTTL
// semantics so the dedup window still applies after completion.
func (i *Inbox) MarkProcessed(ctx context.Context, messageID uuid.UUID) error {
	return i.client.Set(ctx, i.key(messageID), stateProcessed, redis.KeepTTL).Err()
}

func (i *Inbox) MarkFailed(ctx context.Context, messageID uuid.UUID) error {
	return i.client.Set(ctx, i.key(messageID), stateFailed, redis.KeepTTL).Err()
}

var _ storage.InboxStorage = (*Inbox)(nil)
