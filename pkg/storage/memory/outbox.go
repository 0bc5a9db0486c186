package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Outbox is an in-memory storage.OutboxStorage, claim-checking by simple
// mutex-guarded scan rather than SKIP LOCKED row locks.
type Outbox struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*storage.OutboxRecord
	clock  clock.Clock
}

// NewOutbox builds an empty in-memory outbox.
func NewOutbox(c clock.Clock) *Outbox {
	return &Outbox{rows: make(map[int64]*storage.OutboxRecord), clock: defaultClock(c)}
}

func (o *Outbox) InsertPending(_ context.Context, _ storage.Tx, messageID uuid.UUID, routingKey string, body []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.rows[o.nextID] = &storage.OutboxRecord{
		ID:          o.nextID,
		MessageID:   messageID,
		RoutingKey:  routingKey,
		Body:        body,
		Status:      "pending",
		CreatedAt:   o.clock.Now().UTC(),
		NextRetryAt: o.clock.Now().UTC(),
	}
	return nil
}

func (o *Outbox) ClaimPending(_ context.Context, limit int, reservation time.Duration) ([]storage.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now().UTC()
	var claimed []storage.OutboxRecord
	for _, row := range o.rows {
		if len(claimed) >= limit {
			break
		}
		if row.Status != "pending" || row.NextRetryAt.After(now) {
			continue
		}
		row.Status = "processing"
		row.NextRetryAt = now.Add(reservation)
		claimed = append(claimed, *row)
	}
	return claimed, nil
}

func (o *Outbox) PendingCount(_ context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, row := range o.rows {
		if row.Status == "pending" || row.Status == "processing" {
			n++
		}
	}
	return n, nil
}

func (o *Outbox) MarkSent(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok {
		return nil
	}
	row.Status = "sent"
	row.SentAt = o.clock.Now().UTC()
	row.LastError = ""
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id int64, nextRetryAt time.Time, lastErr string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok {
		return nil
	}
	row.Status = "pending"
	row.Attempts++
	row.NextRetryAt = nextRetryAt
	row.LastError = lastErr
	return nil
}

func (o *Outbox) MarkDead(_ context.Context, id int64, lastErr string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[id]
	if !ok {
		return nil
	}
	row.Status = "dead"
	row.Attempts++
	row.LastError = lastErr
	return nil
}

var _ storage.OutboxStorage = (*Outbox)(nil)
