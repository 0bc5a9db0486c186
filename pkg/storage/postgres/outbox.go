// Package postgres adapts the pgx/v5 driver into the storage seams:
// claim-check with FOR UPDATE SKIP LOCKED, reservation-window leasing,
// and retry bookkeeping over pgx's pool and Tx types.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/storage"
)

var errNotPgxTx = errors.New("postgres: tx was not produced by WrapTx")

const insertOutboxSQL = `
INSERT INTO message_outbox (message_id, routing_key, body, created_at, status, next_retry_at)
VALUES ($1, $2, $3, $4, 'pending', $4)
`

const claimOutboxSQL = `
SELECT id, message_id, routing_key, body, attempts
FROM message_outbox
WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
ORDER BY next_retry_at ASC, created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`

const reserveOutboxSQL = `
UPDATE message_outbox SET status = 'processing', next_retry_at = $2 WHERE id = $1
`

const pendingCountSQL = `
SELECT COUNT(*) FROM message_outbox WHERE status IN ('pending', 'processing')
`

const markSentSQL = `
UPDATE message_outbox SET status = 'sent', sent_at = $2, last_error = NULL WHERE id = $1
`

const markFailedSQL = `
UPDATE message_outbox SET status = 'pending', attempts = attempts + 1, next_retry_at = $2, last_error = $3 WHERE id = $1
`

const markDeadSQL = `
UPDATE message_outbox SET status = 'dead', attempts = attempts + 1, last_error = $2 WHERE id = $1
`

// Outbox implements storage.OutboxStorage against a pgxpool.Pool.
type Outbox struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewOutbox builds an Outbox storage adapter.
func NewOutbox(pool *pgxpool.Pool, c clock.Clock) *Outbox {
	if c == nil {
		c = clock.New()
	}
	return &Outbox{pool: pool, clock: c}
}

// pgxTx wraps pgx.Tx to satisfy storage.Tx.
type pgxTx struct{ tx pgx.Tx }

// WrapTx adapts an already-open pgx.Tx (the caller's business
// transaction) into a storage.Tx the outbox insert runs against.
func WrapTx(tx pgx.Tx) storage.Tx { return pgxTx{tx: tx} }

func (t pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// InsertPending inserts an outbox row inside the caller's business
// transaction, so the write succeeds or rolls back atomically with it.
func (o *Outbox) InsertPending(ctx context.Context, tx storage.Tx, messageID uuid.UUID, routingKey string, body []byte) error {
	pt, ok := tx.(pgxTx)
	if !ok {
		return errNotPgxTx
	}
	_, err := pt.tx.Exec(ctx, insertOutboxSQL, messageID, routingKey, body, o.clock.Now().UTC())
	return err
}

// ClaimPending runs the two-phase claim-check: select due rows with
// SKIP LOCKED, mark them 'processing' with a reservation window acting
// as a lease, commit, then hand the claimed batch back for out-of-tx
// publish. Crash recovery relies on the lease expiring back to 'pending'
// eligibility once next_retry_at elapses — callers should re-arm that
// via MarkFailed on a timeout supervisor, or simply let the next
// scheduled run's WHERE clause pick it back up once the reservation
// passes.
func (o *Outbox) ClaimPending(ctx context.Context, limit int, reservation time.Duration) ([]storage.OutboxRecord, error) {
	tx, err := o.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, claimOutboxSQL, limit)
	if err != nil {
		return nil, err
	}

	var batch []storage.OutboxRecord
	for rows.Next() {
		var rec storage.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.RoutingKey, &rec.Body, &rec.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, tx.Commit(ctx)
	}

	lease := o.clock.Now().UTC().Add(reservation)
	for _, rec := range batch {
		if _, err := tx.Exec(ctx, reserveOutboxSQL, rec.ID, lease); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := o.pool.QueryRow(ctx, pendingCountSQL).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id int64) error {
	_, err := o.pool.Exec(ctx, markSentSQL, id, o.clock.Now().UTC())
	return err
}

func (o *Outbox) MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, lastErr string) error {
	_, err := o.pool.Exec(ctx, markFailedSQL, id, nextRetryAt.UTC(), lastErr)
	return err
}

func (o *Outbox) MarkDead(ctx context.Context, id int64, lastErr string) error {
	_, err := o.pool.Exec(ctx, markDeadSQL, id, lastErr)
	return err
}
