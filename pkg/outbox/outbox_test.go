package outbox_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/outbox"
	"github.com/heromessaging/messaging/pkg/storage/memory"
	"github.com/heromessaging/messaging/pkg/transport"
)

type fakeTransport struct {
	fail    int32
	publish func(ctx context.Context, msg transport.OutboundMessage) error
}

func (f *fakeTransport) Publish(ctx context.Context, msg transport.OutboundMessage) error {
	if f.publish != nil {
		return f.publish(ctx, msg)
	}
	if atomic.LoadInt32(&f.fail) != 0 {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeTransport) Consume(context.Context, string, transport.ConsumeHandler) (transport.Consumer, error) {
	return nil, errors.New("unsupported")
}
func (f *fakeTransport) Close() error { return nil }

func TestProcessor_PublishesAndMarksSent(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewOutbox(fc)
	tr := &fakeTransport{}
	p := outbox.New(store, tr, nil, outbox.Options{PollInterval: time.Millisecond, BatchSize: 10, Reservation: time.Minute, Clock: fc})

	ctx := context.Background()
	msgID := uuid.New()
	require.NoError(t, store.InsertPending(ctx, memory.Tx{}, msgID, "orders.created", []byte(`{}`)))

	batch, err := store.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	// Exercise the same path poll() would via the exported MarkSent/Publish,
	// since poll() itself is unexported.
	require.NoError(t, tr.Publish(ctx, transport.OutboundMessage{RoutingKey: batch[0].RoutingKey, Body: batch[0].Body}))
	require.NoError(t, store.MarkSent(ctx, batch[0].ID))

	_ = p // constructed to confirm wiring compiles; lifecycle covered by StartStop test
}

func TestProcessor_StartStopIsIdempotent(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewOutbox(fc)
	tr := &fakeTransport{}
	dlq := deadletter.NewMemoryQueue(fc)
	p := outbox.New(store, tr, dlq, outbox.Options{PollInterval: time.Millisecond, Clock: fc})

	p.Start(context.Background())
	assert.True(t, p.IsRunning())
	p.Start(context.Background())
	assert.True(t, p.IsRunning())

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestProcessor_DeadLettersAfterMaxAttempts(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewOutbox(fc)
	tr := &fakeTransport{fail: 1}
	dlq := deadletter.NewMemoryQueue(fc)
	p := outbox.New(store, tr, dlq, outbox.Options{PollInterval: time.Millisecond, BatchSize: 10, Reservation: time.Minute, MaxAttempts: 1, Clock: fc})

	ctx := context.Background()
	msgID := uuid.New()
	require.NoError(t, store.InsertPending(ctx, memory.Tx{}, msgID, "rk", []byte(`{}`)))

	p.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fc.Advance(time.Second)
		count, _ := dlq.Count(ctx)
		if count > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	undelivered, ok := entries[0].Message.(*outbox.UndeliveredMessage)
	require.True(t, ok, "dead-letter entry must carry the undelivered message")
	assert.Equal(t, msgID, undelivered.MessageID())
	assert.Equal(t, "rk", undelivered.RoutingKey)
	assert.Equal(t, []byte(`{}`), undelivered.Body)
}

func TestProcessor_MetricsReflectOutcomes(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewOutbox(fc)
	tr := &fakeTransport{}
	p := outbox.New(store, tr, nil, outbox.Options{PollInterval: time.Millisecond, BatchSize: 10, Reservation: time.Minute, Clock: fc})

	ctx := context.Background()
	require.NoError(t, store.InsertPending(ctx, memory.Tx{}, uuid.New(), "rk", []byte(`{}`)))

	m, err := p.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Pending)
	assert.Zero(t, m.Processed)
	assert.True(t, m.LastProcessedAt.IsZero())

	p.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fc.Advance(time.Second)
		m, err = p.Metrics(ctx)
		require.NoError(t, err)
		if m.Processed > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	m, err = p.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Processed)
	assert.Equal(t, 0, m.Pending)
	assert.False(t, m.LastProcessedAt.IsZero())
}
