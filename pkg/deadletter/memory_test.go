package deadletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/message"
)

type testCommand struct{ message.BaseCommand }

func newTestCommand() testCommand {
	return testCommand{BaseCommand: message.BaseCommand{Envelope: message.NewEnvelope()}}
}

func TestMemoryQueue_SendListRetryDiscard(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Now())
	q := deadletter.NewMemoryQueue(fake)

	m1 := newTestCommand()
	id1, err := q.Send(ctx, m1, deadletter.FailureContext{Reason: "boom", Component: "outbox"})
	require.NoError(t, err)

	fake.Advance(time.Second)
	m2 := newTestCommand()
	id2, err := q.Send(ctx, m2, deadletter.FailureContext{Reason: "boom again", Component: "inbox"})
	require.NoError(t, err)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id2, entries[0].ID, "newest first")

	ok, err := q.Discard(ctx, id1)
	require.NoError(t, err)
	assert.True(t, ok)

	count, _ = q.Count(ctx)
	assert.Equal(t, 1, count)

	// Terminal transitions are irreversible.
	ok, err = q.Retry(ctx, id1, "command")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.Retry(ctx, id2, "command")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := q.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalByStatus[deadletter.StatusDiscarded])
	assert.Equal(t, 1, stats.TotalByStatus[deadletter.StatusRetried])
	assert.Equal(t, 1, stats.ByComponent["outbox"])
	assert.Equal(t, 1, stats.ByComponent["inbox"])
}

func TestTruncateReason(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, deadletter.TruncateReason(short))

	long := ""
	for i := 0; i < 60; i++ {
		long += "x"
	}
	truncated := deadletter.TruncateReason(long)
	assert.Equal(t, 51, len([]rune(truncated))) // 50 chars + ellipsis rune
}

func TestMemoryQueue_ExpireOlderThanMarksStaleActiveEntries(t *testing.T) {
	fc := clock.NewFake(time.Now())
	q := deadletter.NewMemoryQueue(fc)
	ctx := context.Background()

	id, err := q.Send(ctx, nil, deadletter.FailureContext{Reason: "stale", Component: "outbox"})
	require.NoError(t, err)

	fc.Advance(2 * time.Hour)
	_, err = q.Send(ctx, nil, deadletter.FailureContext{Reason: "fresh", Component: "outbox"})
	require.NoError(t, err)

	n, err := q.ExpireOlderThan(ctx, fc.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, deadletter.StatusExpired, entry.Status)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
