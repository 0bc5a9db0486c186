package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/storage/redis"
)

func newTestInbox(t *testing.T) *redis.Inbox {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return redis.NewInbox(client, "test-inbox:")
}

func TestInbox_TryInsertPendingDedupsWithinWindow(t *testing.T) {
	inbox := newTestInbox(t)
	ctx := context.Background()
	id := uuid.New()

	first, err := inbox.TryInsertPending(ctx, id, time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := inbox.TryInsertPending(ctx, id, time.Minute)
	require.NoError(t, err)
	require.False(t, second)
}

func TestInbox_MarkProcessedThenFailedOverwritesState(t *testing.T) {
	inbox := newTestInbox(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := inbox.TryInsertPending(ctx, id, time.Minute)
	require.NoError(t, err)
	require.NoError(t, inbox.MarkProcessed(ctx, id))
	require.NoError(t, inbox.MarkFailed(ctx, id))
}
