package dispatcher_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/dispatcher"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/querycache"
)

type getOrder struct {
	message.BaseQuery
	OrderID string
}

func newGetOrder(id string) getOrder {
	return getOrder{BaseQuery: message.BaseQuery{Envelope: message.NewEnvelope()}, OrderID: id}
}

func TestQueryDispatcher_RequiresReply(t *testing.T) {
	d := dispatcher.NewQueryDispatcher(dispatcher.QueryDispatcherOptions{})
	require.NoError(t, d.Register(getOrder{}, func(context.Context, message.Query) (any, error) { return nil, nil }))

	result := d.Dispatch(context.Background(), newGetOrder("x"), "", 0)
	assert.True(t, result.Failed())
}

func TestQueryDispatcher_CachesSuccessfulReply(t *testing.T) {
	cache := querycache.NewMemory()
	d := dispatcher.NewQueryDispatcher(dispatcher.QueryDispatcherOptions{Cache: cache, TTL: time.Minute})

	var calls int32
	require.NoError(t, d.Register(getOrder{}, func(context.Context, message.Query) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "reply", nil
	}))

	fp, err := querycache.Fingerprint("getOrder", "x")
	require.NoError(t, err)

	r1 := d.Dispatch(context.Background(), newGetOrder("x"), fp, 0)
	require.True(t, r1.Succeeded())
	r2 := d.Dispatch(context.Background(), newGetOrder("x"), fp, 0)
	require.True(t, r2.Succeeded())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "reply", r2.Payload())
}

func TestQueryDispatcher_InvalidateForcesRebuild(t *testing.T) {
	cache := querycache.NewMemory()
	d := dispatcher.NewQueryDispatcher(dispatcher.QueryDispatcherOptions{Cache: cache, TTL: time.Minute})

	var calls int32
	require.NoError(t, d.Register(getOrder{}, func(context.Context, message.Query) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "reply", nil
	}))

	fp, err := querycache.Fingerprint("getOrder", "x")
	require.NoError(t, err)

	d.Dispatch(context.Background(), newGetOrder("x"), fp, 0)
	require.NoError(t, d.Invalidate(context.Background(), fp))
	d.Dispatch(context.Background(), newGetOrder("x"), fp, 0)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
