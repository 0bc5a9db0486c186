package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/dispatcher"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/storage/memory"
)

func TestScheduledRouter_RoutesCommandThroughCommandDispatch(t *testing.T) {
	commands := dispatcher.NewCommandDispatcher()
	invoked := false
	require.NoError(t, commands.Register(createOrder{}, func(ctx context.Context, cmd message.Command) (any, error) {
		invoked = true
		return nil, nil
	}))
	r := dispatcher.NewScheduledRouter(commands, dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{}), nil, 0)

	require.NoError(t, r.Route(context.Background(), newCreateOrder("o1"), "", nil))
	assert.True(t, invoked)
}

func TestScheduledRouter_RejectsQuery(t *testing.T) {
	r := dispatcher.NewScheduledRouter(dispatcher.NewCommandDispatcher(), dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{}), nil, 0)

	err := r.Route(context.Background(), newGetOrder("o1"), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reply channel")
}

func TestScheduledRouter_FansOutEvent(t *testing.T) {
	events := dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{})
	calls := 0
	require.NoError(t, events.Register(orderShipped{}, func(ctx context.Context, evt message.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, events.Register(orderShipped{}, func(ctx context.Context, evt message.Event) error {
		calls++
		return nil
	}))
	r := dispatcher.NewScheduledRouter(dispatcher.NewCommandDispatcher(), events, nil, 0)

	require.NoError(t, r.Route(context.Background(), newOrderShipped("o1"), "", nil))
	assert.Equal(t, 2, calls)
}

func TestScheduledRouter_ExplicitDestinationEnqueues(t *testing.T) {
	queues := memory.NewQueue()
	r := dispatcher.NewScheduledRouter(dispatcher.NewCommandDispatcher(), dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{}), queues, 0)

	require.NoError(t, r.Route(context.Background(), nil, "reports", []byte(`{"n":1}`)))

	depth, err := queues.GetQueueDepth(context.Background(), "reports")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestScheduledRouter_DestinationWithoutQueueStorageFails(t *testing.T) {
	r := dispatcher.NewScheduledRouter(dispatcher.NewCommandDispatcher(), dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{}), nil, 0)
	assert.Error(t, r.Route(context.Background(), nil, "reports", nil))
}
