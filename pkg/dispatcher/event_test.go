package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/dispatcher"
	"github.com/heromessaging/messaging/pkg/message"
)

type orderShipped struct {
	message.BaseEvent
	OrderID string
}

func newOrderShipped(id string) orderShipped {
	return orderShipped{BaseEvent: message.BaseEvent{Envelope: message.NewEnvelope()}, OrderID: id}
}

func TestEventDispatcher_FansOutToAllHandlers(t *testing.T) {
	d := dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{})

	var mu sync.Mutex
	var seen []string
	record := func(name string) dispatcher.EventHandler {
		return func(ctx context.Context, evt message.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name)
			return nil
		}
	}
	require.NoError(t, d.Register(orderShipped{}, record("notify")))
	require.NoError(t, d.Register(orderShipped{}, record("audit")))

	result := d.Dispatch(context.Background(), newOrderShipped("o1"), 0)
	assert.Equal(t, 2, result.Total())
	assert.True(t, result.AllSucceeded())
	assert.ElementsMatch(t, []string{"notify", "audit"}, seen)
}

func TestEventDispatcher_NoHandlersIsVacuouslySuccessful(t *testing.T) {
	d := dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{})
	result := d.Dispatch(context.Background(), newOrderShipped("o1"), 0)
	assert.Equal(t, 0, result.Total())
	assert.True(t, result.AllSucceeded())
}

func TestEventDispatcher_ContinuesOnFailureByDefault(t *testing.T) {
	d := dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{})
	second := false
	require.NoError(t, d.Register(orderShipped{}, func(context.Context, message.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, d.Register(orderShipped{}, func(context.Context, message.Event) error {
		second = true
		return nil
	}))

	result := d.Dispatch(context.Background(), newOrderShipped("o1"), 0)
	assert.Equal(t, 1, len(result.Failures()))
	assert.True(t, second, "second handler must still run after the first failed")
}

func TestEventDispatcher_StopOnFirstFailure(t *testing.T) {
	d := dispatcher.NewEventDispatcher(dispatcher.EventDispatcherOptions{StopOnFirstFailure: true})
	second := false
	require.NoError(t, d.Register(orderShipped{}, func(context.Context, message.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, d.Register(orderShipped{}, func(context.Context, message.Event) error {
		second = true
		return nil
	}))

	d.Dispatch(context.Background(), newOrderShipped("o1"), 0)
	assert.False(t, second, "stop-on-first-failure must skip remaining handlers")
}
