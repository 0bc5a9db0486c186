package inbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/inbox"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/storage/memory"
)

type probeEvent struct{ message.BaseEvent }

func newProbeEvent() probeEvent {
	return probeEvent{BaseEvent: message.BaseEvent{Envelope: message.NewEnvelope()}}
}

func TestProcessor_DispatchesFreshMessage(t *testing.T) {
	fc := clock.NewFake(time.Now())
	p := inbox.New(memory.NewInbox(fc), inbox.Options{Window: time.Hour})

	invoked := false
	msg := newProbeEvent()
	result := p.ProcessIncoming(context.Background(), msg, func(ctx context.Context, m message.Message) message.Result {
		invoked = true
		return message.Success(nil, m)
	})

	assert.True(t, invoked)
	assert.True(t, result.Succeeded())
}

func TestProcessor_SkipsDuplicateMessage(t *testing.T) {
	fc := clock.NewFake(time.Now())
	store := memory.NewInbox(fc)
	p := inbox.New(store, inbox.Options{Window: time.Hour})

	msg := newProbeEvent()
	calls := 0
	handler := func(ctx context.Context, m message.Message) message.Result {
		calls++
		return message.Success(nil, m)
	}

	first := p.ProcessIncoming(context.Background(), msg, handler)
	require.True(t, first.Succeeded())

	second := p.ProcessIncoming(context.Background(), msg, handler)
	assert.True(t, second.Succeeded())
	assert.True(t, second.Duplicate())
	assert.Equal(t, 1, calls, "handler must not run twice for the same message within the window")
}

func TestProcessor_MarksFailedOnHandlerFailure(t *testing.T) {
	fc := clock.NewFake(time.Now())
	p := inbox.New(memory.NewInbox(fc), inbox.Options{Window: time.Hour})

	msg := newProbeEvent()
	result := p.ProcessIncoming(context.Background(), msg, func(ctx context.Context, m message.Message) message.Result {
		return message.Failure(herrors.New(herrors.CodePermanent, "boom"), m)
	})
	assert.True(t, result.Failed())
}

func TestProcessor_MetricsTrackDeduplicationRate(t *testing.T) {
	fc := clock.NewFake(time.Now())
	p := inbox.New(memory.NewInbox(fc), inbox.Options{Window: time.Hour})

	handler := func(ctx context.Context, m message.Message) message.Result {
		return message.Success(nil, m)
	}

	msg := newProbeEvent()
	p.ProcessIncoming(context.Background(), msg, handler)
	p.ProcessIncoming(context.Background(), msg, handler)

	m := p.Metrics()
	assert.Equal(t, uint64(1), m.Processed)
	assert.Equal(t, uint64(1), m.Duplicates)
	assert.Equal(t, uint64(0), m.Failed)
	assert.InDelta(t, 0.5, m.DeduplicationRate, 0.001)
}
