package dispatcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/storage"
)

// ScheduledRouter decides where a due scheduled message goes: its
// concrete type picks the route — commands go through command dispatch,
// queries are rejected
// (a fired timer has no reply channel to deliver a result on), and
// everything else fans out as an event. A message carrying an explicit
// destination bypasses type inspection and is enqueued there instead.
type ScheduledRouter struct {
	commands   *CommandDispatcher
	events     *EventDispatcher
	queues     storage.QueueStorage
	maxRetries int
}

// NewScheduledRouter builds a router over the given dispatchers. queues
// may be nil when no queue storage is configured; explicit destinations
// then fail with a permanent error instead of being silently dropped.
func NewScheduledRouter(commands *CommandDispatcher, events *EventDispatcher, queues storage.QueueStorage, maxRetries int) *ScheduledRouter {
	return &ScheduledRouter{commands: commands, events: events, queues: queues, maxRetries: maxRetries}
}

// Route delivers one due scheduled message. destination, when non-empty,
// names the queue the raw body is enqueued to; otherwise msg's kind
// picks the dispatch path.
func (r *ScheduledRouter) Route(ctx context.Context, msg message.Message, destination string, body []byte) error {
	if destination != "" {
		if r.queues == nil {
			return herrors.New(herrors.CodePermanent, "scheduled message has destination "+destination+" but no queue storage is configured")
		}
		return r.queues.Enqueue(ctx, destination, body)
	}

	switch m := msg.(type) {
	case message.Command:
		result := r.commands.Dispatch(ctx, m, r.maxRetries)
		return result.Err()
	case message.Query:
		return herrors.New(herrors.CodePermanent, "scheduled queries are not deliverable: no reply channel")
	case message.Event:
		batch := r.events.Dispatch(ctx, m, r.maxRetries)
		for _, res := range batch.Failures() {
			return res.Err()
		}
		return nil
	default:
		return herrors.ErrInvalidMessage
	}
}

// Deliver adapts the router into the scheduler's delivery-handler shape.
// decode turns a stored body back into a typed message; the scheduled
// record's routing key is treated as the explicit destination when set.
func (r *ScheduledRouter) Deliver(decode func(body []byte) (message.Message, error)) func(ctx context.Context, id uuid.UUID, destination string, body []byte) error {
	return func(ctx context.Context, _ uuid.UUID, destination string, body []byte) error {
		if destination != "" {
			return r.Route(ctx, nil, destination, body)
		}
		msg, err := decode(body)
		if err != nil {
			return herrors.Wrap(herrors.CodePermanent, "scheduled message body could not be decoded", err)
		}
		return r.Route(ctx, msg, "", body)
	}
}
