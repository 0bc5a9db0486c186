package dispatcher

import (
	"context"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/pipeline"
)

// CommandDispatcher resolves the single handler registered for a
// command's concrete type and invokes it through a Pipeline built once
// at construction.
type CommandDispatcher struct {
	registry *typeRegistry[CommandHandler]
	pipeline *pipeline.Pipeline
}

// NewCommandDispatcher builds a dispatcher whose terminal handler
// resolves from the registry; stages wrap that resolution the same way
// they would any other pipeline.
func NewCommandDispatcher(stages ...pipeline.Stage) *CommandDispatcher {
	d := &CommandDispatcher{registry: newRegistry[CommandHandler](true)}
	terminal := pipeline.Terminal(func(msg message.Message, pctx message.ProcessingContext) (any, error) {
		cmd, ok := msg.(message.Command)
		if !ok {
			return nil, herrors.ErrInvalidMessage
		}
		handlers := d.registry.lookup(msg)
		if len(handlers) == 0 {
			return nil, herrors.ErrNoHandler
		}
		if len(handlers) > 1 {
			return nil, herrors.ErrAmbiguousHandler
		}
		return handlers[0](pctx.Context(), cmd)
	})
	d.pipeline = pipeline.New(terminal, stages...)
	return d
}

// Register associates handler with the concrete type of a zero-value
// sample of the command (use a typed nil-payload instance, e.g.
// CreateOrder{}, purely to key the registry by reflect.Type).
func (d *CommandDispatcher) Register(sample message.Command, handler CommandHandler) error {
	return d.registry.register(sample, handler)
}

// Dispatch routes cmd through the pipeline to its resolved handler.
func (d *CommandDispatcher) Dispatch(ctx context.Context, cmd message.Command, maxRetries int) message.Result {
	pctx := message.NewContext(ctx, "dispatcher:command", maxRetries)
	return d.pipeline.Process(cmd, pctx)
}
