package dispatcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/pipeline"
)

// EventDispatcherOptions configures fan-out behavior for events, which
// may have zero to many registered handlers.
type EventDispatcherOptions struct {
	// Concurrent runs all matched handlers concurrently; otherwise they
	// run sequentially in registration order.
	Concurrent bool
	// StopOnFirstFailure aborts remaining handlers once one fails.
	// Default (false) is "continue on failure": every matched handler
	// runs regardless of earlier failures, and the aggregate result
	// reports all of them.
	StopOnFirstFailure bool
	MaxParallelism     int
}

// EventDispatcher resolves all handlers registered for an event's
// concrete type and invokes each one through its own Pipeline instance
// built from the same stage chain.
type EventDispatcher struct {
	registry *typeRegistry[EventHandler]
	stages   []pipeline.Stage
	opts     EventDispatcherOptions
}

// NewEventDispatcher builds a multi-handler event dispatcher. stages wrap
// every handler invocation identically.
func NewEventDispatcher(opts EventDispatcherOptions, stages ...pipeline.Stage) *EventDispatcher {
	if opts.MaxParallelism <= 0 {
		opts.MaxParallelism = 1
	}
	return &EventDispatcher{
		registry: newRegistry[EventHandler](false),
		stages:   stages,
		opts:     opts,
	}
}

// Register adds handler for sample's concrete event type. Unlike
// commands and queries, multiple handlers per type are expected.
func (d *EventDispatcher) Register(sample message.Event, handler EventHandler) error {
	return d.registry.register(sample, handler)
}

// Dispatch invokes every handler registered for evt's type through the
// pipeline, aggregating per-handler outcomes into a BatchResult. An event
// with no registered handlers yields an empty, vacuously-successful
// BatchResult.
func (d *EventDispatcher) Dispatch(ctx context.Context, evt message.Event, maxRetries int) message.BatchResult {
	handlers := d.registry.lookup(evt)
	n := len(handlers)
	results := make([]message.Result, n)

	runOne := func(i int) {
		h := handlers[i]
		pctx := message.NewContext(ctx, "dispatcher:event", maxRetries)
		terminal := pipeline.Terminal(func(msg message.Message, pctx message.ProcessingContext) (any, error) {
			return nil, h(pctx.Context(), msg.(message.Event))
		})
		p := pipeline.New(terminal, d.stages...)
		results[i] = p.Process(evt, pctx)
	}

	if !d.opts.Concurrent {
		for i := 0; i < n; i++ {
			runOne(i)
			if d.opts.StopOnFirstFailure && results[i].Failed() {
				for j := i + 1; j < n; j++ {
					results[j] = message.Failure(context.Canceled, evt)
				}
				break
			}
		}
		return message.NewBatchResult(results)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxParallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if d.opts.StopOnFirstFailure && gctx.Err() != nil {
				results[i] = message.Failure(context.Canceled, evt)
				return nil
			}
			runOne(i)
			if d.opts.StopOnFirstFailure && results[i].Failed() {
				return results[i].Err()
			}
			return nil
		})
	}
	_ = g.Wait()

	return message.NewBatchResult(results)
}
