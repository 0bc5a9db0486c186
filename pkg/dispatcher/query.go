package dispatcher

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/pipeline"
	"github.com/heromessaging/messaging/pkg/querycache"
)

// QueryDispatcher resolves the single mandatory-reply handler registered
// for a query's concrete type and invokes it through a Pipeline, with an
// optional caching layer in front.
type QueryDispatcher struct {
	registry *typeRegistry[QueryHandler]
	pipeline *pipeline.Pipeline
	cache    querycache.Cache
	ttl      time.Duration
	group    singleflight.Group
}

// QueryDispatcherOptions configures the optional cache layer. A nil Cache
// disables caching entirely; every Dispatch call invokes the handler.
type QueryDispatcherOptions struct {
	Cache querycache.Cache
	TTL   time.Duration
}

// NewQueryDispatcher builds a dispatcher whose terminal handler resolves
// from the registry and requires exactly one handler — no optional-reply
// distinction, unlike commands.
func NewQueryDispatcher(opts QueryDispatcherOptions, stages ...pipeline.Stage) *QueryDispatcher {
	d := &QueryDispatcher{
		registry: newRegistry[QueryHandler](true),
		cache:    opts.Cache,
		ttl:      opts.TTL,
	}
	terminal := pipeline.Terminal(func(msg message.Message, pctx message.ProcessingContext) (any, error) {
		qry, ok := msg.(message.Query)
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
		reply, err := handlers[0](pctx.Context(), qry)
		if err == nil && reply == nil {
			return nil, herrors.New(herrors.CodePermanent, "query handler returned no reply")
		}
		return reply, err
	})
	d.pipeline = pipeline.New(terminal, stages...)
	return d
}

// Register associates handler with the concrete type of sample.
func (d *QueryDispatcher) Register(sample message.Query, handler QueryHandler) error {
	return d.registry.register(sample, handler)
}

// Dispatch routes qry through the cache (if configured) and pipeline.
// Concurrent Dispatch calls for the same fingerprint coalesce into a
// single handler invocation via singleflight, so a cache stampede never
// builds the same entry twice.
func (d *QueryDispatcher) Dispatch(ctx context.Context, qry message.Query, fingerprint string, maxRetries int) message.Result {
	if d.cache == nil || fingerprint == "" {
		pctx := message.NewContext(ctx, "dispatcher:query", maxRetries)
		return d.pipeline.Process(qry, pctx)
	}

	if cached, found, err := d.cache.Get(ctx, fingerprint); err == nil && found {
		return message.Success(cached, qry)
	}

	v, err, _ := d.group.Do(fingerprint, func() (any, error) {
		pctx := message.NewContext(ctx, "dispatcher:query", maxRetries)
		result := d.pipeline.Process(qry, pctx)
		if result.Succeeded() {
			_ = d.cache.Set(ctx, fingerprint, result.Payload(), d.ttl)
		}
		return result, result.Err()
	})
	if result, ok := v.(message.Result); ok {
		return result
	}
	return message.Failure(err, qry)
}

// Invalidate removes fingerprint from the cache, if one is configured.
func (d *QueryDispatcher) Invalidate(ctx context.Context, fingerprint string) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Invalidate(ctx, fingerprint)
}
