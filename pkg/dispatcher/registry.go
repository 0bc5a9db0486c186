// Package dispatcher routes commands, queries, and events: resolving
// user handlers by concrete message type and invoking them through a
// Pipeline, with the query-cache and event-fanout behavior each kind
// needs.
package dispatcher

import (
	"context"
	"reflect"
	"sync"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
)

// CommandHandler handles exactly one command type, optionally returning
// a reply payload.
type CommandHandler func(ctx context.Context, cmd message.Command) (any, error)

// QueryHandler handles exactly one query type and must return a reply.
type QueryHandler func(ctx context.Context, qry message.Query) (any, error)

// EventHandler handles one event type; an event may have 0..N handlers.
type EventHandler func(ctx context.Context, evt message.Event) error

type typeRegistry[H any] struct {
	mu      sync.RWMutex
	byType  map[reflect.Type][]H
	oneShot bool // commands/queries: at most one handler per type
}

func newRegistry[H any](oneShot bool) *typeRegistry[H] {
	return &typeRegistry[H]{byType: make(map[reflect.Type][]H), oneShot: oneShot}
}

// register adds a handler for msg's concrete type. For one-shot
// registries (commands, queries) a second registration for the same
// type is rejected, the same duplicate-rejection discipline the plugin
// registry applies to names.
func (r *typeRegistry[H]) register(msg message.Message, h H) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := reflect.TypeOf(msg)
	existing := r.byType[t]
	if r.oneShot && len(existing) > 0 {
		return herrors.New(herrors.CodePermanent, "handler already registered for "+t.String())
	}
	r.byType[t] = append(existing, h)
	return nil
}

func (r *typeRegistry[H]) lookup(msg message.Message) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[reflect.TypeOf(msg)]
}
