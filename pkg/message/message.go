// Package message defines the envelope types HeroMessaging's core routes:
// commands (one handler, optional reply), queries (one handler, mandatory
// reply), and events (fan-out to N handlers).
package message

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is a free-form bag of request-scoped values attached to a
// message (trace headers, tenant ids, feature flags).
type Metadata map[string]any

// Clone returns a shallow copy, never nil.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Envelope is the root abstraction every Command, Query, and Event embeds.
type Envelope struct {
	ID            uuid.UUID
	Timestamp     time.Time
	CorrelationID string
	CausationID   string
	Metadata      Metadata
}

// NewEnvelope stamps a fresh envelope with a random id and the current
// UTC instant.
func NewEnvelope() Envelope {
	return Envelope{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Metadata:  Metadata{},
	}
}

func (e Envelope) MessageID() uuid.UUID { return e.ID }

// Kind distinguishes the three payload categories the dispatcher routes.
type Kind int

const (
	KindCommand Kind = iota
	KindQuery
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Message is the interface the pipeline and dispatcher operate on.
// Concrete command/query/event payload types embed Envelope and
// implement Kind.
type Message interface {
	MessageID() uuid.UUID
	Kind() Kind
}

// Command is implemented by payload types dispatched to exactly one
// handler, optionally returning a reply.
type Command interface {
	Message
	isCommand()
}

// Query is implemented by payload types dispatched to exactly one handler
// that must return a reply.
type Query interface {
	Message
	isQuery()
}

// Event is implemented by payload types fanned out to zero or more
// handlers.
type Event interface {
	Message
	isEvent()
}

// BaseCommand embeds Envelope and marks a payload as a Command.
type BaseCommand struct{ Envelope }

func (BaseCommand) Kind() Kind { return KindCommand }
func (BaseCommand) isCommand() {}

// BaseQuery embeds Envelope and marks a payload as a Query.
type BaseQuery struct{ Envelope }

func (BaseQuery) Kind() Kind { return KindQuery }
func (BaseQuery) isQuery()   {}

// BaseEvent embeds Envelope and marks a payload as an Event.
type BaseEvent struct{ Envelope }

func (BaseEvent) Kind() Kind { return KindEvent }
func (BaseEvent) isEvent()   {}
