// Package transport defines the wire-level seam the dispatcher and
// outbox/inbox processors publish and consume through, independent of
// any particular broker.
package transport

import "context"

// OutboundMessage is a serialized message ready to hand to a broker.
type OutboundMessage struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]any
	MessageID  string
	Persistent bool
}

// MessageTransport is the broker-agnostic publish/consume seam.
type MessageTransport interface {
	Publish(ctx context.Context, msg OutboundMessage) error
	Consume(ctx context.Context, queue string, handler ConsumeHandler) (Consumer, error)
	Close() error
}

// ConsumeHandler processes one inbound delivery and decides its outcome
// via the MessageContext it's given.
type ConsumeHandler func(ctx context.Context, mctx MessageContext) error

// MessageContext is what a ConsumeHandler uses to report delivery
// outcome back to the transport.
type MessageContext interface {
	Body() []byte
	Headers() map[string]any
	RoutingKey() string
	MessageID() string
	RetryCount() int

	// Acknowledge marks the delivery successfully processed.
	Acknowledge() error
	// Reject resolves the delivery as failed: with requeue it returns to
	// the queue for redelivery, without it the delivery follows the
	// broker's dead-letter routing.
	Reject(requeue bool) error
	// Defer republishes the delivery onto the retry topology (TTL
	// requeue) with an incremented retry count, or routes to the
	// dead-letter path once the retry budget is exhausted.
	Defer(maxRetries int) error
	// DeadLetter sends the delivery straight to the dead-letter path,
	// stamping reason into its headers, bypassing any retry budget.
	DeadLetter(reason string) error
}

// Consumer is a running consume loop; Stop ends it without closing the
// underlying transport.
type Consumer interface {
	Stop() error
}
