// Package amqp adapts github.com/rabbitmq/amqp091-go into a
// transport.MessageTransport with a reusable DLX + TTL-retry-queue
// topology builder, so queues aren't declared and bound by hand at
// every call site.
package amqp

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange/queue/DLX/retry-queue set a Transport
// declares and binds on connect.
type Topology struct {
	Exchange      string
	ExchangeKind  string // "topic", "direct", "fanout"
	Queue         string
	RoutingKeys   []string
	DeadLetter    string // DLX exchange name, e.g. "<queue>.dlx"
	DeadLetterQ   string // DLQ name bound to DeadLetter
	RetryQueue    string // TTL queue routing back to Queue
	RetryTTLMs    int
}

// DefaultTopology derives conventional names from queue and exchange:
// "<queue>.dlx", "<queue>.dlq", "<queue>.retry".
func DefaultTopology(exchange, queue string, routingKeys []string, retryTTLMs int) Topology {
	return Topology{
		Exchange:     exchange,
		ExchangeKind: "topic",
		Queue:        queue,
		RoutingKeys:  routingKeys,
		DeadLetter:   queue + ".dlx",
		DeadLetterQ:  queue + ".dlq",
		RetryQueue:   queue + ".retry",
		RetryTTLMs:   retryTTLMs,
	}
}

// declare creates the exchange/DLX/DLQ/main-queue/retry-queue set on ch
// and binds the main queue to exchange under every routing key.
func (t Topology) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, t.ExchangeKind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DeadLetter, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(t.DeadLetterQ, "", t.DeadLetter, false, nil); err != nil {
		return err
	}

	mainArgs := amqp.Table{"x-dead-letter-exchange": t.DeadLetter}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, mainArgs)
	if err != nil {
		return err
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.Name,
		"x-message-ttl":             int32(t.RetryTTLMs),
	}
	if _, err := ch.QueueDeclare(t.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return err
	}

	for _, key := range t.RoutingKeys {
		if err := ch.QueueBind(q.Name, key, t.Exchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}
