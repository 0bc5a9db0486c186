package amqp

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/heromessaging/messaging/pkg/transport"
)

const headerRetryCount = "x-retry-count"

// Consume starts a consume loop on queue, invoking handler for every
// delivery and running until ctx is cancelled or Stop is called.
// Topology (DLX, retry queue) must already have been declared via
// DeclareTopology.
func (t *Transport) Consume(ctx context.Context, queue string, handler transport.ConsumeHandler) (transport.Consumer, error) {
	t.mu.Lock()
	if err := t.ensureConnectedLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	ch := t.ch
	t.mu.Unlock()

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	c := &consumer{transport: t, channel: ch, queue: queue, stop: make(chan struct{})}
	go c.loop(ctx, deliveries, handler)
	return c, nil
}

type consumer struct {
	transport *Transport
	channel   *amqp.Channel
	queue     string
	stop      chan struct{}
}

func (c *consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery, handler transport.ConsumeHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			mctx := &deliveryContext{channel: c.channel, delivery: d, retryQueue: c.queue + ".retry", dlx: c.queue + ".dlx"}
			_ = handler(ctx, mctx)
		}
	}
}

func (c *consumer) Stop() error {
	close(c.stop)
	return nil
}

// deliveryContext adapts an amqp.Delivery into a transport.MessageContext,
// turning retry-count-header and Nack plumbing into the
// Acknowledge/Reject/Defer/DeadLetter contract.
type deliveryContext struct {
	channel    *amqp.Channel
	delivery   amqp.Delivery
	retryQueue string
	dlx        string
}

func (d *deliveryContext) Body() []byte       { return d.delivery.Body }
func (d *deliveryContext) RoutingKey() string { return d.delivery.RoutingKey }
func (d *deliveryContext) MessageID() string  { return d.delivery.MessageId }

func (d *deliveryContext) Headers() map[string]any {
	out := make(map[string]any, len(d.delivery.Headers))
	for k, v := range d.delivery.Headers {
		out[k] = v
	}
	return out
}

func (d *deliveryContext) RetryCount() int {
	if v, ok := d.delivery.Headers[headerRetryCount].(int32); ok {
		return int(v)
	}
	return 0
}

func (d *deliveryContext) Acknowledge() error {
	return d.delivery.Ack(false)
}

// Reject resolves the delivery as failed. Nack without requeue triggers
// the DLX binding declared on the main queue; with requeue the broker
// redelivers it.
func (d *deliveryContext) Reject(requeue bool) error {
	return d.delivery.Nack(false, requeue)
}

// DeadLetter republishes the delivery onto the DLX with reason stamped
// into its headers, then acknowledges the original; a Nack can't carry
// the reason, so the republish is what preserves it for DLQ review. If
// the republish fails, falls back to a plain Nack so the DLX binding
// still captures the message (reason lost).
func (d *deliveryContext) DeadLetter(reason string) error {
	headers := amqp.Table{}
	for k, v := range d.delivery.Headers {
		headers[k] = v
	}
	headers["x-deadletter-reason"] = reason

	err := d.channel.Publish(d.dlx, d.delivery.RoutingKey, false, false, amqp.Publishing{
		ContentType: d.delivery.ContentType,
		Body:        d.delivery.Body,
		Headers:     headers,
		MessageId:   d.delivery.MessageId,
	})
	if err != nil {
		_ = d.delivery.Nack(false, false)
		return err
	}
	return d.delivery.Ack(false)
}

// Defer republishes onto the TTL retry queue with an incremented
// x-retry-count header, or rejects to the DLQ once maxRetries is
// exhausted.
func (d *deliveryContext) Defer(maxRetries int) error {
	count := d.RetryCount()
	if count >= maxRetries {
		return d.delivery.Nack(false, false)
	}

	headers := amqp.Table{}
	for k, v := range d.delivery.Headers {
		headers[k] = v
	}
	headers[headerRetryCount] = int32(count + 1)
	headers["x-original-routing-key"] = d.delivery.RoutingKey

	err := d.channel.Publish("", d.retryQueue, false, false, amqp.Publishing{
		ContentType: d.delivery.ContentType,
		Body:        d.delivery.Body,
		Headers:     headers,
		MessageId:   d.delivery.MessageId,
	})
	if err != nil {
		_ = d.Reject(false)
		return err
	}
	return d.delivery.Ack(false)
}
