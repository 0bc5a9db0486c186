package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/transport"
)

const publishConfirmWait = 150 * time.Millisecond

// Options configures a Transport's channel pool alongside its dial
// target: the pool is bounded by MaxChannels and entries are retired
// after ChannelLifetime.
type Options struct {
	MaxChannels     int32
	ChannelLifetime time.Duration
	Clock           clock.Clock
}

// DefaultOptions bounds a connection to 10 concurrent publish channels,
// each retired and re-opened after 10 minutes.
func DefaultOptions() Options {
	return Options{MaxChannels: 10, ChannelLifetime: 10 * time.Minute}
}

// Transport is a transport.MessageTransport backed by a single AMQP
// connection, reconnected lazily on demand, owning a full DLX +
// TTL-retry topology per queue. Publishes
// acquire a channel from a bounded per-connection channelPool instead
// of serializing through one shared channel; DeclareTopology and
// Consume keep a single dedicated administrative channel since those
// are long-lived, not per-call.
type Transport struct {
	url    string
	logger zerolog.Logger
	opts   Options

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	channels *channelPool
}

// New dials url and opens the administrative channel plus the publish
// channel pool immediately, so a misconfigured broker fails at startup
// rather than on the first publish.
func New(url string, logger zerolog.Logger, opts Options) (*Transport, error) {
	if url == "" {
		return nil, errors.New("transport/amqp: missing url")
	}
	if opts.MaxChannels <= 0 {
		opts.MaxChannels = 10
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	t := &Transport{url: url, logger: logger, opts: opts}
	if err := t.connectLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) connectLocked() error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	channels, err := newChannelPool(conn, t.opts.MaxChannels, t.opts.ChannelLifetime, t.opts.Clock)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	t.conn = conn
	t.ch = ch
	t.channels = channels
	return nil
}

// DeclareTopology declares/binds the exchange, DLX, DLQ, main queue, and
// retry queue described by topo. Safe to call multiple times.
func (t *Transport) DeclareTopology(topo Topology) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnectedLocked(); err != nil {
		return err
	}
	return topo.declare(t.ch)
}

func (t *Transport) ensureConnectedLocked() error {
	if t.ch == nil || t.conn == nil || t.conn.IsClosed() {
		t.closeLocked()
		if err := t.connectLocked(); err != nil {
			return fmt.Errorf("transport/amqp: reconnect failed: %w", err)
		}
	}
	return nil
}

// Publish sends msg through the exchange named by msg.Headers["exchange"]
// (set by the caller), waiting for a broker confirm. The mutex is only
// held long enough to ensure the
// connection and acquire a pooled channel; the publish itself and the
// confirm wait run unlocked so concurrent publishers don't serialize
// behind one shared channel.
func (t *Transport) Publish(ctx context.Context, msg transport.OutboundMessage) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}

	t.mu.Lock()
	if err := t.ensureConnectedLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	conn, channels, c := t.conn, t.channels, t.opts.Clock
	t.mu.Unlock()

	entry, release, err := channels.acquire(ctx, conn, c)
	if err != nil {
		return fmt.Errorf("transport/amqp: acquire channel: %w", err)
	}
	defer release()

	exchange, _ := msg.Headers["exchange"].(string)
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		if k == "exchange" {
			continue
		}
		headers[k] = v
	}

	mode := amqp.Transient
	if msg.Persistent {
		mode = amqp.Persistent
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg.Body,
		DeliveryMode: mode,
		MessageId:    msg.MessageID,
		Headers:      headers,
		Timestamp:    time.Now().UTC(),
	}

	if err := entry.ch.PublishWithContext(ctx, exchange, msg.RoutingKey, true, false, pub); err != nil {
		return err
	}

	timer := time.NewTimer(publishConfirmWait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ret := <-entry.returnCh:
			t.logger.Error().Str("exchange", exchange).Str("routing_key", msg.RoutingKey).
				Int("code", int(ret.ReplyCode)).Str("reason", ret.ReplyText).Msg("amqp publish returned")
			return fmt.Errorf("transport/amqp: returned: %d %s", ret.ReplyCode, ret.ReplyText)
		case conf := <-entry.confirmCh:
			if !conf.Ack {
				return herrors.New(herrors.CodeTransient, "transport/amqp: publish not acked")
			}
			return nil
		case <-timer.C:
			t.logger.Warn().Str("routing_key", msg.RoutingKey).Msg("amqp confirm window elapsed")
			return nil
		}
	}
}

// ChannelPoolStats reports (total, active, idle) publish channels.
func (t *Transport) ChannelPoolStats() (total, active, idle int64) {
	t.mu.Lock()
	channels := t.channels
	t.mu.Unlock()
	if channels == nil {
		return 0, 0, 0
	}
	return channels.stats()
}

// Close tears down the channel and connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transport) closeLocked() {
	if t.channels != nil {
		t.channels.close()
		t.channels = nil
	}
	if t.ch != nil {
		_ = t.ch.Close()
		t.ch = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}
