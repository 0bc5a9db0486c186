package amqp

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/pool"
)

// channelEntry pairs a pooled confirm-mode channel with its creation
// time (so the pool's health check can retire it once ChannelLifetime
// elapses) and its own NotifyPublish/NotifyReturn subscriptions, since
// each amqp.Channel owns its own confirm/return sequence.
type channelEntry struct {
	ch        *amqp.Channel
	createdAt time.Time
	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

// channelPool bounds the number of confirm-mode publish channels opened
// against a single connection. It reuses pkg/pool's generic resource
// pool rather than hand-rolling a second pooling scheme: a HealthCheck
// retires entries once they exceed ChannelLifetime, exactly the same
// evict-then-retry path the connection pool already uses for dead
// connections.
type channelPool struct {
	inner *pool.Pool[*channelEntry]
}

func newChannelPool(conn *amqp.Connection, maxChannels int32, lifetime time.Duration, c clock.Clock) (*channelPool, error) {
	if maxChannels <= 0 {
		maxChannels = 10
	}
	if c == nil {
		c = clock.New()
	}
	inner, err := pool.New(
		func(context.Context) (*channelEntry, error) {
			return openChannelEntry(conn, c)
		},
		func(entry *channelEntry) { _ = entry.ch.Close() },
		pool.Options{
			MaxSize: maxChannels,
			Clock:   c,
			HealthCheck: func(_ context.Context, v any) bool {
				entry := v.(*channelEntry)
				if entry.ch.IsClosed() {
					return false
				}
				return lifetime <= 0 || c.Now().Sub(entry.createdAt) <= lifetime
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return &channelPool{inner: inner}, nil
}

func openChannelEntry(conn *amqp.Connection, c clock.Clock) (*channelEntry, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &channelEntry{
		ch:        ch,
		createdAt: c.Now(),
		confirmCh: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		returnCh:  ch.NotifyReturn(make(chan amqp.Return, 1)),
	}, nil
}

// acquire returns a channelEntry plus a release func. When the pool is
// already at MaxSize with nothing idle, a temporary non-pooled channel
// is opened instead of blocking the caller on a busy connection,
// avoiding head-of-line blocking; its release closes it outright
// instead of returning it to the pool.
func (cp *channelPool) acquire(ctx context.Context, conn *amqp.Connection, c clock.Clock) (*channelEntry, func(), error) {
	stat := cp.inner.Stat()
	if stat.IdleResources() == 0 && stat.TotalResources() >= stat.MaxResources() {
		entry, err := openChannelEntry(conn, c)
		if err != nil {
			return nil, nil, err
		}
		return entry, func() { _ = entry.ch.Close() }, nil
	}

	res, err := cp.inner.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return res.Value(), func() { res.Release() }, nil
}

// stats reports (total, active, idle) publish channels.
func (cp *channelPool) stats() (total, active, idle int64) {
	stat := cp.inner.Stat()
	return int64(stat.TotalResources()), int64(stat.AcquiredResources()), int64(stat.IdleResources())
}

func (cp *channelPool) close() {
	cp.inner.Close()
}
