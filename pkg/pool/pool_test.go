package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/pool"
)

type fakeConn struct {
	healthy bool
}

func TestPool_AcquireReleaseRoundTrip(t *testing.T) {
	var created int32
	p, err := pool.New(func(ctx context.Context) (*fakeConn, error) {
		atomic.AddInt32(&created, 1)
		return &fakeConn{healthy: true}, nil
	}, func(*fakeConn) {}, pool.Options{MaxSize: 2})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Value().healthy)
	res.Release()
	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
}

func TestPool_UnhealthyResourceIsDestroyedAndRetried(t *testing.T) {
	var created int32
	p, err := pool.New(func(ctx context.Context) (*fakeConn, error) {
		n := atomic.AddInt32(&created, 1)
		return &fakeConn{healthy: n > 1}, nil
	}, func(*fakeConn) {}, pool.Options{
		MaxSize: 2,
		HealthCheck: func(ctx context.Context, v any) bool {
			return v.(*fakeConn).healthy
		},
	})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Value().healthy)
	res.Release()
	assert.Equal(t, int32(2), atomic.LoadInt32(&created))
}

func TestPool_EnsureMinIdleTopsUpResources(t *testing.T) {
	var created int32
	p, err := pool.New(func(ctx context.Context) (*fakeConn, error) {
		atomic.AddInt32(&created, 1)
		return &fakeConn{healthy: true}, nil
	}, func(*fakeConn) {}, pool.Options{MinSize: 3, MaxSize: 5})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.EnsureMinIdle(context.Background()))
	assert.Equal(t, int32(3), p.Stat().IdleResources())
}

func TestPool_ReapIdleDestroysStaleResourcesAboveMinSize(t *testing.T) {
	p, err := pool.New(func(ctx context.Context) (*fakeConn, error) {
		return &fakeConn{healthy: true}, nil
	}, func(*fakeConn) {}, pool.Options{MinSize: 1, MaxSize: 5, IdleTimeout: time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.EnsureMinIdle(context.Background()))
	res, err := p.Acquire(context.Background())
	require.NoError(t, err)
	res.Release()

	time.Sleep(5 * time.Millisecond)
	p.ReapIdle()
	assert.LessOrEqual(t, p.Stat().IdleResources(), int32(1))
}
