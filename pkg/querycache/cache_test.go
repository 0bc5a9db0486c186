package querycache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/querycache"
)

func TestMemory_SetGetInvalidate(t *testing.T) {
	c := querycache.NewMemory()
	ctx := context.Background()

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Invalidate(ctx, "k"))
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := querycache.NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_HitRateTracksTraffic(t *testing.T) {
	c := querycache.NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))

	c.Get(ctx, "k")
	c.Get(ctx, "missing")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.0001)
}

func TestFingerprint_SameInputsSameKey(t *testing.T) {
	a, err := querycache.Fingerprint("getOrder", map[string]string{"id": "1"})
	require.NoError(t, err)
	b, err := querycache.Fingerprint("getOrder", map[string]string{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := querycache.Fingerprint("getOrder", map[string]string{"id": "2"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
