package serializer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/serializer"
)

type payload struct {
	Name string
	Body string
}

func TestJSON_RoundTrip(t *testing.T) {
	s := serializer.JSON{}
	ctx := context.Background()

	data, err := s.Marshal(ctx, payload{Name: "x", Body: "y"})
	require.NoError(t, err)

	var out payload
	require.NoError(t, s.Unmarshal(ctx, data, &out))
	assert.Equal(t, "x", out.Name)
}

func TestCompressed_SkipsSmallPayloads(t *testing.T) {
	c := serializer.NewCompressed(serializer.JSON{}, 1024)
	ctx := context.Background()

	data, err := c.Marshal(ctx, payload{Name: "x"})
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Unmarshal(ctx, data, &out))
	assert.Equal(t, "x", out.Name)
}

func TestCompressed_CompressesLargePayloads(t *testing.T) {
	c := serializer.NewCompressed(serializer.JSON{}, 16)
	ctx := context.Background()

	big := payload{Name: "x", Body: strings.Repeat("a", 4096)}
	data, err := c.Marshal(ctx, big)
	require.NoError(t, err)
	assert.Less(t, len(data), 4096)

	var out payload
	require.NoError(t, c.Unmarshal(ctx, data, &out))
	assert.Equal(t, big, out)
}
