package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/saga"
)

func TestMemoryRepository_CreateThenUpdate(t *testing.T) {
	repo := saga.NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	s, err := repo.Create(ctx, "corr-1", "started", now)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Version)

	updated, err := repo.Update(ctx, "corr-1", "shipped", 0, false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "shipped", updated.CurrentState)
}

func TestMemoryRepository_VersionMismatchRaisesConcurrencyError(t *testing.T) {
	repo := saga.NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	_, err := repo.Create(ctx, "corr-1", "started", now)
	require.NoError(t, err)

	_, err = repo.Update(ctx, "corr-1", "shipped", 5, false, now)
	require.Error(t, err)

	var concErr *saga.ConcurrencyError
	require.True(t, errors.As(err, &concErr))
	assert.Equal(t, 5, concErr.Expected)
	assert.Equal(t, 0, concErr.Actual)
}
