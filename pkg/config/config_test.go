package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/messaging/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "POSTGRES_URL", "RABBIT_URL", "REDIS_URL",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "INBOX_DEDUP_WINDOW",
		"RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_MAX_DELAY",
		"BREAKER_FAILURE_THRESHOLD", "BREAKER_BREAK_DURATION",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
}

func TestLoad_RequiresPostgresAndRabbitOutsideDev(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("APP_ENV", "production"))
	defer os.Unsetenv("APP_ENV")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("APP_ENV", "production"))
	require.NoError(t, os.Setenv("POSTGRES_URL", "postgres://x"))
	require.NoError(t, os.Setenv("RABBIT_URL", "amqp://x"))
	require.NoError(t, os.Setenv("OUTBOX_BATCH_SIZE", "100"))
	defer clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", cfg.PostgresURL)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
}
