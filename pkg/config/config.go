// Package config loads the core's environment-sourced defaults, used by
// the builder when no explicit option was set programmatically.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the environment-sourced settings the builder falls back
// to when a caller doesn't set an option explicitly.
type Config struct {
	AppEnv string

	PostgresURL string
	RabbitURL   string
	RedisURL    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	InboxDedupWindow   time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	BreakerFailureThreshold int
	BreakerBreakDuration    time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads a .env file if present, then overlays environment
// variables, returning validation errors for required settings that are
// still missing once APP_ENV leaves "dev".
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "dev")

	cfg.PostgresURL = getEnv("POSTGRES_URL", "")
	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	cfg.OutboxPollInterval = getDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	cfg.OutboxBatchSize = getIntEnv("OUTBOX_BATCH_SIZE", 20)
	cfg.InboxDedupWindow = getDuration("INBOX_DEDUP_WINDOW", 24*time.Hour)

	cfg.RetryMaxAttempts = getIntEnv("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryBaseDelay = getDuration("RETRY_BASE_DELAY", 100*time.Millisecond)
	cfg.RetryMaxDelay = getDuration("RETRY_MAX_DELAY", 30*time.Second)

	cfg.BreakerFailureThreshold = getIntEnv("BREAKER_FAILURE_THRESHOLD", 5)
	cfg.BreakerBreakDuration = getDuration("BREAKER_BREAK_DURATION", 30*time.Second)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	if cfg.AppEnv != "dev" {
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("missing POSTGRES_URL (required when APP_ENV != dev)")
		}
		if cfg.RabbitURL == "" {
			return nil, fmt.Errorf("missing RABBIT_URL (required when APP_ENV != dev)")
		}
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
