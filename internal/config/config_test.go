package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"MYSQL_DSN": "user:pw@tcp(localhost:3306)/orgops"}))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "user:pw@tcp(localhost:3306)/orgops", cfg.DSN)
	assert.Equal(t, "dev-secret-only", cfg.JWTSecret)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 72*time.Hour, cfg.PendingActionTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 10, cfg.AsynqConcurrency)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"DB_DRIVER":    "Postgres",
		"DATABASE_DSN": "postgres://localhost/orgops",
		"MYSQL_DSN":    "ignored",
		"TOKEN_TTL":    "1h",
		"LOG_LEVEL":    "debug",
		"REDIS_URL":    "redis://localhost:6379/0",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/orgops", cfg.DSN)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestFromEnvCollectsErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"DB_DRIVER": "oracle",
		"TOKEN_TTL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "DATABASE_DSN")
	assert.Contains(t, err.Error(), "TOKEN_TTL")
}
