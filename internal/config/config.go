package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver         string
	DSN              string
	JWTSecret        string
	AppPort          string
	TokenTTL         time.Duration
	RedisURL         string
	CacheTTL         time.Duration
	PendingActionTTL time.Duration
	LogLevel         slog.Level
	SeedFile         string
	AsynqConcurrency int
	AsynqQueues      string
}

// Load reads .env (when present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using process environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		DBDriver:    strings.ToLower(get("DB_DRIVER", "mysql")),
		DSN:         get("DATABASE_DSN", get("MYSQL_DSN", "")),
		JWTSecret:   get("JWT_SECRET", "dev-secret-only"),
		AppPort:     get("APP_PORT", "8080"),
		RedisURL:    get("REDIS_URL", ""),
		SeedFile:    get("SEED_FILE", ""),
		AsynqQueues: get("ASYNQ_QUEUES", ""),
	}

	var errs []error
	switch cfg.DBDriver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not mysql or postgres", cfg.DBDriver))
	}
	if cfg.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN (or MYSQL_DSN) not set"))
	}

	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(get(key, def))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, get(key, def)))
		}
		return d
	}
	cfg.TokenTTL = duration("TOKEN_TTL", "24h")
	cfg.CacheTTL = duration("CACHE_TTL", "5m")
	cfg.PendingActionTTL = duration("PENDING_ACTION_TTL", "72h")

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	n, err := strconv.Atoi(get("ASYNQ_CONCURRENCY", "10"))
	if err != nil || n <= 0 {
		errs = append(errs, fmt.Errorf("ASYNQ_CONCURRENCY: invalid value %q", get("ASYNQ_CONCURRENCY", "10")))
	}
	cfg.AsynqConcurrency = n

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
