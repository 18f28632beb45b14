package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"orgops/internal/cache"
	"orgops/internal/config"
	"orgops/internal/conversations"
	"orgops/internal/db"
	"orgops/internal/jobs"
	"orgops/internal/logging"
	"orgops/internal/operations"
	"orgops/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, os.Stdout)
	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the worker")
	}
	ctx := context.Background()
	gdb, err := db.Connect(ctx, cfg.DBDriver, cfg.DSN)
	if err != nil {
		return err
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rc.Close()
	queue, err := jobs.NewAsynqQueue(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer queue.Close()

	srv, err := jobs.NewAsynqServer(cfg.RedisURL, cfg.AsynqConcurrency, cfg.AsynqQueues, log)
	if err != nil {
		return err
	}
	ops := operations.New(gdb, queue)
	// no live subscribers in this process
	conv := conversations.New(gdb, queue, nil, ops, cfg.PendingActionTTL)
	worker.Register(srv, ops, conv, &cache.Collections{Cache: rc, TTL: cfg.CacheTTL})

	log.Info("worker started", "concurrency", cfg.AsynqConcurrency)
	return srv.Run()
}
