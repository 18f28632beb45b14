package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"orgops/internal/cache"
	"orgops/internal/config"
	"orgops/internal/db"
	httpserver "orgops/internal/http"
	"orgops/internal/http/handlers"
	"orgops/internal/jobs"
	"orgops/internal/logging"
	"orgops/internal/migrate"
	"orgops/internal/models"
	"orgops/internal/realtime"
	"orgops/internal/seed"
	"orgops/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(ctx, cfg.DBDriver, cfg.DSN)
	if err != nil {
		return err
	}
	if err := migrate.Up(gdb); err != nil {
		return err
	}
	fixture, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := seed.Run(gdb, fixture); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	store := cache.Cache(cache.NewMemory())
	var queue jobs.Queue
	var inline *jobs.Inline
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		store = r
		if queue, err = jobs.NewAsynqQueue(cfg.RedisURL); err != nil {
			return err
		}
		log.Info("background jobs go to asynq; run cmd/worker to process them")
	} else {
		inline = jobs.NewInline()
		queue = inline
		log.Info("REDIS_URL not set, using in-process cache and inline jobs")
	}
	defer store.Close()
	defer queue.Close()

	hub := realtime.NewHub()
	defer hub.Close()

	env := handlers.NewEnv(gdb, cfg, &cache.Collections{Cache: store, TTL: cfg.CacheTTL}, queue, hub, fixture)
	if inline != nil {
		worker.Register(inline, env.Operations, env.Conversations, env.Cache)
		// inline delivery is early, so deadlines are enforced by a sweep
		go sweepExpired(ctx, gdb, env, time.Minute)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           httpserver.NewRouter(env, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepExpired(ctx context.Context, gdb *gorm.DB, env *handlers.Env, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		var orgs []int64
		if err := gdb.WithContext(ctx).Model(&models.Organization{}).Pluck("id", &orgs).Error; err != nil {
			slog.Warn("expiry sweep: list organizations", "err", err)
			continue
		}
		for _, id := range orgs {
			n, err := env.Conversations.ExpireDue(ctx, id)
			if err != nil {
				slog.Warn("expiry sweep failed", "org_id", id, "err", err)
				continue
			}
			if n > 0 {
				slog.Info("expired pending actions", "org_id", id, "count", n)
			}
		}
	}
}
