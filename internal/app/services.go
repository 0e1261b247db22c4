// Package app assembles the synthesis services shared by the API server and
// the warm-up worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicegateway/internal/cache"
	"github.com/nikhilbhutani/voicegateway/internal/config"
	"github.com/nikhilbhutani/voicegateway/internal/database"
	"github.com/nikhilbhutani/voicegateway/internal/dispatch"
	"github.com/nikhilbhutani/voicegateway/internal/observe"
	"github.com/nikhilbhutani/voicegateway/internal/synthlog"
	"github.com/nikhilbhutani/voicegateway/internal/voice"
)

type Services struct {
	Registry   *voice.Registry
	Cache      *cache.ResultCache
	Dispatcher *dispatch.Dispatcher
	// DB is nil when the synthesis log is disabled.
	DB *pgxpool.Pool
}

// Build loads the voice models and wires cache and dispatcher. Redis and
// Postgres are optional: without them the cache is process-local and the
// synthesis log is discarded. metrics may be nil.
func Build(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *observe.Metrics) (*Services, error) {
	reg, err := voice.LoadRegistry(cfg.Synthesis.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("load voice models: %w", err)
	}

	cacheOpts := []cache.Option{
		cache.WithFlightTimeout(cfg.Synthesis.Timeout),
		cache.WithMetrics(metrics),
	}
	if cfg.Cache.LockEnabled && rdb != nil {
		cacheOpts = append(cacheOpts, cache.WithLocker(cache.NewRedisLocker(rdb, cfg.Cache.LockTTL)))
		slog.Info("cross-process cache lock enabled", "ttl", cfg.Cache.LockTTL)
	}

	rc, err := cache.New(cfg.Cache.Dir, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("open result cache: %w", err)
	}

	s := &Services{Registry: reg, Cache: rc}

	var recorder synthlog.Recorder = synthlog.NopRecorder{}
	db, err := database.NewPool(ctx, cfg.Database)
	if errors.Is(err, database.ErrNoURL) {
		slog.Info("no database configured, synthesis log disabled")
	} else if err != nil {
		slog.Warn("database unavailable, running without synthesis log", "error", err)
	} else if err := database.RunMigrations(ctx, db, synthlog.Migrations()); err != nil {
		slog.Warn("migrations failed, running without synthesis log", "error", err)
		db.Close()
	} else {
		s.DB = db
		recorder = synthlog.NewPostgresRecorder(db)
	}

	s.Dispatcher = dispatch.FromRegistry(reg, rc,
		dispatch.WithWorkers(cfg.Synthesis.Workers),
		dispatch.WithRecorder(recorder),
		dispatch.WithMetrics(metrics),
	)

	slog.Info("synthesis services ready",
		"models", reg.Len(),
		"cache_dir", rc.Dir(),
		"workers", cfg.Synthesis.Workers,
	)
	return s, nil
}

func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
