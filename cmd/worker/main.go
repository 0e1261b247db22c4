package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicegateway/internal/app"
	"github.com/nikhilbhutani/voicegateway/internal/config"
	"github.com/nikhilbhutani/voicegateway/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	svc, err := app.Build(ctx, cfg, rdb, nil)
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Warmup.WorkerConcurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	warmupWorker := queue.NewWarmupWorker(svc.Dispatcher)
	registry.Register(queue.TypeWarmupDispatch, asynq.HandlerFunc(warmupWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Warmup.WorkerConcurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
