package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicegateway/internal/api"
	"github.com/nikhilbhutani/voicegateway/internal/app"
	"github.com/nikhilbhutani/voicegateway/internal/config"
	"github.com/nikhilbhutani/voicegateway/internal/observe"
	"github.com/nikhilbhutani/voicegateway/internal/queue"
	"github.com/nikhilbhutani/voicegateway/internal/warmup"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		slog.Error("failed to create instruments", "error", err)
		os.Exit(1)
	}

	// Redis connection (optional)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable", "error", err)
	}
	defer rdb.Close()

	svc, err := app.Build(ctx, cfg, rdb, metrics)
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	deps := api.Deps{
		Dispatcher: svc.Dispatcher,
		Cache:      svc.Cache,
		Metrics:    metrics,
		Redis:      rdb,
		Models:     svc.Registry.Len(),
	}
	if svc.DB != nil {
		deps.DB = svc.DB
	}

	router := api.NewRouter(cfg, deps)
	handler := router.Setup(ctx)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Gateway.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	startWarmup(ctx, cfg, svc)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// startWarmup never blocks serving: inline runs in the background and queue
// mode only hands the battery to the worker.
func startWarmup(ctx context.Context, cfg *config.Config, svc *app.Services) {
	messages := warmup.Battery(svc.Registry.Models())

	switch cfg.Warmup.Mode {
	case config.WarmupInline:
		go warmup.Run(ctx, svc.Dispatcher, messages)
	case config.WarmupQueue:
		client := queue.NewClient(cfg.Redis)
		defer client.Close()
		warmup.Enqueue(client, messages)
	default:
		slog.Info("warm-up disabled")
	}
}
