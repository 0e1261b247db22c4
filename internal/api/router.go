package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicegateway/internal/api/handlers"
	"github.com/nikhilbhutani/voicegateway/internal/api/middleware"
	"github.com/nikhilbhutani/voicegateway/internal/cache"
	"github.com/nikhilbhutani/voicegateway/internal/config"
	"github.com/nikhilbhutani/voicegateway/internal/observe"
)

// Deps are the services the router exposes. DB and Redis are optional.
type Deps struct {
	Dispatcher handlers.Dispatcher
	Cache      *cache.ResultCache
	Metrics    *observe.Metrics
	DB         handlers.Pinger
	Redis      *redis.Client
	Models     int
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
	}
}

// Setup installs middleware and routes. ctx bounds background middleware
// state such as the rate limiter's janitor.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux

	// RealIP is not installed: the local-path option trusts only the TCP peer.
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(rt.deps.Metrics))
	r.Use(middleware.CORS(rt.cfg.Gateway.CORSOrigins))

	if rt.cfg.RateLimit.RPS > 0 {
		rl := middleware.NewRateLimiter(ctx, rt.cfg.RateLimit.RPS, rt.cfg.RateLimit.Burst)
		r.Use(rl.Limit)
	}

	health := handlers.NewHealthHandler(rt.deps.DB, rt.deps.Redis, rt.deps.Models)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	files := handlers.NewFileHandler(rt.deps.Cache)
	r.Get("/"+rt.deps.Cache.DirName()+"/{name}", files.Serve)

	speech := handlers.NewSpeechHandler(
		rt.deps.Dispatcher,
		rt.deps.Cache.DirName(),
		rt.cfg.Gateway.MaxTextLength,
		rt.cfg.Gateway.RequestTimeout,
	)
	r.Get("/{text}", speech.Speak)

	return r
}
