package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Synthesis SynthesisConfig
	Gateway   GatewayConfig
	Warmup    WarmupConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	Dir         string
	LockEnabled bool
	LockTTL     time.Duration
}

type SynthesisConfig struct {
	ModelsFile string
	Workers    int
	Timeout    time.Duration
}

type GatewayConfig struct {
	MaxTextLength  int
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// WarmupMode selects how the startup phrase battery is dispatched.
type WarmupMode string

const (
	WarmupInline WarmupMode = "inline"
	WarmupQueue  WarmupMode = "queue"
	WarmupOff    WarmupMode = "off"
)

type WarmupConfig struct {
	Mode              WarmupMode
	WorkerConcurrency int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level slog.Level
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 10721)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	connectTimeout, err := getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONNECT_TIMEOUT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	lockEnabled, err := getEnvBool("CACHE_LOCK_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_LOCK_ENABLED: %w", err)
	}

	lockTTL, err := getEnvDuration("CACHE_LOCK_TTL", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_LOCK_TTL: %w", err)
	}

	workers, err := getEnvInt("SYNTHESIS_WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHESIS_WORKERS: %w", err)
	}
	if workers < 1 {
		return nil, fmt.Errorf("invalid SYNTHESIS_WORKERS: must be positive, got %d", workers)
	}

	synthTimeout, err := getEnvDuration("SYNTHESIS_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHESIS_TIMEOUT: %w", err)
	}

	maxText, err := getEnvInt("MAX_TEXT_LENGTH", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_TEXT_LENGTH: %w", err)
	}

	requestTimeout, err := getEnvDuration("REQUEST_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	mode := WarmupMode(strings.ToLower(getEnv("WARMUP_MODE", string(WarmupInline))))
	switch mode {
	case WarmupInline, WarmupQueue, WarmupOff:
	default:
		return nil, fmt.Errorf("invalid WARMUP_MODE: %q", mode)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			ConnectTimeout: connectTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			Dir:         getEnv("CACHE_DIR", "output"),
			LockEnabled: lockEnabled,
			LockTTL:     lockTTL,
		},
		Synthesis: SynthesisConfig{
			ModelsFile: getEnv("MODELS_FILE", "models.yaml"),
			Workers:    workers,
			Timeout:    synthTimeout,
		},
		Gateway: GatewayConfig{
			MaxTextLength:  maxText,
			RequestTimeout: requestTimeout,
			CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Warmup: WarmupConfig{
			Mode:              mode,
			WorkerConcurrency: workerConcurrency,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		Log: LogConfig{Level: level},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
