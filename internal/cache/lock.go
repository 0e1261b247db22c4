package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises synthesis of one entry across processes sharing a cache
// directory. Acquire never blocks waiting for a holder; acquired is false
// when someone else holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// NopLocker always grants the lock. In-process dedupe is still done by the
// cache's singleflight group.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as expiring Redis keys.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: "voicegateway:lock:", ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			slog.Warn("failed to release cache lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}
