package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBackend is the external decision-cache backend. Health is cached
// briefly to avoid a round trip on every readiness probe.
type RedisBackend struct {
	client *goredis.Client
	ttl    time.Duration
	logger zerolog.Logger

	healthMu     sync.Mutex
	lastHealthAt time.Time
	lastHealthOK error
}

func NewRedisBackend(url string, ttl time.Duration, logger zerolog.Logger) (*RedisBackend, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBackend{
		client: goredis.NewClient(opt),
		ttl:    ttl,
		logger: logger.With().Str("component", "cache_redis").Logger(),
	}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisBackend) HealthCheck(ctx context.Context) error {
	r.healthMu.Lock()
	defer r.healthMu.Unlock()

	if time.Since(r.lastHealthAt) < 10*time.Second {
		return r.lastHealthOK
	}

	err := r.client.Ping(ctx).Err()
	r.lastHealthAt = time.Now()
	r.lastHealthOK = err
	return err
}
