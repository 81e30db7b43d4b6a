// Package cache implements the decision cache: an opaque byte-blob
// key/value store with three interchangeable backends (in-memory, external
// Redis, and a no-op null backend). Backend failures are never fatal to a
// caller — they are surfaced through the error return so callers can log
// and fall back to treating the operation as a miss or no-op.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/config"
)

// Backend is the capability every cache implementation provides. Values are
// opaque byte blobs; callers own serialization.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// New constructs the configured backend. Exactly one of the three store
// kinds is ever live; this is modeled as an interface with three
// implementations rather than a tagged union, since Go has no native sum
// type for this.
func New(cfg config.CacheConfig, logger zerolog.Logger) (Backend, error) {
	switch cfg.Store {
	case config.CacheStoreInMemory, "":
		capacity := cfg.MemoryCapacity
		if capacity <= 0 {
			capacity = 10000
		}
		return NewMemoryBackend(capacity, cfg.TTL), nil
	case config.CacheStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("cache store %q requires a redis url", cfg.Store)
		}
		return NewRedisBackend(cfg.RedisURL, cfg.TTL, logger)
	case config.CacheStoreNone:
		return NewNullBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.Store)
	}
}

// DefaultTTL is used when a caller constructs a backend directly without a
// config (tests, primarily).
const DefaultTTL = 60 * time.Second
