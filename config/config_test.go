package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PDP_API_KEY", "PDP_PORT", "PDP_HORIZON_HOST", "PDP_HORIZON_PORT",
		"PDP_OPA_URL", "PDP_CACHE_STORE", "PDP_CACHE_REDIS_URL",
		"PDP_USE_NEW_AUTHORIZED_USERS", "PDP_DEBUG",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "localhost", cfg.Horizon.Host)
	assert.Equal(t, CacheStoreInMemory, cfg.Cache.Store)
	assert.False(t, cfg.UseNewAuthorizedUsers)
	assert.Equal(t, time.Second, cfg.OPA.ClientQueryTimeout)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("PDP_PORT", "9001")
	os.Setenv("PDP_CACHE_STORE", "redis")
	os.Setenv("PDP_USE_NEW_AUTHORIZED_USERS", "true")
	defer clearEnv(t)

	cfg := Load()
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, CacheStoreRedis, cfg.Cache.Store)
	assert.True(t, cfg.UseNewAuthorizedUsers)
}

func TestValidateRequiresRedisURL(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Store: CacheStoreRedis, RedisURL: ""}}
	require.Error(t, cfg.Validate())

	cfg.Cache.RedisURL = "redis://localhost:6379"
	require.NoError(t, cfg.Validate())
}
