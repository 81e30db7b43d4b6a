package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// CacheStore selects which decision-cache backend to construct.
type CacheStore string

const (
	CacheStoreInMemory CacheStore = "inmemory"
	CacheStoreRedis    CacheStore = "redis"
	CacheStoreNone     CacheStore = "none"
)

// HorizonConfig controls how the Horizon child process is spawned and
// supervised.
type HorizonConfig struct {
	Host                      string
	Port                      int
	PythonPath                string
	ClientTimeout             time.Duration
	HealthCheckInterval       time.Duration
	HealthCheckFailureTimeout time.Duration
	StartupDelay              time.Duration
	RestartInterval           time.Duration
	TerminationTimeout        time.Duration
}

func (h HorizonConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", h.Host, h.Port)
}

// OPAConfig controls how the decision engine is reached.
type OPAConfig struct {
	URL                string
	ClientQueryTimeout time.Duration
}

// CacheConfig controls the decision cache backend.
type CacheConfig struct {
	Store            CacheStore
	TTL              time.Duration
	MemoryCapacity   int
	RedisURL         string
}

// Config holds all sidecar configuration values.
type Config struct {
	APIKey string
	Port   int

	Horizon HorizonConfig
	OPA     OPAConfig
	Cache   CacheConfig

	HealthCheckTimeout     time.Duration
	UseNewAuthorizedUsers  bool
	TrinoAuthzConfigPath   string
	Debug                  bool

	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	GracefulTimeout time.Duration
	RequestTimeout  time.Duration
}

// Load reads configuration from environment variables and an optional
// .env file. Unset values fall back to sane development defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey: getEnv("PDP_API_KEY", ""),
		Port:   getEnvInt("PDP_PORT", 7000),

		Horizon: HorizonConfig{
			Host:                      getEnv("PDP_HORIZON_HOST", "localhost"),
			Port:                      getEnvInt("PDP_HORIZON_PORT", 7001),
			PythonPath:                getEnv("PDP_HORIZON_PYTHON_PATH", "python3"),
			ClientTimeout:             secs(getEnvInt("PDP_HORIZON_CLIENT_TIMEOUT_SEC", 60)),
			HealthCheckInterval:       secs(getEnvInt("PDP_HORIZON_HEALTH_CHECK_INTERVAL_SEC", 5)),
			HealthCheckFailureTimeout: secs(getEnvInt("PDP_HORIZON_HEALTH_CHECK_FAILURE_TIMEOUT_SEC", 10)),
			StartupDelay:              secs(getEnvInt("PDP_HORIZON_STARTUP_DELAY_SEC", 1)),
			RestartInterval:           secs(getEnvInt("PDP_HORIZON_RESTART_INTERVAL_SEC", 1)),
			TerminationTimeout:        secs(getEnvInt("PDP_HORIZON_TERMINATION_TIMEOUT_SEC", 5)),
		},

		OPA: OPAConfig{
			URL:                getEnv("PDP_OPA_URL", "http://localhost:8181"),
			ClientQueryTimeout: secs(getEnvInt("PDP_OPA_CLIENT_QUERY_TIMEOUT_SEC", 1)),
		},

		Cache: CacheConfig{
			Store:          CacheStore(getEnv("PDP_CACHE_STORE", string(CacheStoreInMemory))),
			TTL:            secs(getEnvInt("PDP_CACHE_TTL_SEC", 60)),
			MemoryCapacity: getEnvInt("PDP_CACHE_MEMORY_CAPACITY", 10000),
			RedisURL:       getEnv("PDP_CACHE_REDIS_URL", ""),
		},

		HealthCheckTimeout:    fracSecs(getEnvFloat("PDP_HEALTHCHECK_TIMEOUT_SEC", 1.0)),
		UseNewAuthorizedUsers: getEnvBool("PDP_USE_NEW_AUTHORIZED_USERS", false),
		TrinoAuthzConfigPath:  getEnv("PDP_TRINO_AUTHZ_CONFIG_PATH", ""),
		Debug:                 getEnvBool("PDP_DEBUG", false),

		RateLimitEnabled: getEnvBool("PDP_RATE_LIMIT_ENABLED", false),
		RateLimitRPM:     getEnvInt("PDP_RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("PDP_RATE_LIMIT_BURST", 50),

		GracefulTimeout: secs(getEnvInt("PDP_GRACEFUL_TIMEOUT_SEC", 15)),
		RequestTimeout:  secs(getEnvInt("PDP_REQUEST_TIMEOUT_SEC", 65)),
	}
	return cfg
}

// Validate reports configuration combinations that cannot serve requests.
func (c *Config) Validate() error {
	if c.Cache.Store == CacheStoreRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache store %q requires PDP_CACHE_REDIS_URL", CacheStoreRedis)
	}
	return nil
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func fracSecs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
