package internal

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Resolution cache. Leaving RedisURL empty disables caching and every
	// check reads the database.
	RedisURL           string
	ResolutionCacheTTL time.Duration

	// Store retry policy for transient read failures
	StoreRetryAttempts  int
	StoreRetryBaseDelay time.Duration

	// IdentityHeader carries the authenticated user UUID, set by the
	// upstream identity provider's proxy.
	IdentityHeader string

	// Per-identity API rate limit. Zero requests disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		RedisURL:           getEnv("REDIS_URL", ""),
		ResolutionCacheTTL: getEnvDuration("RESOLUTION_CACHE_TTL", 5*time.Minute),

		StoreRetryAttempts:  getEnvInt("STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBaseDelay: getEnvDuration("STORE_RETRY_BASE_DELAY", 50*time.Millisecond),

		IdentityHeader: http.CanonicalHeaderKey(getEnv("IDENTITY_HEADER", "X-User-ID")),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StoreRetryAttempts < 1 {
		return nil, fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1, got: %d", cfg.StoreRetryAttempts)
	}
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled, got: %s", cfg.RateLimitWindow)
	}
	if cfg.ResolutionCacheTTL < 0 {
		return nil, fmt.Errorf("RESOLUTION_CACHE_TTL must not be negative, got: %s", cfg.ResolutionCacheTTL)
	}

	return cfg, nil
}

// CacheEnabled reports whether resolutions should be cached in Redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != "" && c.ResolutionCacheTTL > 0
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
