package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabasePath string
	RedisAddr    string
	PolicyFile   string

	PenaltyInterval time.Duration
	QuoteCacheTTL   time.Duration

	CORSOrigins []string

	// RateLimit is the number of write requests per client per
	// RateLimitWindow. Zero disables limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("APP_ENV", "local"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabasePath: getEnv("DATABASE_PATH", "cooperative.db"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		PolicyFile:   getEnv("POLICY_FILE", ""),

		PenaltyInterval: getEnvDuration("PENALTY_INTERVAL", time.Hour),
		QuoteCacheTTL:   getEnvDuration("QUOTE_CACHE_TTL", 15*time.Minute),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		RateLimit:       getEnvInt("RATE_LIMIT", 60),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
