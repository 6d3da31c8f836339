package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultStaleAfter is how long a sent quote may wait for a customer response
// before it is surfaced for follow-up.
const DefaultStaleAfter = 7 * 24 * time.Hour

// Config is the process configuration. Pricing settings, tax rules and rates
// are data in Postgres, not configuration.
type Config struct {
	DatabaseURL            string
	ServerPort             string
	AllowedOrigins         []string
	Environment            string
	LogLevel               string
	StaleAfter             time.Duration
	BulkResolveConcurrency int
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:            strings.TrimSpace(getenv("DATABASE_URL", "")),
		ServerPort:             getenv("SERVER_PORT", "8080"),
		AllowedOrigins:         parseList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		Environment:            getenv("APP_ENV", "development"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		StaleAfter:             getenvDuration("STALE_AFTER", DefaultStaleAfter),
		BulkResolveConcurrency: int(getenvInt64("BULK_RESOLVE_CONCURRENCY", 4)),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
