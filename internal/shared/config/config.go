package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseDriver string
	DatabaseURL    string

	// Redis (optional; in-memory counters are used when unset)
	RedisURL string

	// Model runtime
	RuntimeEndpoint string
	RuntimeAPIKey   string

	// Models
	ModelsFile   string
	DefaultModel string

	// Rate limiting
	DefaultRateLimit int

	// Usage retention
	UsageRetentionDays int

	// Admin API (endpoints are disabled when unset)
	AdminAPIKey string

	// Logging
	LogLevel string
	LogFile  string

	// Request archive (optional S3-compatible store)
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RuntimeEndpoint:    getEnv("RUNTIME_ENDPOINT", ""),
		RuntimeAPIKey:      getEnv("RUNTIME_API_KEY", ""),
		ModelsFile:         getEnv("MODELS_FILE", ""),
		DefaultModel:       getEnv("DEFAULT_MODEL", ""),
		DefaultRateLimit:   getEnvInt("DEFAULT_RATE_LIMIT", 60),
		UsageRetentionDays: getEnvInt("USAGE_RETENTION_DAYS", 90),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		ArchiveEndpoint:    getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey:   getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:   getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveBucket:      getEnv("ARCHIVE_BUCKET", "llm-gateway-requests"),
		ArchiveUseSSL:      getEnvBool("ARCHIVE_USE_SSL", true),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres or sqlite)", cfg.DatabaseDriver)
	}

	if cfg.RuntimeEndpoint == "" {
		return nil, fmt.Errorf("RUNTIME_ENDPOINT is required")
	}

	if cfg.DefaultRateLimit <= 0 {
		return nil, fmt.Errorf("DEFAULT_RATE_LIMIT must be positive")
	}

	if cfg.UsageRetentionDays <= 0 {
		return nil, fmt.Errorf("USAGE_RETENTION_DAYS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
