package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// DatabaseURL selects the Postgres store; when empty the server falls
	// back to SQLite at SQLitePath (development only).
	DatabaseURL string
	SQLitePath  string

	// RedisURL enables the hot message cache; empty disables it.
	RedisURL string

	// PushGatewayURL is the webhook the notification dispatcher posts to;
	// empty disables push delivery.
	PushGatewayURL string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/fdvp.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		PushGatewayURL: os.Getenv("PUSH_GATEWAY_URL"),
	}

	// In production, the durable store must not silently fall back to SQLite.
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
