package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all SDK configuration
type Config struct {
	API      APIConfig
	Storage  StorageConfig
	Checkout CheckoutConfig
	Outbox   OutboxConfig
	Logging  LoggingConfig
}

type APIConfig struct {
	Key        string
	BaseURL    string
	Timeout    time.Duration
	Sandbox    bool
	AppVersion string
}

type StorageConfig struct {
	// Backend is one of: memory, redis, postgres. Empty selects by URL presence.
	Backend     string
	RedisURL    string
	PostgresURL string
	// SelectionTTL covers the persisted placement selection, user id, deep
	// link, last-used provider and app-version stamp.
	SelectionTTL time.Duration
	// OutboxTTL covers the persisted analytics event queue.
	OutboxTTL time.Duration
}

type CheckoutConfig struct {
	// SuccessURL is the default post-payment destination; the persisted deep
	// link is appended to it when no caller-supplied URL or callback is set.
	SuccessURL string
	// SuccessDelay is how long settle-success waits before redirecting.
	SuccessDelay time.Duration
	// PriceMacro is the bundle property consulted for Apple Pay amounts when
	// no static price is supplied.
	PriceMacro string
}

type OutboxConfig struct {
	FlushInterval time.Duration
	FlushRate     float64
	MaxInFlight   int
	BatchSize     int
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Key:        getEnv("PAYWALL_API_KEY", ""),
			BaseURL:    getEnv("PAYWALL_API_BASE_URL", "https://api.paywall.example.com"),
			Timeout:    getEnvDuration("PAYWALL_API_TIMEOUT", 30*time.Second),
			Sandbox:    getEnvBool("PAYWALL_SANDBOX", false),
			AppVersion: getEnv("PAYWALL_APP_VERSION", "dev"),
		},
		Storage: StorageConfig{
			Backend:      getEnv("PAYWALL_STORAGE_BACKEND", ""),
			RedisURL:     getEnv("PAYWALL_REDIS_URL", ""),
			PostgresURL:  getEnv("PAYWALL_POSTGRES_URL", ""),
			SelectionTTL: getEnvDuration("PAYWALL_SELECTION_TTL", 120*24*time.Hour),
			OutboxTTL:    getEnvDuration("PAYWALL_OUTBOX_TTL", 24*time.Hour),
		},
		Checkout: CheckoutConfig{
			SuccessURL:   getEnv("PAYWALL_SUCCESS_URL", "https://checkout.example.com/success"),
			SuccessDelay: getEnvDuration("PAYWALL_SUCCESS_DELAY", 2*time.Second),
			PriceMacro:   getEnv("PAYWALL_PRICE_MACRO", "new-price"),
		},
		Outbox: OutboxConfig{
			FlushInterval: getEnvDuration("PAYWALL_OUTBOX_FLUSH_INTERVAL", 15*time.Second),
			FlushRate:     getEnvFloat("PAYWALL_OUTBOX_FLUSH_RATE", 2.0),
			MaxInFlight:   getEnvInt("PAYWALL_OUTBOX_MAX_IN_FLIGHT", 2),
			BatchSize:     getEnvInt("PAYWALL_OUTBOX_BATCH_SIZE", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("PAYWALL_LOG_LEVEL", "info"),
			Format: getEnv("PAYWALL_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.Key == "" || strings.HasPrefix(c.API.Key, "YOUR_") {
		return fmt.Errorf("api key is missing or a placeholder")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url must not be empty")
	}
	switch c.Storage.Backend {
	case "", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Storage.SelectionTTL <= 0 {
		return fmt.Errorf("selection TTL must be positive")
	}
	if c.Outbox.MaxInFlight < 1 {
		return fmt.Errorf("outbox max in flight must be at least 1")
	}
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox batch size must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
