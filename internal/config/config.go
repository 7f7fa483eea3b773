package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port            int
	DevMode         bool
	DatabasePath    string
	LogLevel        string
	StartingBalance decimal.Decimal // cash granted to a newly created account
	QuoteTimeout    time.Duration   // per-symbol quote fetch deadline
	QuoteCacheTTL   time.Duration   // how long a cached quote stays fresh
	QuoteCachePath  string          // msgpack snapshot of the quote cache
	RefreshSchedule string          // cron spec for the held-symbol quote refresh
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 3001),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/ledger.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StartingBalance: getEnvAsDecimal("STARTING_BALANCE", decimal.NewFromInt(10000)),
		QuoteTimeout:    time.Duration(getEnvAsInt("QUOTE_TIMEOUT_SECONDS", 10)) * time.Second,
		QuoteCacheTTL:   time.Duration(getEnvAsInt("QUOTE_CACHE_TTL_SECONDS", 60)) * time.Second,
		QuoteCachePath:  getEnv("QUOTE_CACHE_PATH", "./data/quotes.msgpack"),
		RefreshSchedule: getEnv("QUOTE_REFRESH_SCHEDULE", "@every 60s"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.StartingBalance.IsNegative() {
		return fmt.Errorf("STARTING_BALANCE must not be negative")
	}

	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT_SECONDS must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
