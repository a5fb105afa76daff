// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Price fetching
	OpenExchangeRatesAppID string        // App ID for openexchangerates.org (fiat rates)
	PriceCacheTTL          time.Duration // Validity window for cached prices
	RefreshInterval        time.Duration // Cadence of the background price refresh job

	// AI insights (Gemini). Disabled when the API key is empty.
	GeminiAPIKey string
	GeminiModel  string

	Backup *BackupConfig
}

// BackupConfig holds object-storage backup configuration.
// Backups are disabled unless bucket and credentials are all set.
type BackupConfig struct {
	Endpoint  string // S3-compatible endpoint URL (empty for AWS S3 proper)
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Schedule  string // cron expression
	Retain    int    // number of backups to keep
}

// Enabled reports whether enough configuration is present to run backups.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("NESTEGG_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                absDataDir,
		Port:                   getEnvAsInt("PORT", 8080),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		OpenExchangeRatesAppID: getEnv("OPEN_EXCHANGE_RATES_APP_ID", ""),
		PriceCacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Minute),
		RefreshInterval:        getEnvAsDuration("PRICE_REFRESH_INTERVAL", 15*time.Minute),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		Backup: &BackupConfig{
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Schedule:  getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
			Retain:    getEnvAsInt("BACKUP_RETAIN", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PriceCacheTTL <= 0 {
		return fmt.Errorf("price cache TTL must be positive, got %s", c.PriceCacheTTL)
	}
	// Note: OpenExchangeRates app ID optional - fiat positions fail at fetch time without it
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
