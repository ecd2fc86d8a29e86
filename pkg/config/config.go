package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// UserID is the acting user for CLI commands.
	UserID string

	// Token encryption
	MasterKey string
	KeySalt   string

	// Database
	DatabaseURL string
	SQLitePath  string

	// Redis (optional; enables the distributed sync lease)
	RedisURL     string
	SyncLeaseTTL time.Duration

	// RabbitMQ (optional; enables domain event publishing)
	RabbitMQURL string

	// Sync engine
	SyncWindowPastDays   int
	SyncWindowFutureDays int
	SyncMaxRetries       int
	SyncPollInterval     time.Duration
	SyncWorkerCount      int
	SyncJobQueueSize     int

	// Providers
	GoogleAPIBaseURL string
	NaverAPIBaseURL  string
	CalDAVBaseURL    string
	HTTPTimeout      time.Duration

	// Worker
	WorkerHealthAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		UserID: getEnv("MOKKOJI_USER_ID", "00000000-0000-0000-0000-000000000001"),

		MasterKey: getEnv("MOKKOJI_MASTER_KEY", ""),
		KeySalt:   getEnv("MOKKOJI_KEY_SALT", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		SyncLeaseTTL: getDurationEnv("SYNC_LEASE_TTL", 10*time.Minute),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		SyncWindowPastDays:   getIntEnv("SYNC_WINDOW_PAST_DAYS", 30),
		SyncWindowFutureDays: getIntEnv("SYNC_WINDOW_FUTURE_DAYS", 365),
		SyncMaxRetries:       getIntEnv("SYNC_MAX_RETRIES", 3),
		SyncPollInterval:     getDurationEnv("SYNC_POLL_INTERVAL", 5*time.Minute),
		SyncWorkerCount:      getIntEnv("SYNC_WORKER_COUNT", 4),
		SyncJobQueueSize:     getIntEnv("SYNC_JOB_QUEUE_SIZE", 64),

		GoogleAPIBaseURL: getEnv("GOOGLE_API_BASE_URL", "https://www.googleapis.com/calendar/v3"),
		NaverAPIBaseURL:  getEnv("NAVER_API_BASE_URL", "https://openapi.naver.com"),
		CalDAVBaseURL:    getEnv("CALDAV_BASE_URL", ""),
		HTTPTimeout:      getDurationEnv("HTTP_TIMEOUT", 30*time.Second),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
	}

	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.MasterKey == "" {
		return fmt.Errorf("MOKKOJI_MASTER_KEY is required")
	}
	if c.KeySalt == "" {
		return fmt.Errorf("MOKKOJI_KEY_SALT is required")
	}
	if c.SyncWindowPastDays < 0 || c.SyncWindowFutureDays < 0 {
		return fmt.Errorf("sync window days must be non-negative")
	}
	if c.SyncMaxRetries < 0 {
		return fmt.Errorf("SYNC_MAX_RETRIES must be non-negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
