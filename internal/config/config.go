package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// PMSSyncQueueURL is the SQS queue that receives asynchronous
	// practice-management-system cancel/reschedule jobs.
	PMSSyncQueueURL string
	SyncWorkerCount int

	// Vet PMS (practice management system) API configuration.
	PMSBaseURL     string
	PMSSearchLimit int
	PMSDryRun      bool
	PMSHTTPTimeout time.Duration
	PMSSessionIdle time.Duration

	// Staff notification email (SES).
	NotifyFromEmail string
	NotifyFromName  string

	// HoldExpiry is how long the store keeps an unconfirmed booking hold.
	// Enforced by the book_slot_with_hold procedure, surfaced to callers.
	HoldExpiry time.Duration

	// MaxRangeDays caps multi-day availability lookups.
	MaxRangeDays int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		PMSSyncQueueURL: getEnv("PMS_SYNC_QUEUE_URL", ""),
		SyncWorkerCount: getEnvAsInt("SYNC_WORKER_COUNT", 2),

		PMSBaseURL:     getEnv("PMS_BASE_URL", ""),
		PMSSearchLimit: getEnvAsInt("PMS_SEARCH_LIMIT", 5),
		PMSDryRun:      getEnvAsBool("PMS_DRY_RUN", false),
		PMSHTTPTimeout: getEnvAsDuration("PMS_HTTP_TIMEOUT", 15*time.Second),
		PMSSessionIdle: getEnvAsDuration("PMS_SESSION_IDLE", 2*time.Minute),

		NotifyFromEmail: getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:  getEnv("NOTIFY_FROM_NAME", "VetDesk AI"),

		HoldExpiry: getEnvAsDuration("HOLD_EXPIRY", 5*time.Minute),

		MaxRangeDays: getEnvAsInt("MAX_RANGE_DAYS", 14),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
