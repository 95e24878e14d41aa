package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/papaya/internal/logger"
)

// Config holds all configuration for the papaya queue processes
type Config struct {
	// RedisURL is the connection URL for Redis
	RedisURL string
	// Namespace is the Redis key prefix, configurable once per process
	Namespace string
	// APIPort is the port the API server listens on
	APIPort string
	// WorkerConcurrency is the target number of in-flight jobs per worker
	WorkerConcurrency int
	// JobTimeout is the default process timeout for a single attempt
	JobTimeout time.Duration
	// RetryTimes is the default maximum attempts after the first
	RetryTimes int
	// RetryInterval is the default delay before a retried job becomes runnable
	RetryInterval time.Duration
	// GhostTimes is the default maximum permitted ghost occurrences
	GhostTimes int
	// GhostInterval is the default delay before a ghosted job becomes runnable
	GhostInterval time.Duration
	// SchedulerEnabled enables the periodic scheduled-set promoter
	SchedulerEnabled bool
	// SchedulerInterval is how often the scheduler checks the scheduled set
	SchedulerInterval time.Duration
	// PopTimeout is the blocking-pop timeout used by the worker loop
	PopTimeout time.Duration
	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		Namespace:         getEnv("NAMESPACE", "papaya"),
		APIPort:           getEnv("API_PORT", "8080"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 1),
		JobTimeout:        getEnvAsDuration("JOB_TIMEOUT", 1*time.Minute),
		RetryTimes:        getEnvAsInt("RETRY_TIMES", 3),
		RetryInterval:     getEnvAsDuration("RETRY_INTERVAL", 10*time.Second),
		GhostTimes:        getEnvAsInt("GHOST_TIMES", 1),
		GhostInterval:     getEnvAsDuration("GHOST_INTERVAL", 10*time.Second),
		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", 1*time.Second),
		PopTimeout:        getEnvAsDuration("POP_TIMEOUT", 3*time.Second),
		Logging:           loadLoggingConfig(),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL cannot be empty")
	}
	if strings.Contains(cfg.Namespace, ":") {
		return nil, fmt.Errorf("NAMESPACE must not contain ':'")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.RetryTimes < 0 {
		return nil, fmt.Errorf("RETRY_TIMES cannot be negative")
	}
	if cfg.GhostTimes < 0 {
		return nil, fmt.Errorf("GHOST_TIMES cannot be negative")
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	// Tier 2: File
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/papaya/papaya.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	return cfg
}
