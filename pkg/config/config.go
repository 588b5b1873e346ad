package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cratehub/registry/pkg/observability"
)

// Run modes for the aggregator.
const (
	ModeDaemon  = "daemon"
	ModeOneShot = "once"
)

// Config holds all aggregator configuration
type Config struct {
	Database      DatabaseConfig
	Aggregator    AggregatorConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// AggregatorConfig holds the aggregation engine and driver configuration
type AggregatorConfig struct {
	// Mode is "daemon" or "once".
	Mode string
	// SleepInterval is the pause between daemon runs.
	SleepInterval time.Duration
	// Schedule, when non-empty, is a cron expression that replaces the
	// fixed interval.
	Schedule string
	// PageSize bounds rows per page transaction.
	PageSize int
	// FreezeWindow is the age past which counter rows are frozen.
	FreezeWindow time.Duration
	// MigrateOnStart applies pending schema migrations before the first run.
	MigrateOnStart bool
}

// RedisConfig holds the optional counter cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	HealthPort     string

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables, then overlays
// the optional YAML file named by REGISTRY_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:      loadDatabaseConfig(),
		Aggregator:    loadAggregatorConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("REGISTRY_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("DATABASE_URL", "postgres://localhost/registry?sslmode=disable"),
		MaxConns:    getEnvInt("REGISTRY_DB_MAX_CONNS", 10),
		MinConns:    getEnvInt("REGISTRY_DB_MIN_CONNS", 2),
		Timeout:     getEnvDuration("REGISTRY_DB_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("REGISTRY_DB_MAX_LIFETIME", 1*time.Hour),
		MaxIdleTime: getEnvDuration("REGISTRY_DB_MAX_IDLE_TIME", 10*time.Minute),
	}
}

func loadAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Mode:           getEnv("REGISTRY_AGGREGATOR_MODE", ModeOneShot),
		SleepInterval:  getEnvDuration("REGISTRY_AGGREGATOR_SLEEP_INTERVAL", 60*time.Second),
		Schedule:       getEnv("REGISTRY_AGGREGATOR_SCHEDULE", ""),
		PageSize:       getEnvInt("REGISTRY_AGGREGATOR_PAGE_SIZE", 10000),
		FreezeWindow:   getEnvDuration("REGISTRY_AGGREGATOR_FREEZE_WINDOW", 24*time.Hour),
		MigrateOnStart: getEnvBool("REGISTRY_AGGREGATOR_MIGRATE", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("REGISTRY_REDIS_ENABLED", false),
		Addr:     getEnv("REGISTRY_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REGISTRY_REDIS_PASSWORD", ""),
		DB:       getEnvInt("REGISTRY_REDIS_DB", 0),
		TTL:      getEnvDuration("REGISTRY_REDIS_TTL", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("REGISTRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("REGISTRY_METRICS_ENABLED", true),
		HealthPort:         getEnv("REGISTRY_HEALTH_PORT", "9090"),
		OTelEnabled:        getEnvBool("REGISTRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("REGISTRY_OTEL_ENDPOINT", ""),
		OTelServiceName:    getEnv("REGISTRY_OTEL_SERVICE_NAME", "registry-aggregator"),
		OTelServiceVersion: getEnv("REGISTRY_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("REGISTRY_OTEL_INSECURE", false),
	}
}

// fileConfig is the YAML form; only fields present in the file override the
// environment-derived values.
type fileConfig struct {
	Database struct {
		URL      *string `yaml:"url"`
		MaxConns *int    `yaml:"max_conns"`
		MinConns *int    `yaml:"min_conns"`
	} `yaml:"database"`
	Aggregator struct {
		Mode          *string `yaml:"mode"`
		SleepInterval *string `yaml:"sleep_interval"`
		Schedule      *string `yaml:"schedule"`
		PageSize      *int    `yaml:"page_size"`
		FreezeWindow  *string `yaml:"freeze_window"`
	} `yaml:"aggregator"`
	Redis struct {
		Enabled  *bool   `yaml:"enabled"`
		Addr     *string `yaml:"addr"`
		Password *string `yaml:"password"`
		DB       *int    `yaml:"db"`
	} `yaml:"redis"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if fc.Database.URL != nil {
		c.Database.URL = *fc.Database.URL
	}
	if fc.Database.MaxConns != nil {
		c.Database.MaxConns = *fc.Database.MaxConns
	}
	if fc.Database.MinConns != nil {
		c.Database.MinConns = *fc.Database.MinConns
	}
	if fc.Aggregator.Mode != nil {
		c.Aggregator.Mode = *fc.Aggregator.Mode
	}
	if fc.Aggregator.SleepInterval != nil {
		d, err := time.ParseDuration(*fc.Aggregator.SleepInterval)
		if err != nil {
			return fmt.Errorf("invalid sleep_interval: %w", err)
		}
		c.Aggregator.SleepInterval = d
	}
	if fc.Aggregator.Schedule != nil {
		c.Aggregator.Schedule = *fc.Aggregator.Schedule
	}
	if fc.Aggregator.PageSize != nil {
		c.Aggregator.PageSize = *fc.Aggregator.PageSize
	}
	if fc.Aggregator.FreezeWindow != nil {
		d, err := time.ParseDuration(*fc.Aggregator.FreezeWindow)
		if err != nil {
			return fmt.Errorf("invalid freeze_window: %w", err)
		}
		c.Aggregator.FreezeWindow = d
	}
	if fc.Redis.Enabled != nil {
		c.Redis.Enabled = *fc.Redis.Enabled
	}
	if fc.Redis.Addr != nil {
		c.Redis.Addr = *fc.Redis.Addr
	}
	if fc.Redis.Password != nil {
		c.Redis.Password = *fc.Redis.Password
	}
	if fc.Redis.DB != nil {
		c.Redis.DB = *fc.Redis.DB
	}

	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Aggregator.Mode {
	case ModeDaemon:
		if c.Aggregator.Schedule == "" && c.Aggregator.SleepInterval <= 0 {
			return fmt.Errorf("daemon mode requires a sleep interval or a cron schedule")
		}
	case ModeOneShot:
	default:
		return fmt.Errorf("invalid aggregator mode: %s (must be %s or %s)",
			c.Aggregator.Mode, ModeDaemon, ModeOneShot)
	}

	if c.Aggregator.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.Aggregator.FreezeWindow <= 0 {
		return fmt.Errorf("freeze window must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
