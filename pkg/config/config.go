// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identifier resolution strategies
const (
	ResolveReturning = "returning"
	ResolveHighWater = "highwater"
)

// Config represents the application configuration
type Config struct {
	// Target store
	Postgres *PostgresConfig
	Schema   string

	// Optional sources, loaded lazily when a location needs them
	Snowflake *SnowflakeConfig

	// Load settings
	BatchSize       int
	ResolveStrategy string
	RecordCleaning  bool
	InputSeparator  rune

	// Object storage for s3:// sources
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool

	// Observability
	MetricsTextfile string
	LogLevel        string
	LogFormat       string
}

// LoadDotEnv loads variables from the given .env files when they exist.
// Variables already present in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	sep, err := getEnvAsRune("INPUT_SEPARATOR", ';')
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Schema:            getEnv("TARGET_SCHEMA", "ods"),
		BatchSize:         getEnvAsInt("BATCH_SIZE", 500),
		ResolveStrategy:   strings.ToLower(getEnv("RESOLVE_STRATEGY", ResolveReturning)),
		RecordCleaning:    getEnvAsBool("RECORD_CLEANING", true),
		InputSeparator:    sep,
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:       getEnvAsBool("S3_PATH_STYLE", false),
		MetricsTextfile:   getEnv("METRICS_TEXTFILE", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}

	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	switch c.ResolveStrategy {
	case ResolveReturning, ResolveHighWater:
	default:
		return fmt.Errorf("unknown resolve strategy %q (want %q or %q)",
			c.ResolveStrategy, ResolveReturning, ResolveHighWater)
	}

	if c.InputSeparator == 0 || c.InputSeparator == '\n' || c.InputSeparator == '\r' {
		return errors.New("input separator must be a printable character")
	}

	return nil
}

// SnowflakeSource returns the Snowflake configuration, loading it on first use.
func (c *Config) SnowflakeSource() (*SnowflakeConfig, error) {
	if c.Snowflake != nil {
		return c.Snowflake, nil
	}
	sf, err := LoadSnowflakeConfig()
	if err != nil {
		return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
	}
	c.Snowflake = sf
	return sf, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvFirst returns the first non-empty variable among keys.
func getEnvFirst(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	seconds := getEnvAsInt(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsRune(key string, defaultValue rune) (rune, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	if valueStr == `\t` || valueStr == "tab" {
		return '\t', nil
	}

	runes := []rune(valueStr)
	if len(runes) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", key, valueStr)
	}
	return runes[0], nil
}
