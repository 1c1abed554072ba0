// pkg/config/database.go
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// PostgresConfig holds PostgreSQL connection parameters for the target store
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Pool     PoolSettings

	// Applied to every pooled connection
	StatementTimeout time.Duration
}

// SnowflakeConfig holds Snowflake connection parameters for table sources
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Role          string
	Authenticator gosnowflake.AuthType
	Pool          PoolSettings

	// Bounds each table read
	QueryTimeout time.Duration
}

// PoolSettings size a database/sql connection pool. Zero values keep the
// driver defaults.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// loadPoolSettings reads <prefix>_MAX_OPEN_CONNS, <prefix>_MAX_IDLE_CONNS,
// <prefix>_CONN_MAX_LIFETIME_SECONDS and <prefix>_CONN_MAX_IDLE_TIME_SECONDS
func loadPoolSettings(prefix string, defaults PoolSettings) PoolSettings {
	return PoolSettings{
		MaxOpenConns:    getEnvAsInt(prefix+"_MAX_OPEN_CONNS", defaults.MaxOpenConns),
		MaxIdleConns:    getEnvAsInt(prefix+"_MAX_IDLE_CONNS", defaults.MaxIdleConns),
		ConnMaxLifetime: getEnvAsSeconds(prefix+"_CONN_MAX_LIFETIME_SECONDS", defaults.ConnMaxLifetime),
		ConnMaxIdleTime: getEnvAsSeconds(prefix+"_CONN_MAX_IDLE_TIME_SECONDS", defaults.ConnMaxIdleTime),
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables.
// The libpq PG* names are accepted as fallbacks.
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := getEnvFirst("", "POSTGRES_USER", "PGUSER")
	password := getEnvFirst("", "POSTGRES_PASSWORD", "PGPASSWORD")
	database := getEnvFirst("", "POSTGRES_DB", "PGDATABASE")
	if err := requireSet(map[string]string{
		"POSTGRES_USER":     user,
		"POSTGRES_PASSWORD": password,
		"POSTGRES_DB":       database,
	}); err != nil {
		return nil, err
	}

	return &PostgresConfig{
		Host:     getEnvFirst("localhost", "POSTGRES_HOST", "PGHOST"),
		Port:     getEnvAsInt("POSTGRES_PORT", getEnvAsInt("PGPORT", 5432)),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		Pool: loadPoolSettings("POSTGRES", PoolSettings{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		}),
		StatementTimeout: getEnvAsSeconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 5*time.Minute),
	}, nil
}

var snowflakeAuthenticators = map[string]gosnowflake.AuthType{
	"snowflake":       gosnowflake.AuthTypeSnowflake,
	"oauth":           gosnowflake.AuthTypeOAuth,
	"externalbrowser": gosnowflake.AuthTypeExternalBrowser,
	"jwt":             gosnowflake.AuthTypeJwt,
	"okta":            gosnowflake.AuthTypeOkta,
}

// LoadSnowflakeConfig loads Snowflake configuration from environment variables
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	cfg := &SnowflakeConfig{
		User:      os.Getenv("SNOWFLAKE_USER"),
		Password:  os.Getenv("SNOWFLAKE_PASSWORD"),
		Account:   os.Getenv("SNOWFLAKE_ACCOUNT"),
		Warehouse: os.Getenv("SNOWFLAKE_WAREHOUSE"),
		Database:  getEnv("SNOWFLAKE_DATABASE", "SURVEY_STAGING"),
		Role:      getEnv("SNOWFLAKE_ROLE", ""),
		Pool: loadPoolSettings("SNOWFLAKE", PoolSettings{
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 10 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		}),
		QueryTimeout: getEnvAsSeconds("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 5*time.Minute),
	}

	if err := requireSet(map[string]string{
		"SNOWFLAKE_USER":      cfg.User,
		"SNOWFLAKE_PASSWORD":  cfg.Password,
		"SNOWFLAKE_ACCOUNT":   cfg.Account,
		"SNOWFLAKE_WAREHOUSE": cfg.Warehouse,
	}); err != nil {
		return nil, err
	}

	name := strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))
	auth, ok := snowflakeAuthenticators[name]
	if !ok {
		return nil, fmt.Errorf("unsupported SNOWFLAKE_AUTHENTICATOR %q", name)
	}
	cfg.Authenticator = auth

	return cfg, nil
}

// requireSet fails naming every variable whose value is empty
func requireSet(values map[string]string) error {
	var missing []string
	for key, value := range values {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
