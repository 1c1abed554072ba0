// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
	"github.com/David-Botos/survey-ingress/pkg/model"
)

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
	schema string
}

var _ DatabaseConnector = (*PostgresConnector)(nil)

// NewPostgresConnector creates and initializes a new PostgreSQL connector.
// Every pooled connection gets the statement timeout and a search_path
// pointing at the target schema.
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig, schema string) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector").With(
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.String("database", cfg.Database))
	logger.Info("Opening PostgreSQL pool", zap.String("user", cfg.User), zap.String("schema", schema))

	db, err := openPool(ctx, "pgx", DSN(cfg, schema), cfg.Pool, postgresPingTimeout)
	if err != nil {
		return nil, fmt.Errorf("postgres %s@%s:%d: %w", cfg.User, cfg.Host, cfg.Port, err)
	}
	LogConnectionStats(logger, cfg.Database, db)

	return &PostgresConnector{
		db:     sqlx.NewDb(db, "pgx"),
		logger: logger,
		cfg:    cfg,
		schema: schema,
	}, nil
}

const postgresPingTimeout = 5 * time.Second

// DSN returns the connection string with per-connection runtime settings
func DSN(cfg *config.PostgresConfig, schema string) string {
	dsn := cfg.ConnectionString()
	if cfg.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", cfg.StatementTimeout.Milliseconds())
	}
	if schema != "" {
		dsn += fmt.Sprintf(" search_path=%s,public", schema)
	}
	return dsn
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db.DB
}

// DBX returns the sqlx handle used by the store
func (c *PostgresConnector) DBX() *sqlx.DB {
	return c.db
}

// Validate verifies the PostgreSQL connection and that the target schema
// carries every table the load writes to
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT current_setting('server_version')"); err != nil {
		return fmt.Errorf("server version: %w", err)
	}

	var existing []string
	err := c.db.SelectContext(ctx, &existing,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = $1", c.schema)
	if err != nil {
		return fmt.Errorf("list tables in schema %s: %w", c.schema, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("schema %s does not exist or holds no tables", c.schema)
	}

	if missing := missingTables(existing, RequiredTables); len(missing) > 0 {
		return fmt.Errorf("schema %s is missing tables: %s", c.schema, strings.Join(missing, ", "))
	}

	c.logger.Info("Target schema ready",
		zap.String("server_version", version),
		zap.String("schema", c.schema),
		zap.Int("tables", len(existing)))
	return nil
}

// missingTables lists the required tables absent from existing
func missingTables(existing []string, required []model.TableMetadata) []string {
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}

	var missing []string
	for _, tm := range required {
		if !present[tm.Table] {
			missing = append(missing, tm.Table)
		}
	}
	return missing
}

// RequiredTables must exist before a load. The cleaning audit table is
// created on demand and is not listed.
var RequiredTables = append([]model.TableMetadata{model.RegionTable, model.IndicatorTable}, model.FactTables...)

// Close releases the pool
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL pool")
	LogConnectionStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}
