// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake.
// It is only used to read staged survey tables.
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

var _ DatabaseConnector = (*SnowflakeConnector)(nil)

// NewSnowflakeConnector opens a Snowflake pool with cfg
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector").With(
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database))
	logger.Info("Opening Snowflake pool",
		zap.String("user", cfg.User),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := snowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openPool(ctx, "snowflake", dsn, cfg.Pool, snowflakePingTimeout)
	if err != nil {
		return nil, fmt.Errorf("snowflake account %s: %w", cfg.Account, err)
	}
	LogConnectionStats(logger, cfg.Database, db)

	return &SnowflakeConnector{db: db, logger: logger, cfg: cfg}, nil
}

const snowflakePingTimeout = 10 * time.Second

// snowflakeDSN renders cfg with the driver's DSN builder. Credentials never
// reach the logs.
func snowflakeDSN(cfg *config.SnowflakeConfig) (string, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	})
	if err != nil {
		return "", fmt.Errorf("snowflake dsn: %w", err)
	}
	return dsn, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Validate checks the session landed in the configured database
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var session struct {
		role, database, warehouse sql.NullString
	}
	row := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()")
	if err := row.Scan(&session.role, &session.database, &session.warehouse); err != nil {
		return fmt.Errorf("snowflake session: %w", err)
	}

	if !strings.EqualFold(session.database.String, c.cfg.Database) {
		return fmt.Errorf("snowflake session is in database %q, want %q",
			session.database.String, c.cfg.Database)
	}

	c.logger.Info("Snowflake session ready",
		zap.String("role", session.role.String),
		zap.String("warehouse", session.warehouse.String))
	return nil
}

// Close releases the pool
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake pool")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// QueryTable streams every row of schema.table to processor in the order
// the warehouse returns them, ordered by orderBy when it is set. Column
// types are the driver's database type names.
func (c *SnowflakeConnector) QueryTable(
	ctx context.Context,
	schema, table, orderBy string,
	processor func(columns, types []string, values []interface{}) error,
) error {
	query := fmt.Sprintf("SELECT * FROM %s.%s", quoteSnowflakeIdent(schema), quoteSnowflakeIdent(table))
	if orderBy != "" {
		query += " ORDER BY " + quoteSnowflakeIdent(orderBy)
	}

	queryCtx := ctx
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := c.db.QueryContext(queryCtx, query)
	if err != nil {
		return fmt.Errorf("query %s.%s failed: %w", schema, table, err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	columns := make([]string, len(colTypes))
	types := make([]string, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ct.Name()
		types[i] = ct.DatabaseTypeName()
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := processor(columns, types, values); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

func quoteSnowflakeIdent(name string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}
