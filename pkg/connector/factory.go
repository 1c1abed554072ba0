// pkg/connector/factory.go
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
)

// ConnectorFactory opens connectors from one configuration and closes them
// together. The Snowflake connector is opened at most once.
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger

	mu        sync.Mutex
	snowflake *SnowflakeConnector
	opened    []DatabaseConnector
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{cfg: cfg, logger: logger}
}

// CreatePostgresConnector opens a pool on the target database bound to the
// target schema
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	c, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.cfg.Schema)
	if err != nil {
		return nil, err
	}
	f.track(c)
	return c, nil
}

// Snowflake returns the shared Snowflake connector, reading the Snowflake
// settings and opening the pool on first use
func (f *ConnectorFactory) Snowflake(ctx context.Context) (*SnowflakeConnector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.snowflake != nil {
		return f.snowflake, nil
	}

	sfCfg, err := f.cfg.SnowflakeSource()
	if err != nil {
		return nil, err
	}
	c, err := NewSnowflakeConnector(ctx, sfCfg)
	if err != nil {
		return nil, err
	}

	f.snowflake = c
	f.opened = append(f.opened, c)
	return c, nil
}

func (f *ConnectorFactory) track(c DatabaseConnector) {
	f.mu.Lock()
	f.opened = append(f.opened, c)
	f.mu.Unlock()
}

// Close closes every connector the factory opened, newest first
func (f *ConnectorFactory) Close() error {
	f.mu.Lock()
	opened := f.opened
	f.opened, f.snowflake = nil, nil
	f.mu.Unlock()

	var errs []error
	for i := len(opened) - 1; i >= 0; i-- {
		if err := opened[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connector %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		f.logger.Warn("Connectors closed with errors", zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}
