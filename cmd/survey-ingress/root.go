package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
	"github.com/David-Botos/survey-ingress/pkg/connector"
	"github.com/David-Botos/survey-ingress/pkg/logger"
)

const serviceName = "survey-ingress"

// globalOptions are shared by every subcommand
type globalOptions struct {
	envFiles []string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Load survey and economic datasets into PostgreSQL",
		Long: `
Loads a regional economic dataset and a per-person household survey into the
normalized ods schema, synthesizing household and person identifiers, and runs
report queries against the loaded schema.

Connection settings are read from the environment, optionally from .env files.
`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(
		newLoadCommand(opts),
		newReportCommand(opts, stdout),
	)

	return rootCmd
}

// environment holds what every command needs once configuration is read
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	factory  *connector.ConnectorFactory
	postgres *connector.PostgresConnector
}

// setup reads configuration, builds the logger and opens the target store
func setup(ctx context.Context, opts *globalOptions) (*environment, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	factory := connector.NewConnectorFactory(cfg, log)

	pg, err := factory.CreatePostgresConnector(ctx)
	if err != nil {
		log.Error("Failed to connect to PostgreSQL", zap.Error(err))
		return nil, err
	}
	if err := pg.Validate(ctx); err != nil {
		log.Error("PostgreSQL validation failed", zap.Error(err))
		_ = factory.Close()
		return nil, err
	}

	return &environment{
		cfg:      cfg,
		logger:   log,
		factory:  factory,
		postgres: pg,
	}, nil
}

// Close releases every opened connection and flushes logs
func (e *environment) Close() {
	if err := e.factory.Close(); err != nil {
		e.logger.Warn("Failed to close connections", zap.Error(err))
	}
	_ = e.logger.Sync()
}
