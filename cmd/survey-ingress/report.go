package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/report"
)

type reportOptions struct {
	regionPrefix string
}

func newReportCommand(global *globalOptions, stdout io.Writer) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report [flags] query.sql...",
		Short: "Run SQL files against the target schema and print the results",
		Long: `
Runs each SQL file in order and prints its result as a table. With
--region-prefix, results that carry an id_regiao column keep only the rows
whose region id starts with the prefix.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runReport(c.Context(), global, opts, stdout, args)
		},
	}

	cmd.Flags().StringVar(&opts.regionPrefix, "region-prefix", "", "keep only rows whose id_regiao starts with this prefix")

	return cmd
}

func runReport(ctx context.Context, global *globalOptions, opts *reportOptions, stdout io.Writer, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, global)
	if err != nil {
		return err
	}
	defer env.Close()

	runner, err := report.NewRunner(env.postgres.DBX(), stdout, env.logger.Named("report"),
		report.WithRegionPrefix(opts.regionPrefix))
	if err != nil {
		return err
	}

	if err := runner.RunFiles(ctx, files...); err != nil {
		env.logger.Error("Report failed", zap.Error(err))
		return err
	}
	return nil
}
