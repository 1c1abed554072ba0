package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/pipeline"
	"github.com/David-Botos/survey-ingress/pkg/source"
	"github.com/David-Botos/survey-ingress/pkg/store"
)

type loadOptions struct {
	economic string
	survey   string
}

func newLoadCommand(global *globalOptions) *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load both datasets into the target schema",
		Long: `
Loads the economic dataset (regions, indicators, GDP, taxes, gross value added)
and the survey dataset (households, persons and their answers).

A location is a local path, an s3://bucket/key object or a
snowflake://SCHEMA.TABLE table. Paths ending in .xlsx are read as workbooks.
The load refuses to run when the target tables already hold survey data.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runLoad(c.Context(), global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.economic, "economic", "dataset_economico_tratado.csv", "economic dataset location")
	flags.StringVar(&opts.survey, "survey", "dataset_ENANI_tratado_mod.csv", "survey dataset location")

	return cmd
}

func runLoad(ctx context.Context, global *globalOptions, opts *loadOptions) error {
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
	log := env.logger

	loader := source.NewLoader(env.cfg.InputSeparator, log.Named("source"),
		source.WithS3Factory(func(ctx context.Context) (source.ObjectGetter, error) {
			client, err := source.NewS3Client(ctx, source.S3Options{
				Endpoint:        env.cfg.S3Endpoint,
				Region:          env.cfg.S3Region,
				AccessKeyID:     env.cfg.S3AccessKeyID,
				SecretAccessKey: env.cfg.S3SecretAccessKey,
				PathStyle:       env.cfg.S3PathStyle,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		}),
		source.WithSnowflake(func(ctx context.Context) (source.TableQuerier, error) {
			sf, err := env.factory.Snowflake(ctx)
			if err != nil {
				return nil, err
			}
			return sf, nil
		}),
	)

	economic, err := loader.Load(ctx, opts.economic)
	if err != nil {
		log.Error("Failed to read economic dataset", zap.Error(err))
		return err
	}
	survey, err := loader.Load(ctx, opts.survey)
	if err != nil {
		log.Error("Failed to read survey dataset", zap.Error(err))
		return err
	}

	st, err := store.New(env.postgres.DBX(), env.cfg.Schema, env.cfg.BatchSize, log.Named("store"))
	if err != nil {
		return err
	}

	p, err := pipeline.New(st, pipeline.Options{
		Schema:          env.cfg.Schema,
		ResolveStrategy: env.cfg.ResolveStrategy,
		RecordCleaning:  env.cfg.RecordCleaning,
	}, log)
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx, pipeline.Input{Economic: economic, Survey: survey})

	if path := env.cfg.MetricsTextfile; path != "" {
		if err := p.Metrics().WriteTextfile(path); err != nil {
			log.Warn("Failed to write metrics", zap.Error(err))
		}
	}

	if runErr != nil {
		p.ErrorHandler().LogSummary(log)
		log.Error("Load failed",
			zap.String("runID", result.RunID),
			zap.Error(runErr))
		return runErr
	}

	log.Info("Load succeeded",
		zap.String("runID", result.RunID),
		zap.Int("regions", result.Regions),
		zap.Int("households", result.Households),
		zap.Int("persons", result.Persons),
		zap.Int("rejectedSurveyRows", result.RejectedSurvey),
		zap.Int("rejectedEconomicRows", result.RejectedEconomic),
		zap.Int("cleaningOps", result.CleaningOps),
		zap.Duration("duration", result.Duration))

	return nil
}
