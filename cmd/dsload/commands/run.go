package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/dsload/internal/config"
	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/pipeline"
	"github.com/systmms/dsload/internal/transform"
)

func NewRunCommand(cfg *config.Config) *cobra.Command {
	var (
		params          pipeline.Params
		warnNoop        bool
		metricsTextfile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract an object, transform it and load it into the warehouse",
		Long: `Run one extract, transform and load pass.

The object is read from the storage block's bucket and decoded by extension
(.csv, .parquet or .json). Column rules, the table name and the schema come
from the config block; --table and --schema override them.

The warehouse connector comes from --warehouse-block when it loads, otherwise
it is built from the <PREFIX>_ACCOUNT, _USER, _PASSWORD, _WAREHOUSE,
_DATABASE, _SCHEMA and _ROLE secrets of the environment.

Examples:
  # Load with table and schema from the etl-config block
  dsload run --key raw/customers.csv --storage-block dev-data-bucket

  # Override the destination and use a registered warehouse block
  dsload run --key raw/events.parquet --table EVENTS --schema RAW \
    --warehouse-block prod-warehouse --env prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if params.Key == "" {
				return dserrors.UserError{
					Message:    "Object key is required",
					Suggestion: "Use --key <path/in/bucket.csv>",
				}
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			params.Environment = a.environment()

			if metricsTextfile != "" {
				pipeline.InitMetrics()
			}

			timeout := time.Duration(cfg.Definition.Warehouse.GetTimeout()) * time.Millisecond
			orch := pipeline.New(pipeline.Options{
				Blocks:   a.blocks,
				Readers:  pipeline.S3Readers(a.blocks, cfg.Logger),
				Acquirer: a.acquirer(),
				Sinks:    pipeline.WarehouseSinks(timeout, cfg.Logger),
				Engine:   transform.NewEngine(transform.Options{WarnOnNoop: warnNoop, Logger: cfg.Logger}),
				Logger:   cfg.Logger,
			})

			cfg.Logger.Debug("Running pipeline for environment %s", params.Environment)
			res, runErr := orch.Run(context.Background(), params)

			if metricsTextfile != "" {
				if err := pipeline.WriteTextfile(metricsTextfile); err != nil {
					cfg.Logger.Warn("Failed to write metrics to %s: %v", metricsTextfile, err)
				}
			}

			if runErr != nil {
				cfg.Logger.Error("Pipeline failed while %s", res.Trail[len(res.Trail)-2])
				return runErr
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Key, "key", "", "Object key in the bucket (required)")
	cmd.Flags().StringVar(&params.StorageBlock, "storage-block", pipeline.DefaultStorageBlock, "Storage block name")
	cmd.Flags().StringVar(&params.ConfigBlock, "config-block", pipeline.DefaultConfigBlock, "Config block with transform rules")
	cmd.Flags().StringVar(&params.WarehouseBlock, "warehouse-block", "", "Warehouse block name (falls back to secrets)")
	cmd.Flags().StringVar(&params.Table, "table", "", "Destination table (default: config table_name)")
	cmd.Flags().StringVar(&params.Schema, "schema", "", "Destination schema (default: config schema)")
	cmd.Flags().BoolVar(&warnNoop, "warn-noop", false, "Warn when a transform rule targets a missing column")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")

	_ = cmd.MarkFlagRequired("key")

	return cmd
}
