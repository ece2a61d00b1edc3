package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/systmms/dsload/cmd/dsload/commands"
	"github.com/systmms/dsload/internal/config"
	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	memguard.CatchInterrupt()
	err := run()
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	cfg := &config.Config{}

	// Every persistent flag may also come from DSLOAD_<FLAG> in the environment
	v := viper.New()
	v.SetEnvPrefix("DSLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "dsload",
		Short: "Load tabular data from object storage into a warehouse",
		Long: `dsload reads a CSV, Parquet or JSON object from S3, applies the column
rules from a config block and appends the result to a warehouse table.

Warehouse credentials come from a registered warehouse block or are resolved
through the remote secret bundle, the local keyring and the environment.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = v.GetString("config")
			cfg.Explicit = v.IsSet("config")
			cfg.Environment = v.GetString("env")
			cfg.Logger = logging.New(v.GetBool("debug"), v.GetBool("no-color"))
		},
	}

	rootCmd.PersistentFlags().String("config", "dsload.yaml", "Config file path")
	rootCmd.PersistentFlags().String("env", "", "Deployment environment (default: config, then ENVIRONMENT, then dev)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	rootCmd.AddCommand(
		commands.NewRunCommand(cfg),
		commands.NewRegisterCommand(cfg),
		commands.NewSecretCommand(cfg),
		commands.NewBlocksCommand(cfg),
	)

	return rootCmd.Execute()
}
