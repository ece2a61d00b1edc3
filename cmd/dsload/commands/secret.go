package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/dsload/internal/config"
)

func NewSecretCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Inspect secrets through the resolver chain",
	}
	cmd.AddCommand(newSecretGetCommand(cfg))
	return cmd
}

func newSecretGetCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Resolve a single secret",
		Long: `Resolve a secret through the remote bundle, the local keyring and the
environment, in that order, and print the first value found.

By default only the raw value is printed, making it suitable for scripting.

Examples:
  dsload secret get WAREHOUSE_PASSWORD --env dev
  export PW=$(dsload secret get WAREHOUSE_PASSWORD)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			env := a.environment()
			resolver := a.resolver(env)
			value, err := resolver.GetSecret(context.Background(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				output := map[string]interface{}{
					"key":              args[0],
					"value":            value,
					"environment":      env,
					"remote_available": resolver.RemoteAvailable(),
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(output); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				return nil
			}

			_, _ = fmt.Fprint(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with metadata")
	return cmd
}
