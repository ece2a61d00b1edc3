package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/cloud"
	"github.com/systmms/dsload/internal/config"
	"github.com/systmms/dsload/internal/connector"
	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/pipeline"
)

// NewRegisterCommand groups the block registration commands. Registering
// under an existing name replaces the previous block.
func NewRegisterCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register credentials, secrets and blocks",
		Long: `Register named blocks used by 'dsload run'.

Every register command overwrites an existing block or secret with the same
name. Sensitive values are stored in the OS keyring, never in block files.`,
	}

	cmd.AddCommand(
		newRegisterCredentialsCommand(cfg),
		newRegisterSecretsCommand(cfg),
		newRegisterStorageCommand(cfg),
		newRegisterWarehouseCommand(cfg),
		newRegisterConfigCommand(cfg),
	)
	return cmd
}

func newRegisterCredentialsCommand(cfg *config.Config) *cobra.Command {
	var b blocks.Credentials

	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"aws-credentials"},
		Short:   "Register cloud credentials used by the remote secret store and S3",
		Long: `Register a credentials block.

For AWS, keys missing from flags are read from AWS_ACCESS_KEY_ID,
AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN and AWS_REGION. Without keys the
block uses --profile or the default AWS credential chain.

Examples:
  dsload register aws-credentials
  dsload register credentials --name gcp-credentials --provider gcp --credentials-file sa.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			env := cfg.Settings.LookupEnv

			switch b.Provider {
			case "aws":
				fillFromEnv(&b.AccessKeyID, env, "AWS_ACCESS_KEY_ID")
				fillFromEnv(&b.SecretAccessKey, env, "AWS_SECRET_ACCESS_KEY")
				fillFromEnv(&b.SessionToken, env, "AWS_SESSION_TOKEN")
				fillFromEnv(&b.Region, env, "AWS_REGION")
				if b.Region == "" {
					b.Region = cloud.DefaultAWSRegion
				}
				if (b.AccessKeyID == "") != (b.SecretAccessKey == "") {
					return dserrors.UserError{
						Message:    "AWS access key ID and secret access key must be given together",
						Suggestion: "Set both AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or neither to use a profile",
					}
				}
			case "gcp":
			case "azure":
				fillFromEnv(&b.TenantID, env, "AZURE_TENANT_ID")
				fillFromEnv(&b.ClientID, env, "AZURE_CLIENT_ID")
				fillFromEnv(&b.ClientSecret, env, "AZURE_CLIENT_SECRET")
			default:
				return dserrors.ConfigError{
					Field:      "provider",
					Value:      b.Provider,
					Message:    "unsupported credentials provider",
					Suggestion: "Use 'aws', 'gcp' or 'azure'",
				}
			}

			if err := a.blocks.SaveCredentials(&b); err != nil {
				return err
			}
			cfg.Logger.Info("Credentials block %s registered", b.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Name, "name", config.DefaultCredentialsBlock, "Block name")
	cmd.Flags().StringVar(&b.Provider, "provider", "aws", "Cloud provider: aws, gcp or azure")
	cmd.Flags().StringVar(&b.Region, "region", "", "AWS region (default: AWS_REGION, then us-west-2)")
	cmd.Flags().StringVar(&b.Profile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVar(&b.RoleARN, "role-arn", "", "AWS role to assume")
	cmd.Flags().StringVar(&b.AccessKeyID, "access-key-id", "", "AWS access key ID (default: AWS_ACCESS_KEY_ID)")
	cmd.Flags().StringVar(&b.CredentialsFile, "credentials-file", "", "GCP service account key file")
	cmd.Flags().StringVar(&b.TenantID, "tenant-id", "", "Azure tenant ID (default: AZURE_TENANT_ID)")
	cmd.Flags().StringVar(&b.ClientID, "client-id", "", "Azure client ID (default: AZURE_CLIENT_ID)")

	return cmd
}

func newRegisterSecretsCommand(cfg *config.Config) *cobra.Command {
	var fromEnv bool

	cmd := &cobra.Command{
		Use:   "secrets [KEY=VALUE ...]",
		Short: "Store named secrets in the local keyring",
		Long: `Store secrets in the local keyring tier of the secret resolver.

With --from-env, every warehouse connection key (<PREFIX>_ACCOUNT, _USER,
_PASSWORD, _WAREHOUSE, _DATABASE, _SCHEMA, _ROLE) that is set in the
environment is copied into the keyring. Unset keys are skipped.

Examples:
  dsload register secrets --from-env
  dsload register secrets WAREHOUSE_ROLE=LOADER`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fromEnv && len(args) == 0 {
				return dserrors.UserError{
					Message:    "No secrets given",
					Suggestion: "Pass KEY=VALUE arguments or --from-env",
				}
			}

			pairs := make([][2]string, 0, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return dserrors.UserError{
						Message:    fmt.Sprintf("Invalid secret argument '%s'", key),
						Suggestion: "Use KEY=VALUE",
					}
				}
				pairs = append(pairs, [2]string{key, value})
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			if fromEnv {
				acq := a.acquirer()
				for _, suffix := range []string{
					connector.KeyAccount, connector.KeyUser, connector.KeyPassword, connector.KeyWarehouse,
					connector.KeyDatabase, connector.KeySchema, connector.KeyRole,
				} {
					key := acq.SecretKey(suffix)
					if v, ok := cfg.Settings.LookupEnv(key); ok && v != "" {
						pairs = append(pairs, [2]string{key, v})
					}
				}
			}

			store := a.localStore()
			for _, p := range pairs {
				if err := store.Save(p[0], p[1]); err != nil {
					return dserrors.BackendError("keyring", "save", err)
				}
				cfg.Logger.Info("Secret %s registered", p[0])
			}
			if len(pairs) == 0 {
				cfg.Logger.Warn("No warehouse secrets found in the environment")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromEnv, "from-env", false, "Copy warehouse secrets from the environment")
	return cmd
}

func newRegisterStorageCommand(cfg *config.Config) *cobra.Command {
	var b blocks.Storage

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Register an S3 bucket block",
		Long: `Register a storage block pointing at an S3 bucket.

Examples:
  dsload register storage --name dev-data-bucket --bucket data-platform-dev-data
  dsload register storage --name local --bucket test --endpoint http://localhost:9000 --path-style`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if b.BucketName == "" {
				return dserrors.UserError{
					Message:    "Bucket name is required",
					Suggestion: "Use --bucket <bucket-name>",
				}
			}
			if b.Name == "" {
				b.Name = pipeline.DefaultStorageBlock
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			if err := a.blocks.SaveStorage(&b); err != nil {
				return err
			}
			cfg.Logger.Info("Storage block %s registered for bucket %s", b.Name, b.BucketName)
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Name, "name", pipeline.DefaultStorageBlock, "Block name")
	cmd.Flags().StringVar(&b.BucketName, "bucket", "", "S3 bucket name (required)")
	cmd.Flags().StringVar(&b.Region, "region", "", "Bucket region")
	cmd.Flags().StringVar(&b.Endpoint, "endpoint", "", "Custom S3 endpoint")
	cmd.Flags().BoolVar(&b.PathStyle, "path-style", false, "Use path-style addressing")
	cmd.Flags().StringVar(&b.Credentials, "credentials", "", "Credentials block (default: AWS credential chain)")

	return cmd
}

func newRegisterWarehouseCommand(cfg *config.Config) *cobra.Command {
	var (
		b             blocks.Warehouse
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "warehouse",
		Short: "Register a warehouse connector block",
		Long: `Register a warehouse connector block.

The password is read from stdin with --password-stdin, otherwise from the
<PREFIX>_PASSWORD environment variable.

Examples:
  echo "$PW" | dsload register warehouse --name dev-warehouse --account db:5432 \
    --user loader --database DEV_DB --schema DEV_SCHEMA --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			if passwordStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read password from stdin: %w", err)
				}
				b.Password = strings.TrimRight(string(data), "\r\n")
			} else {
				key := a.acquirer().SecretKey(connector.KeyPassword)
				fillFromEnv(&b.Password, cfg.Settings.LookupEnv, key)
			}
			if b.Driver == "" {
				b.Driver = cfg.Definition.Warehouse.Driver
			}

			if b.Account == "" || b.User == "" || b.Database == "" {
				return dserrors.UserError{
					Message:    "Account, user and database are required",
					Suggestion: "Use --account, --user and --database",
				}
			}

			if err := a.blocks.SaveWarehouse(&b); err != nil {
				return err
			}
			cfg.Logger.Info("Warehouse block %s registered", b.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Name, "name", "", "Block name (required)")
	cmd.Flags().StringVar(&b.Driver, "driver", "", "postgres or mysql (default: warehouse.driver in config)")
	cmd.Flags().StringVar(&b.Account, "account", "", "Warehouse host[:port]")
	cmd.Flags().StringVar(&b.User, "user", "", "Warehouse user")
	cmd.Flags().StringVar(&b.Warehouse, "warehouse", "", "Compute warehouse, sent as the application name")
	cmd.Flags().StringVar(&b.Database, "database", "", "Database")
	cmd.Flags().StringVar(&b.Schema, "schema", "", "Default schema")
	cmd.Flags().StringVar(&b.Role, "role", "", "Role set after connecting")
	cmd.Flags().StringVar(&b.SSLMode, "sslmode", "", "TLS mode (postgres sslmode; anything but 'disable' enables TLS for mysql)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRegisterConfigCommand(cfg *config.Config) *cobra.Command {
	var (
		name string
		file string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Register a job config block with transform rules",
		Long: `Register a config block from a JSON file ('-' reads stdin).

The value holds transform_rules and optionally table_name and schema:

  {
    "table_name": "customers",
    "schema": "DEV_SCHEMA",
    "transform_rules": {
      "drop_columns": ["temp_col"],
      "rename_columns": {"old_name": "new_name"},
      "fill_na": {"status": "unknown"}
    }
  }

The value is validated before it is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return dserrors.UserError{
					Message:    "Failed to read config value",
					Suggestion: "Use --file <path.json> or --file - for stdin",
					Err:        err,
				}
			}

			if _, err := pipeline.ParseJobConfig(data); err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			if err := a.blocks.SaveConfig(&blocks.Config{Name: name, Value: json.RawMessage(data)}); err != nil {
				return err
			}
			cfg.Logger.Info("Config block %s registered", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", pipeline.DefaultConfigBlock, "Block name")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with the config value (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func fillFromEnv(dst *string, lookup func(string) (string, bool), key string) {
	if *dst != "" {
		return
	}
	if v, ok := lookup(key); ok {
		*dst = v
	}
}
