package config

import (
	"fmt"
	"os"
	"strings"

	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultEnvironment is used when neither flags, config nor ENVIRONMENT name one
	DefaultEnvironment = "dev"

	// DefaultBundleName is the remote bundle name template
	DefaultBundleName = "data-platform/{environment}/credentials"

	// DefaultCredentialsBlock names the credentials block used to open the remote store
	DefaultCredentialsBlock = "aws-credentials"

	// DefaultKeyringService is the keyring service holding named secrets
	DefaultKeyringService = "dsload"

	// DefaultSecretPrefix prefixes the warehouse connection secret keys
	DefaultSecretPrefix = "WAREHOUSE"

	defaultTimeoutMs = 30000
)

// Config holds the runtime configuration
type Config struct {
	Path string
	// Explicit is set when the path was given by the user; a missing file is
	// then an error instead of falling back to defaults.
	Explicit bool
	// Environment is the --env flag value, empty when not given
	Environment string
	Logger      *logging.Logger
	Definition  *Definition
	Settings    Settings
}

// Definition represents the dsload.yaml structure
type Definition struct {
	Version     int             `yaml:"version"`
	Environment string          `yaml:"environment,omitempty"`
	DotEnv      string          `yaml:"dotenv,omitempty"`
	BlocksDir   string          `yaml:"blocks_dir,omitempty"`
	Remote      RemoteConfig    `yaml:"remote"`
	Local       LocalConfig     `yaml:"local"`
	Warehouse   WarehouseConfig `yaml:"warehouse"`
}

// RemoteConfig configures the remote bundle tier of the secret resolver
type RemoteConfig struct {
	// Type is one of aws.secretsmanager, aws.ssm, gcp.secretmanager,
	// azure.keyvault or none
	Type             string `yaml:"type,omitempty"`
	BundleName       string `yaml:"bundle_name,omitempty"`
	CredentialsBlock string `yaml:"credentials_block,omitempty"`
	Region           string `yaml:"region,omitempty"`
	Endpoint         string `yaml:"endpoint,omitempty"`
	ProjectID        string `yaml:"project_id,omitempty"`
	VaultURL         string `yaml:"vault_url,omitempty"`
	TimeoutMs        int    `yaml:"timeout_ms,omitempty"`
}

// LocalConfig configures the local named-secret tier
type LocalConfig struct {
	Service string `yaml:"service,omitempty"`
}

// WarehouseConfig configures the load target
type WarehouseConfig struct {
	Driver       string `yaml:"driver,omitempty"`
	SecretPrefix string `yaml:"secret_prefix,omitempty"`
	SSLMode      string `yaml:"sslmode,omitempty"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
}

// DefaultDefinition returns the definition used when no dsload.yaml exists
func DefaultDefinition() *Definition {
	def := &Definition{}
	def.applyDefaults()
	return def
}

func (d *Definition) applyDefaults() {
	if d.Remote.Type == "" {
		d.Remote.Type = "aws.secretsmanager"
	}
	if d.Remote.BundleName == "" {
		d.Remote.BundleName = DefaultBundleName
	}
	if d.Remote.CredentialsBlock == "" {
		d.Remote.CredentialsBlock = DefaultCredentialsBlock
	}
	if d.Local.Service == "" {
		d.Local.Service = DefaultKeyringService
	}
	if d.Warehouse.Driver == "" {
		d.Warehouse.Driver = "postgres"
	}
	if d.Warehouse.SecretPrefix == "" {
		d.Warehouse.SecretPrefix = DefaultSecretPrefix
	}
}

// Load reads and parses dsload.yaml, then loads the dotenv file it points at.
// It is meant to run once at process start; the result is treated as immutable.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
	case os.IsNotExist(err) && !c.Explicit:
		c.Definition = DefaultDefinition()
		return c.loadSettings()
	case os.IsNotExist(err):
		return dserrors.ConfigError{
			Field:      "path",
			Value:      c.Path,
			Message:    "configuration file not found",
			Suggestion: "Check the --config path or drop the flag to run with defaults",
		}
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
			Err:        err,
		}
	}

	if def.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your dsload.yaml file",
		}
	}

	if err := def.validate(); err != nil {
		return err
	}

	def.applyDefaults()
	c.Definition = &def
	return c.loadSettings()
}

func (c *Config) loadSettings() error {
	settings, err := LoadSettings(c.Definition.DotEnv)
	if err != nil {
		return err
	}
	c.Settings = settings
	return nil
}

var remoteTypes = []string{"aws.secretsmanager", "aws.ssm", "gcp.secretmanager", "azure.keyvault", "none"}

func (d *Definition) validate() error {
	if d.Remote.Type != "" && !contains(remoteTypes, d.Remote.Type) {
		return dserrors.ConfigError{
			Field:      "remote.type",
			Value:      d.Remote.Type,
			Message:    "unknown remote backend type",
			Suggestion: fmt.Sprintf("Use one of: %s", strings.Join(remoteTypes, ", ")),
		}
	}
	if d.Warehouse.Driver != "" && d.Warehouse.Driver != "postgres" && d.Warehouse.Driver != "mysql" {
		return dserrors.ConfigError{
			Field:      "warehouse.driver",
			Value:      d.Warehouse.Driver,
			Message:    "unsupported warehouse driver",
			Suggestion: "Use 'postgres' or 'mysql'",
		}
	}
	return nil
}

// EffectiveEnvironment resolves the deployment environment as
// explicit value, then config, then the ENVIRONMENT setting, then "dev"
func (c *Config) EffectiveEnvironment(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c.Definition != nil && c.Definition.Environment != "" {
		return c.Definition.Environment
	}
	if env, ok := c.Settings.LookupEnv("ENVIRONMENT"); ok && env != "" {
		return env
	}
	return DefaultEnvironment
}

// BundleNameFor expands the remote bundle name template for an environment
func (r RemoteConfig) BundleNameFor(environment string) string {
	name := r.BundleName
	if name == "" {
		name = DefaultBundleName
	}
	return strings.ReplaceAll(name, "{environment}", environment)
}

// GetTimeout returns the remote timeout in milliseconds
func (r RemoteConfig) GetTimeout() int {
	if r.TimeoutMs <= 0 {
		return defaultTimeoutMs
	}
	return r.TimeoutMs
}

// GetTimeout returns the warehouse timeout in milliseconds
func (w WarehouseConfig) GetTimeout() int {
	if w.TimeoutMs <= 0 {
		return defaultTimeoutMs
	}
	return w.TimeoutMs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
