// Package testutil provides test utilities and helpers for dsload tests.
//
// This package contains shared test infrastructure including the dsload.yaml
// builder, logger capture, environment helpers, and Docker environment
// management for integration tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/systmms/dsload/internal/config"
	"github.com/systmms/dsload/internal/logging"
)

// TestConfigBuilder builds a dsload.yaml in a temp directory.
//
// The builder starts with the remote tier disabled, a test keyring service
// and a blocks directory inside the temp directory, so nothing touches the
// developer's real configuration.
//
// Example usage:
//
//	path := testutil.NewTestConfig(t).
//	    WithEnvironment("dev").
//	    WithDotEnv("WAREHOUSE_USER=loader\n").
//	    Write()
type TestConfigBuilder struct {
	t       *testing.T
	config  *config.Definition
	tempDir string
	dotenv  *string
}

// NewTestConfig creates a TestConfigBuilder
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	tempDir := t.TempDir()
	return &TestConfigBuilder{
		t: t,
		config: &config.Definition{
			Version:   0,
			BlocksDir: filepath.Join(tempDir, "blocks"),
			Remote:    config.RemoteConfig{Type: "none"},
			Local:     config.LocalConfig{Service: "dsload-test"},
		},
		tempDir: tempDir,
	}
}

// WithEnvironment sets the default environment
func (b *TestConfigBuilder) WithEnvironment(env string) *TestConfigBuilder {
	b.config.Environment = env
	return b
}

// WithDotEnv writes content to a .env file next to dsload.yaml and points
// the configuration at it
func (b *TestConfigBuilder) WithDotEnv(content string) *TestConfigBuilder {
	b.dotenv = &content
	return b
}

// WithRemote replaces the remote tier configuration
func (b *TestConfigBuilder) WithRemote(remote config.RemoteConfig) *TestConfigBuilder {
	b.config.Remote = remote
	return b
}

// WithWarehouse replaces the warehouse configuration
func (b *TestConfigBuilder) WithWarehouse(wh config.WarehouseConfig) *TestConfigBuilder {
	b.config.Warehouse = wh
	return b
}

// WithKeyringService sets the local tier keyring service
func (b *TestConfigBuilder) WithKeyringService(service string) *TestConfigBuilder {
	b.config.Local.Service = service
	return b
}

// Dir returns the temp directory holding dsload.yaml
func (b *TestConfigBuilder) Dir() string {
	return b.tempDir
}

// BlocksDir returns the configured blocks directory
func (b *TestConfigBuilder) BlocksDir() string {
	return b.config.BlocksDir
}

// Build returns the definition without writing it
func (b *TestConfigBuilder) Build() *config.Definition {
	return b.config
}

// Write writes dsload.yaml (and the dotenv file, if any) and returns the
// dsload.yaml path
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	if b.dotenv != nil {
		path := filepath.Join(b.tempDir, ".env")
		if err := os.WriteFile(path, []byte(*b.dotenv), 0600); err != nil {
			b.t.Fatalf("Failed to write dotenv file: %v", err)
		}
		b.config.DotEnv = path
	}

	data, err := yaml.Marshal(b.config)
	if err != nil {
		b.t.Fatalf("Failed to marshal config: %v", err)
	}

	path := filepath.Join(b.tempDir, "dsload.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		b.t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// Config writes the files and returns an unloaded runtime Config pointing at
// them, the way the root command builds one from its flags
func (b *TestConfigBuilder) Config(logger *logging.Logger) *config.Config {
	b.t.Helper()
	return &config.Config{
		Path:     b.Write(),
		Explicit: true,
		Logger:   logger,
	}
}
