package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/logging"
)

func TestConfigBuilderOutputLoads(t *testing.T) {
	t.Parallel()

	builder := NewTestConfig(t).
		WithEnvironment("qa").
		WithDotEnv("WAREHOUSE_USER=loader\n")
	cfg := builder.Config(logging.Discard())

	require.NoError(t, cfg.Load())
	assert.Equal(t, "qa", cfg.Definition.Environment)
	assert.Equal(t, "none", cfg.Definition.Remote.Type)
	assert.Equal(t, builder.BlocksDir(), cfg.Definition.BlocksDir)

	user, ok := cfg.Settings.LookupEnv("WAREHOUSE_USER")
	require.True(t, ok)
	assert.Equal(t, "loader", user)
}
