package testutil

import (
	"os"
	"testing"
)

// SetupTestEnv sets environment variables for the duration of a test.
// The previous values are restored by t.Setenv's cleanup, so tests using it
// cannot call t.Parallel.
func SetupTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

// SetupWarehouseEnv exports the warehouse connection secrets under prefix,
// e.g. WAREHOUSE_ACCOUNT for the key ACCOUNT
func SetupWarehouseEnv(t *testing.T, prefix string, values map[string]string) {
	t.Helper()
	for key, value := range values {
		t.Setenv(prefix+"_"+key, value)
	}
}

// ClearEnv unsets variables for the duration of a test. Values a developer
// exported in their shell would otherwise leak into the environment tier.
func ClearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		// t.Setenv records the original value for restoration
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Failed to unset environment variable %s: %v", key, err)
		}
	}
}
