package config

import (
	"os"

	"github.com/subosito/gotenv"

	dserrors "github.com/systmms/dsload/internal/errors"
)

// Settings is the immutable set of values read from a dotenv file at
// startup. The process environment is never modified; lookups overlay the
// dotenv values under the real environment instead.
type Settings struct {
	values map[string]string
	lookup func(string) (string, bool)
}

// LoadSettings reads a dotenv file. An empty path yields empty settings,
// and a missing file is tolerated the same way.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Settings{}, nil
	}

	env, err := gotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, dserrors.ConfigError{
			Field:      "dotenv",
			Value:      path,
			Message:    "failed to parse dotenv file",
			Suggestion: "Use KEY=value lines; quote values containing spaces",
			Err:        err,
		}
	}

	return NewSettings(env), nil
}

// NewSettings builds settings from a map. The map is copied.
func NewSettings(values map[string]string) Settings {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Settings{values: copied}
}

// WithLookup returns a copy whose process-environment lookup is replaced,
// for tests that must not touch the real environment.
func (s Settings) WithLookup(lookup func(string) (string, bool)) Settings {
	s.lookup = lookup
	return s
}

// LookupEnv returns the process environment value for key, falling back to
// the dotenv value. Existing environment variables win, as with dotenv
// loaders that do not override.
func (s Settings) LookupEnv(key string) (string, bool) {
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(key); ok {
		return v, true
	}
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of dotenv values
func (s Settings) Len() int {
	return len(s.values)
}
