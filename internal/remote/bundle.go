// Package remote fetches secret bundles from cloud secret stores.
//
// A bundle is a single remote secret whose payload is a flat JSON object of
// key/value pairs, for example the secret named
// data-platform/dev/credentials holding every warehouse credential for the
// dev environment.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Fetcher retrieves the raw payload of a named bundle
type Fetcher interface {
	// Name identifies the backend in logs
	Name() string
	// FetchBundle returns the bundle payload, fetched fresh on every call
	FetchBundle(ctx context.Context, name string) (string, error)
}

// BundleNotFoundError is returned when the backend has no bundle by that name
type BundleNotFoundError struct {
	Backend string
	Name    string
}

func (e *BundleNotFoundError) Error() string {
	return fmt.Sprintf("bundle '%s' not found in %s", e.Name, e.Backend)
}

// Bundle is a parsed secret bundle
type Bundle map[string]string

// Get returns the value for key. Empty values count as present.
func (b Bundle) Get(key string) (string, bool) {
	v, ok := b[key]
	return v, ok
}

// ParseBundle decodes a bundle payload. The payload must be a JSON object
// whose values are scalars; numbers keep their literal form, booleans render
// as true/false and nulls are skipped.
func ParseBundle(payload string) (Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bundle is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("bundle has trailing data after the JSON object")
	}

	bundle := make(Bundle, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			bundle[k] = val
		case json.Number:
			bundle[k] = val.String()
		case bool:
			if val {
				bundle[k] = "true"
			} else {
				bundle[k] = "false"
			}
		default:
			return nil, fmt.Errorf("bundle key '%s' holds a nested value", k)
		}
	}
	return bundle, nil
}
