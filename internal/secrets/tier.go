package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/dsload/internal/keystore"
	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/internal/remote"
)

// Outcome is the result of one tier's lookup. A miss carries the reason so
// callers can log it without the chain depending on error flow.
type Outcome struct {
	Found  bool
	Value  string
	Reason error
}

func found(value string) Outcome {
	return Outcome{Found: true, Value: value}
}

func missed(reason error) Outcome {
	return Outcome{Reason: reason}
}

// Tier is one backend in the fallback chain
type Tier interface {
	Name() string
	Lookup(ctx context.Context, key string) Outcome
}

// errKeyAbsent marks a clean miss, as opposed to a backend failure
var errKeyAbsent = errors.New("key not present")

// RemoteTier looks keys up in a bundle fetched fresh on every call
type RemoteTier struct {
	fetcher    remote.Fetcher
	bundleName string
	timeout    time.Duration
	logger     *logging.Logger
}

// NewRemoteTier creates the remote bundle tier
func NewRemoteTier(fetcher remote.Fetcher, bundleName string, timeout time.Duration, logger *logging.Logger) *RemoteTier {
	return &RemoteTier{fetcher: fetcher, bundleName: bundleName, timeout: timeout, logger: logger}
}

// Name returns the tier name
func (t *RemoteTier) Name() string {
	return "remote"
}

// Lookup fetches and parses the bundle. Transport and parse failures are
// logged at warn level and reported as a miss.
func (t *RemoteTier) Lookup(ctx context.Context, key string) Outcome {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	payload, err := t.fetcher.FetchBundle(ctx, t.bundleName)
	if err != nil {
		t.logger.Warn("Error accessing %s bundle %s: %v", t.fetcher.Name(), t.bundleName, err)
		return missed(err)
	}

	bundle, err := remote.ParseBundle(payload)
	if err != nil {
		t.logger.Warn("Error parsing %s bundle %s: %v", t.fetcher.Name(), t.bundleName, err)
		return missed(err)
	}

	value, ok := bundle.Get(key)
	if !ok {
		t.logger.Debug("Key '%s' not found in %s bundle", key, t.fetcher.Name())
		return missed(errKeyAbsent)
	}
	return found(value)
}

// LocalStore is a store of individually named secrets
type LocalStore interface {
	Load(name string) (string, error)
	Save(name, value string) error
}

// KeyringStore keeps named secrets in the OS keyring under one service
type KeyringStore struct {
	service string
	client  keystore.Client
}

// NewKeyringStore creates a keyring-backed named-secret store
func NewKeyringStore(service string, client keystore.Client) *KeyringStore {
	return &KeyringStore{service: service, client: client}
}

// Load reads the secret stored under name
func (s *KeyringStore) Load(name string) (string, error) {
	return s.client.Get(s.service, name)
}

// Save stores value under name, replacing any previous value
func (s *KeyringStore) Save(name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name is required")
	}
	return s.client.Set(s.service, name, value)
}

// LocalTier looks keys up as named secrets in a LocalStore
type LocalTier struct {
	store  LocalStore
	logger *logging.Logger
}

// NewLocalTier creates the local named-secret tier
func NewLocalTier(store LocalStore, logger *logging.Logger) *LocalTier {
	return &LocalTier{store: store, logger: logger}
}

// Name returns the tier name
func (t *LocalTier) Name() string {
	return "local"
}

// Lookup loads the secret named key. Every failure is a silent miss.
func (t *LocalTier) Lookup(ctx context.Context, key string) Outcome {
	value, err := t.store.Load(key)
	if err != nil {
		t.logger.Debug("Error loading local secret '%s': %v", key, err)
		return missed(err)
	}
	return found(value)
}

// LookupFunc reports the value of an environment variable
type LookupFunc func(key string) (string, bool)

// EnvTier looks keys up as environment variables
type EnvTier struct {
	lookup LookupFunc
}

// NewEnvTier creates the environment tier
func NewEnvTier(lookup LookupFunc) *EnvTier {
	return &EnvTier{lookup: lookup}
}

// Name returns the tier name
func (t *EnvTier) Name() string {
	return "env"
}

// Lookup returns the variable named key. Empty values are treated as unset.
func (t *EnvTier) Lookup(ctx context.Context, key string) Outcome {
	if t.lookup == nil {
		return missed(errKeyAbsent)
	}
	value, ok := t.lookup(key)
	if !ok || value == "" {
		return missed(errKeyAbsent)
	}
	return found(value)
}
