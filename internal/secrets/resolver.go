// Package secrets resolves secret values through an ordered chain of tiers:
// a remote bundle store, a local named-secret store, then the environment.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/internal/remote"
)

// SecretNotFoundError is returned when no tier holds the key
type SecretNotFoundError struct {
	Key string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found in any source", e.Key)
}

// Opener constructs the remote bundle fetcher. It must obtain its own
// credentials without going through a Resolver.
type Opener interface {
	Open(ctx context.Context) (remote.Fetcher, error)
}

type state int

const (
	stateUninitialized state = iota
	stateReady
)

// Options configures a Resolver
type Options struct {
	Environment string
	// BundleName is the already expanded remote bundle name
	BundleName string
	// Opener may be nil, in which case the remote tier is never used
	Opener Opener
	Local  LocalStore
	Lookup LookupFunc
	// Timeout bounds each remote fetch
	Timeout time.Duration
	Logger  *logging.Logger
}

// Resolver looks secrets up through the tier chain. The remote handle is
// created at most once per Resolver, on Initialize or the first GetSecret,
// and never changes afterwards. Secret values are never cached.
type Resolver struct {
	environment string
	bundleName  string
	opener      Opener
	local       LocalStore
	lookup      LookupFunc
	timeout     time.Duration
	logger      *logging.Logger

	mu    sync.Mutex
	state state
	tiers []Tier
}

// New creates an uninitialized Resolver
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		environment: opts.Environment,
		bundleName:  opts.BundleName,
		opener:      opts.Opener,
		local:       opts.Local,
		lookup:      opts.Lookup,
		timeout:     opts.Timeout,
		logger:      logger,
	}
}

// Environment returns the environment this resolver is scoped to
func (r *Resolver) Environment() string {
	return r.environment
}

// Initialize opens the remote bundle store. It is idempotent and never
// fails: when the store cannot be opened the remote tier is left out.
func (r *Resolver) Initialize(ctx context.Context) {
	r.chain(ctx)
}

// Initialized reports whether Initialize has completed
func (r *Resolver) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateReady
}

// RemoteAvailable reports whether the remote tier is part of the chain
func (r *Resolver) RemoteAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tiers) > 0 && r.tiers[0].Name() == "remote"
}

// GetSecret returns the value of key from the first tier that has it
func (r *Resolver) GetSecret(ctx context.Context, key string) (string, error) {
	for _, tier := range r.chain(ctx) {
		outcome := tier.Lookup(ctx, key)
		if outcome.Found {
			r.logger.Debug("Resolved '%s' from %s tier", key, tier.Name())
			return outcome.Value, nil
		}
	}
	return "", &SecretNotFoundError{Key: key}
}

// chain returns the tier list, building it on first use. Holding the lock
// across Open keeps concurrent first callers from opening twice.
func (r *Resolver) chain(ctx context.Context) []Tier {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateReady {
		return r.tiers
	}

	var tiers []Tier
	if fetcher := r.openRemote(ctx); fetcher != nil {
		tiers = append(tiers, NewRemoteTier(fetcher, r.bundleName, r.timeout, r.logger))
	}
	if r.local != nil {
		tiers = append(tiers, NewLocalTier(r.local, r.logger))
	}
	tiers = append(tiers, NewEnvTier(r.lookup))

	r.tiers = tiers
	r.state = stateReady
	return r.tiers
}

func (r *Resolver) openRemote(ctx context.Context) remote.Fetcher {
	if r.opener == nil {
		return nil
	}

	fetcher, err := r.opener.Open(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrDisabled) {
			r.logger.Debug("Remote bundle store disabled")
			return nil
		}
		r.logger.Warn("Failed to initialize remote bundle store: %v", err)
		r.logger.Warn("Will fall back to local secrets or environment variables")
		return nil
	}
	if fetcher == nil {
		return nil
	}

	r.logger.Info("Initialized %s bundle store for environment %s", fetcher.Name(), r.environment)
	return fetcher
}
