// Package connector decides which warehouse connector a load uses: a
// pre-registered warehouse block when one is named and loads, otherwise a
// connector built from secrets resolved for the target environment.
package connector

import (
	"context"
	"fmt"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/internal/secure"
	"github.com/systmms/dsload/internal/warehouse"
)

// Key suffixes resolved on the secret path, in resolution order
const (
	KeyAccount   = "ACCOUNT"
	KeyUser      = "USER"
	KeyPassword  = "PASSWORD"
	KeyWarehouse = "WAREHOUSE"
	KeyDatabase  = "DATABASE"
	KeySchema    = "SCHEMA"
	KeyRole      = "ROLE"
)

var requiredKeys = []string{KeyAccount, KeyUser, KeyPassword, KeyWarehouse, KeyDatabase, KeySchema, KeyRole}

// SecretGetter resolves one secret
type SecretGetter interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// ResolverFactory returns the secret resolver for an environment
type ResolverFactory func(environment string) SecretGetter

// CredentialAcquisitionError is returned when neither the named block nor
// the secret path produced a connector
type CredentialAcquisitionError struct {
	Key string
	Err error
}

func (e *CredentialAcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire warehouse credentials: %s: %v", e.Key, e.Err)
}

func (e *CredentialAcquisitionError) Unwrap() error {
	return e.Err
}

// Request names what to acquire. All fields are optional.
type Request struct {
	BlockName   string
	Environment string
	// Schema, when set, overrides the schema from the block or secrets
	Schema string
}

// Options configures an Acquirer
type Options struct {
	Blocks    blocks.Store
	Resolvers ResolverFactory
	// Prefix is prepended to every key suffix as PREFIX_SUFFIX
	Prefix  string
	Driver  string
	SSLMode string
	Logger  *logging.Logger
}

// Acquirer produces warehouse connectors
type Acquirer struct {
	blocks    blocks.Store
	resolvers ResolverFactory
	prefix    string
	driver    string
	sslmode   string
	logger    *logging.Logger
}

// New creates an Acquirer
func New(opts Options) *Acquirer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "WAREHOUSE"
	}
	return &Acquirer{
		blocks:    opts.Blocks,
		resolvers: opts.Resolvers,
		prefix:    prefix,
		driver:    opts.Driver,
		sslmode:   opts.SSLMode,
		logger:    logger,
	}
}

// SecretKey returns the full secret name for a key suffix
func (a *Acquirer) SecretKey(suffix string) string {
	return a.prefix + "_" + suffix
}

// Acquire returns the named block's connector if it loads, otherwise a
// connector built from resolved secrets. Only a secret miss is fatal; the
// returned connector is owned by the caller, who must Close it.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (*warehouse.Connector, error) {
	if req.BlockName != "" {
		c, err := a.fromBlock(req.BlockName)
		if err == nil {
			a.logger.Debug("Using warehouse block %s", req.BlockName)
			return withSchema(c, req.Schema), nil
		}
		a.logger.Warn("Could not load warehouse block %s: %v", req.BlockName, err)
		a.logger.Warn("Falling back to warehouse secrets for environment %s", req.Environment)
	}

	c, err := a.fromSecrets(ctx, req.Environment)
	if err != nil {
		return nil, err
	}
	return withSchema(c, req.Schema), nil
}

func (a *Acquirer) fromBlock(name string) (*warehouse.Connector, error) {
	if a.blocks == nil {
		return nil, fmt.Errorf("no block store configured")
	}
	b, err := a.blocks.LoadWarehouse(name)
	if err != nil {
		return nil, err
	}
	c := warehouse.FromBlock(b)
	if c.Driver == "" {
		c.Driver = a.driver
	}
	if c.SSLMode == "" {
		c.SSLMode = a.sslmode
	}
	return c, nil
}

func (a *Acquirer) fromSecrets(ctx context.Context, environment string) (*warehouse.Connector, error) {
	if a.resolvers == nil {
		return nil, &CredentialAcquisitionError{Key: a.SecretKey(KeyAccount), Err: fmt.Errorf("no secret resolver configured")}
	}
	resolver := a.resolvers(environment)

	values := make(map[string]string, len(requiredKeys))
	for _, suffix := range requiredKeys {
		key := a.SecretKey(suffix)
		v, err := resolver.GetSecret(ctx, key)
		if err != nil {
			return nil, &CredentialAcquisitionError{Key: key, Err: err}
		}
		values[suffix] = v
	}

	a.logger.Debug("Built warehouse connector from %s_* secrets", a.prefix)
	return &warehouse.Connector{
		Driver:    a.driver,
		Account:   values[KeyAccount],
		User:      values[KeyUser],
		Password:  secure.FromString(values[KeyPassword]),
		Warehouse: values[KeyWarehouse],
		Database:  values[KeyDatabase],
		Schema:    values[KeySchema],
		Role:      values[KeyRole],
		SSLMode:   a.sslmode,
		Source:    warehouse.SourceSecrets,
	}, nil
}

func withSchema(c *warehouse.Connector, schema string) *warehouse.Connector {
	if schema != "" {
		c.Schema = schema
	}
	return c
}
