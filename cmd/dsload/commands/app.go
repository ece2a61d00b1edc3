package commands

import (
	"time"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/config"
	"github.com/systmms/dsload/internal/connector"
	"github.com/systmms/dsload/internal/keystore"
	"github.com/systmms/dsload/internal/remote"
	"github.com/systmms/dsload/internal/secrets"
)

// app is the wiring shared by commands once the configuration is loaded
type app struct {
	cfg    *config.Config
	keys   keystore.Client
	blocks *blocks.FileStore
	opener *remote.Opener
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	dir := cfg.Definition.BlocksDir
	if dir == "" {
		dir = blocks.DefaultDir()
	}

	keys := keystore.New()
	store := blocks.NewFileStore(dir, keys)
	return &app{
		cfg:    cfg,
		keys:   keys,
		blocks: store,
		opener: remote.NewOpener(cfg.Definition.Remote, store),
	}, nil
}

func (a *app) environment() string {
	return a.cfg.EffectiveEnvironment(a.cfg.Environment)
}

func (a *app) localStore() *secrets.KeyringStore {
	return secrets.NewKeyringStore(a.cfg.Definition.Local.Service, a.keys)
}

// resolver builds a fresh resolver for one environment
func (a *app) resolver(environment string) *secrets.Resolver {
	remoteCfg := a.cfg.Definition.Remote
	return secrets.New(secrets.Options{
		Environment: environment,
		BundleName:  remoteCfg.BundleNameFor(environment),
		Opener:      a.opener,
		Local:       a.localStore(),
		Lookup:      a.cfg.Settings.LookupEnv,
		Timeout:     time.Duration(remoteCfg.GetTimeout()) * time.Millisecond,
		Logger:      a.cfg.Logger,
	})
}

func (a *app) acquirer() *connector.Acquirer {
	wh := a.cfg.Definition.Warehouse
	return connector.New(connector.Options{
		Blocks: a.blocks,
		Resolvers: func(environment string) connector.SecretGetter {
			return a.resolver(environment)
		},
		Prefix:  wh.SecretPrefix,
		Driver:  wh.Driver,
		SSLMode: wh.SSLMode,
		Logger:  a.cfg.Logger,
	})
}
