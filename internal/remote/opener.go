package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/cloud"
	"github.com/systmms/dsload/internal/config"
)

// ErrDisabled is returned by Open when remote.type is none
var ErrDisabled = errors.New("remote bundle store disabled")

// Opener constructs the configured Fetcher. Backend credentials come from a
// credentials block in the block store.
type Opener struct {
	cfg    config.RemoteConfig
	blocks blocks.Store
}

// NewOpener creates an Opener for the remote configuration
func NewOpener(cfg config.RemoteConfig, store blocks.Store) *Opener {
	return &Opener{cfg: cfg, blocks: store}
}

// Open loads the credentials block and builds the backend client
func (o *Opener) Open(ctx context.Context) (Fetcher, error) {
	if o.cfg.Type == "none" {
		return nil, ErrDisabled
	}

	blockName := o.cfg.CredentialsBlock
	if blockName == "" {
		blockName = config.DefaultCredentialsBlock
	}
	creds, err := o.blocks.LoadCredentials(blockName)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials block: %w", err)
	}

	switch o.cfg.Type {
	case "", "aws.secretsmanager":
		awsCfg, err := cloud.AWSConfig(ctx, creds, o.cfg.Region)
		if err != nil {
			return nil, err
		}
		return NewSecretsManagerFetcherFromConfig(awsCfg, o.cfg.Endpoint), nil

	case "aws.ssm":
		awsCfg, err := cloud.AWSConfig(ctx, creds, o.cfg.Region)
		if err != nil {
			return nil, err
		}
		return NewSSMFetcherFromConfig(awsCfg, o.cfg.Endpoint), nil

	case "gcp.secretmanager":
		if o.cfg.ProjectID == "" {
			return nil, fmt.Errorf("gcp.secretmanager requires remote.project_id")
		}
		client, err := NewGCPClient(ctx, creds.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewGCPFetcher(client, o.cfg.ProjectID), nil

	case "azure.keyvault":
		client, err := NewAzureClient(o.cfg.VaultURL, AzureCredentials{
			TenantID:     creds.TenantID,
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
		if err != nil {
			return nil, err
		}
		return NewAzureFetcher(client), nil

	default:
		return nil, fmt.Errorf("unknown remote type: %s", o.cfg.Type)
	}
}
