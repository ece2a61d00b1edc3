package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	dserrors "github.com/systmms/dsload/internal/errors"
)

// AzureKeyVaultAPI is the subset of the Key Vault secrets client used here
type AzureKeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureFetcher reads bundles from Azure Key Vault
type AzureFetcher struct {
	client AzureKeyVaultAPI
}

// NewAzureFetcher wraps a Key Vault client
func NewAzureFetcher(client AzureKeyVaultAPI) *AzureFetcher {
	return &AzureFetcher{client: client}
}

// AzureCredentials carries the optional service principal for Key Vault
type AzureCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// NewAzureClient creates a Key Vault client. A complete service principal
// uses client secret auth; otherwise the default credential chain applies.
func NewAzureClient(vaultURL string, creds AzureCredentials) (*azsecrets.Client, error) {
	if vaultURL == "" {
		return nil, fmt.Errorf("azure.keyvault requires remote.vault_url")
	}

	var (
		cred azcore.TokenCredential
		err  error
	)
	if creds.TenantID != "" && creds.ClientID != "" && creds.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return client, nil
}

// Name returns the backend name
func (f *AzureFetcher) Name() string {
	return "azure.keyvault"
}

// FetchBundle reads the latest version of the secret. Key Vault names allow
// only alphanumerics and dashes, so the bundle name is sanitized first.
func (f *AzureFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	secretName := SanitizeName(name)

	resp, err := f.client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", &BundleNotFoundError{Backend: f.Name(), Name: secretName}
		}
		return "", dserrors.BackendError(f.Name(), "GetSecret", err)
	}

	if resp.Value == nil {
		return "", fmt.Errorf("secret '%s' has no value", secretName)
	}
	return *resp.Value, nil
}
