package remote

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dserrors "github.com/systmms/dsload/internal/errors"
)

// GCPSecretManagerAPI is the subset of the Secret Manager client used here
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPFetcher reads bundles from Google Cloud Secret Manager
type GCPFetcher struct {
	client    GCPSecretManagerAPI
	projectID string
}

// NewGCPFetcher wraps a Secret Manager client for a project
func NewGCPFetcher(client GCPSecretManagerAPI, projectID string) *GCPFetcher {
	return &GCPFetcher{client: client, projectID: projectID}
}

// NewGCPClient creates a Secret Manager client. An empty credentials file
// uses application default credentials.
func NewGCPClient(ctx context.Context, credentialsFile string) (*secretmanager.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}
	return client, nil
}

// Name returns the backend name
func (f *GCPFetcher) Name() string {
	return "gcp.secretmanager"
}

// FetchBundle accesses the latest version of the secret
func (f *GCPFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	resource := f.resourceName(name)

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", &BundleNotFoundError{Backend: f.Name(), Name: resource}
		}
		return "", dserrors.BackendError(f.Name(), "AccessSecretVersion", err)
	}

	if resp.GetPayload() == nil || resp.GetPayload().GetData() == nil {
		return "", fmt.Errorf("secret '%s' has no data", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

// resourceName maps a bundle name onto a Secret Manager resource. Secret IDs
// cannot contain slashes, so data-platform/dev/credentials becomes
// data-platform-dev-credentials.
func (f *GCPFetcher) resourceName(name string) string {
	if strings.HasPrefix(name, "projects/") {
		return name
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", f.projectID, SanitizeName(name))
}

// SanitizeName replaces characters cloud secret IDs reject
func SanitizeName(name string) string {
	return strings.NewReplacer("/", "-", "_", "-", ".", "-").Replace(strings.Trim(name, "/"))
}
