package fakes

import (
	"context"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient is an in-memory Secret Manager keyed by full
// version resource name (projects/X/secrets/Y/versions/Z)
type FakeGCPSecretManagerClient struct {
	Versions map[string][]byte
	Errors   map[string]error
}

// NewFakeGCPSecretManagerClient creates an empty fake
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string][]byte),
		Errors:   make(map[string]error),
	}
}

// AccessSecretVersion mocks the AccessSecretVersion operation
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if err, ok := f.Errors[req.Name]; ok {
		return nil, err
	}

	data, ok := f.Versions[req.Name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret version %s not found", req.Name)
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.Name,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}

// GCPPermissionDenied creates a gRPC permission denied error
func GCPPermissionDenied(resource string) error {
	return status.Errorf(codes.PermissionDenied, "Permission denied on resource %s", resource)
}
