package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	dserrors "github.com/systmms/dsload/internal/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerFetcher reads bundles from AWS Secrets Manager
type SecretsManagerFetcher struct {
	client SecretsManagerAPI
}

// NewSecretsManagerFetcher wraps a Secrets Manager client
func NewSecretsManagerFetcher(client SecretsManagerAPI) *SecretsManagerFetcher {
	return &SecretsManagerFetcher{client: client}
}

// NewSecretsManagerFetcherFromConfig builds a client from an AWS config.
// A non-empty endpoint overrides the service endpoint (LocalStack).
func NewSecretsManagerFetcherFromConfig(cfg aws.Config, endpoint string) *SecretsManagerFetcher {
	var opts []func(*secretsmanager.Options)
	if endpoint != "" {
		opts = append(opts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return NewSecretsManagerFetcher(secretsmanager.NewFromConfig(cfg, opts...))
}

// Name returns the backend name
func (f *SecretsManagerFetcher) Name() string {
	return "aws.secretsmanager"
}

// FetchBundle reads the current version of the secret
func (f *SecretsManagerFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	out, err := f.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", &BundleNotFoundError{Backend: f.Name(), Name: name}
		}
		return "", dserrors.BackendError(f.Name(), "GetSecretValue", err)
	}

	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	if out.SecretBinary != nil {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("secret '%s' has no value", name)
}

// SSMAPI is the subset of the SSM client used here
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMFetcher reads bundles from SSM Parameter Store. The bundle is a single
// (usually SecureString) parameter holding the JSON object.
type SSMFetcher struct {
	client SSMAPI
}

// NewSSMFetcher wraps an SSM client
func NewSSMFetcher(client SSMAPI) *SSMFetcher {
	return &SSMFetcher{client: client}
}

// NewSSMFetcherFromConfig builds a client from an AWS config
func NewSSMFetcherFromConfig(cfg aws.Config, endpoint string) *SSMFetcher {
	var opts []func(*ssm.Options)
	if endpoint != "" {
		opts = append(opts, func(o *ssm.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return NewSSMFetcher(ssm.NewFromConfig(cfg, opts...))
}

// Name returns the backend name
func (f *SSMFetcher) Name() string {
	return "aws.ssm"
}

// FetchBundle reads and decrypts the parameter. Parameter names must be
// absolute, so a leading slash is added when missing.
func (f *SSMFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	paramName := name
	if len(paramName) > 0 && paramName[0] != '/' {
		paramName = "/" + paramName
	}

	out, err := f.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", &BundleNotFoundError{Backend: f.Name(), Name: paramName}
		}
		return "", dserrors.BackendError(f.Name(), "GetParameter", err)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter '%s' has no value", paramName)
	}
	return *out.Parameter.Value, nil
}
