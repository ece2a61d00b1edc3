package fakes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSecretsManagerClient is an in-memory Secrets Manager
type FakeSecretsManagerClient struct {
	mu sync.Mutex
	// Secrets maps secret names to their string value
	Secrets map[string]string
	// Errors maps secret names to errors to return
	Errors map[string]error
	// Calls counts GetSecretValue invocations
	Calls int
}

// NewFakeSecretsManagerClient creates an empty fake
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = value
}

// AddError configures an error for a secret name
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++

	name := aws.ToString(params.SecretId)
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}

	value, ok := f.Secrets[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
		}
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-west-2:123456789012:secret:%s", name)),
		Name:          params.SecretId,
		SecretString:  aws.String(value),
		VersionId:     aws.String("v1-abc123"),
		VersionStages: []string{"AWSCURRENT"},
	}, nil
}

// FakeSSMClient is an in-memory Parameter Store
type FakeSSMClient struct {
	// Parameters maps parameter names to values
	Parameters map[string]string
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// LastDecrypt records the WithDecryption flag of the last call
	LastDecrypt bool
}

// NewFakeSSMClient creates an empty fake
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Errors:     make(map[string]error),
	}
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(params.Name)
	f.LastDecrypt = aws.ToBool(params.WithDecryption)

	if err, ok := f.Errors[name]; ok {
		return nil, err
	}

	value, ok := f.Parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", name)),
		}
	}

	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    params.Name,
			Type:    ssmtypes.ParameterTypeSecureString,
			Value:   aws.String(value),
			Version: 1,
		},
	}, nil
}

// FakeS3Client is an in-memory object store keyed by bucket and key
type FakeS3Client struct {
	// Objects maps "bucket/key" to object bodies
	Objects map[string][]byte
	// Errors maps "bucket/key" to errors to return
	Errors map[string]error
}

// NewFakeS3Client creates an empty fake
func NewFakeS3Client() *FakeS3Client {
	return &FakeS3Client{
		Objects: make(map[string][]byte),
		Errors:  make(map[string]error),
	}
}

// PutObject stores an object body
func (f *FakeS3Client) PutObject(bucket, key string, body []byte) {
	f.Objects[bucket+"/"+key] = body
}

// GetObject mocks the GetObject operation
func (f *FakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	id := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)

	if err, ok := f.Errors[id]; ok {
		return nil, err
	}

	body, ok := f.Objects[id]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}
