package cloud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/dsload/internal/blocks"
)

func TestAWSConfigRegionPrecedence(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	tests := []struct {
		name   string
		creds  *blocks.Credentials
		region string
		want   string
	}{
		{name: "default", want: DefaultAWSRegion},
		{name: "block region", creds: &blocks.Credentials{Name: "c", Region: "eu-west-1"}, want: "eu-west-1"},
		{name: "explicit wins", creds: &blocks.Credentials{Name: "c", Region: "eu-west-1"}, region: "ap-south-1", want: "ap-south-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := AWSConfig(context.Background(), tt.creds, tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Region)
		})
	}
}

func TestAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	cfg, err := AWSConfig(context.Background(), &blocks.Credentials{
		Name:            "aws-credentials",
		Provider:        "aws",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		SessionToken:    "token",
	}, "us-east-1")
	require.NoError(t, err)

	got, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIATEST", got.AccessKeyID)
	assert.Equal(t, "secret", got.SecretAccessKey)
	assert.Equal(t, "token", got.SessionToken)
}

func TestAWSConfigRejectsForeignBlock(t *testing.T) {
	t.Parallel()

	_, err := AWSConfig(context.Background(), &blocks.Credentials{Name: "gcp-creds", Provider: "gcp"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is for gcp")
}
