package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/config"
	"github.com/systmms/dsload/internal/remote"
	"github.com/systmms/dsload/tests/fakes"
)

func TestParseBundle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    remote.Bundle
		wantErr string
	}{
		{
			name:    "strings",
			payload: `{"WAREHOUSE_USER":"loader","WAREHOUSE_PASSWORD":"pw"}`,
			want:    remote.Bundle{"WAREHOUSE_USER": "loader", "WAREHOUSE_PASSWORD": "pw"},
		},
		{
			name:    "scalars render",
			payload: `{"PORT":5439,"RATIO":0.25,"SSL":true,"DEBUG":false,"EMPTY":"","GONE":null}`,
			want:    remote.Bundle{"PORT": "5439", "RATIO": "0.25", "SSL": "true", "DEBUG": "false", "EMPTY": ""},
		},
		{
			name:    "nested rejected",
			payload: `{"db":{"user":"x"}}`,
			wantErr: "nested",
		},
		{
			name:    "not an object",
			payload: `["a"]`,
			wantErr: "not a JSON object",
		},
		{
			name:    "trailing data",
			payload: `{"a":"b"} {"c":"d"}`,
			wantErr: "trailing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := remote.ParseBundle(tt.payload)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecretsManagerFetcher(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecretString("data-platform/dev/credentials", `{"A":"1"}`)
	client.AddError("data-platform/broken/credentials", errors.New("AccessDeniedException: not authorized"))
	f := remote.NewSecretsManagerFetcher(client)

	assert.Equal(t, "aws.secretsmanager", f.Name())

	got, err := f.FetchBundle(context.Background(), "data-platform/dev/credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"A":"1"}`, got)

	_, err = f.FetchBundle(context.Background(), "data-platform/prod/credentials")
	var notFound *remote.BundleNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "data-platform/prod/credentials", notFound.Name)

	_, err = f.FetchBundle(context.Background(), "data-platform/broken/credentials")
	require.Error(t, err)
	assert.False(t, errors.As(err, &notFound))
	assert.Contains(t, err.Error(), "aws.secretsmanager")
}

func TestSSMFetcher(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	client.Parameters["/data-platform/dev/credentials"] = `{"A":"1"}`
	f := remote.NewSSMFetcher(client)

	got, err := f.FetchBundle(context.Background(), "data-platform/dev/credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"A":"1"}`, got)
	assert.True(t, client.LastDecrypt)

	_, err = f.FetchBundle(context.Background(), "/data-platform/prod/credentials")
	var notFound *remote.BundleNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestGCPFetcher(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeGCPSecretManagerClient()
	client.Versions["projects/acme/secrets/data-platform-dev-credentials/versions/latest"] = []byte(`{"A":"1"}`)
	client.Errors["projects/acme/secrets/data-platform-denied-credentials/versions/latest"] = fakes.GCPPermissionDenied("x")
	f := remote.NewGCPFetcher(client, "acme")

	got, err := f.FetchBundle(context.Background(), "data-platform/dev/credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"A":"1"}`, got)

	_, err = f.FetchBundle(context.Background(), "data-platform/prod/credentials")
	var notFound *remote.BundleNotFoundError
	require.True(t, errors.As(err, &notFound))

	_, err = f.FetchBundle(context.Background(), "data-platform/denied/credentials")
	require.Error(t, err)
	assert.False(t, errors.As(err, &notFound))
}

func TestAzureFetcher(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	client.Secrets["data-platform-dev-credentials"] = `{"A":"1"}`
	client.Errors["data-platform-denied-credentials"] = fakes.AzureForbiddenError()
	f := remote.NewAzureFetcher(client)

	got, err := f.FetchBundle(context.Background(), "data-platform/dev/credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"A":"1"}`, got)

	_, err = f.FetchBundle(context.Background(), "data-platform/prod/credentials")
	var notFound *remote.BundleNotFoundError
	require.True(t, errors.As(err, &notFound))

	_, err = f.FetchBundle(context.Background(), "data-platform/denied/credentials")
	require.Error(t, err)
	assert.False(t, errors.As(err, &notFound))
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "data-platform-dev-credentials", remote.SanitizeName("data-platform/dev/credentials"))
	assert.Equal(t, "a-b-c", remote.SanitizeName("/a_b.c/"))
}

func TestOpener(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		o := remote.NewOpener(config.RemoteConfig{Type: "none"}, blocks.NewFileStore(t.TempDir(), fakes.NewFakeKeystore()))
		_, err := o.Open(context.Background())
		assert.ErrorIs(t, err, remote.ErrDisabled)
	})

	t.Run("missing credentials block", func(t *testing.T) {
		t.Parallel()
		o := remote.NewOpener(config.RemoteConfig{Type: "aws.secretsmanager"}, blocks.NewFileStore(t.TempDir(), fakes.NewFakeKeystore()))
		_, err := o.Open(context.Background())
		var notFound *blocks.NotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, config.DefaultCredentialsBlock, notFound.Name)
	})

	t.Run("gcp requires project", func(t *testing.T) {
		t.Parallel()
		store := blocks.NewFileStore(t.TempDir(), fakes.NewFakeKeystore())
		require.NoError(t, store.SaveCredentials(&blocks.Credentials{Name: "gcp", Provider: "gcp"}))
		o := remote.NewOpener(config.RemoteConfig{Type: "gcp.secretmanager", CredentialsBlock: "gcp"}, store)
		_, err := o.Open(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "project_id")
	})

	t.Run("aws static credentials", func(t *testing.T) {
		t.Parallel()
		store := blocks.NewFileStore(t.TempDir(), fakes.NewFakeKeystore())
		require.NoError(t, store.SaveCredentials(&blocks.Credentials{
			Name:            config.DefaultCredentialsBlock,
			Provider:        "aws",
			AccessKeyID:     "AKIATEST",
			SecretAccessKey: "secret",
			Region:          "us-west-2",
		}))
		o := remote.NewOpener(config.RemoteConfig{Type: "aws.secretsmanager", Endpoint: "http://localhost:4566"}, store)
		f, err := o.Open(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "aws.secretsmanager", f.Name())
	})
}
