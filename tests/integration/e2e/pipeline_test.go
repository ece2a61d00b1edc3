// Package e2e runs the extract, transform and load pipeline against
// LocalStack and PostgreSQL started through Docker Compose.
package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/config"
	"github.com/systmms/dsload/internal/connector"
	"github.com/systmms/dsload/internal/pipeline"
	"github.com/systmms/dsload/internal/remote"
	"github.com/systmms/dsload/internal/secrets"
	"github.com/systmms/dsload/internal/transform"
	"github.com/systmms/dsload/internal/warehouse"
	"github.com/systmms/dsload/tests/fakes"
	"github.com/systmms/dsload/tests/testutil"
)

const bucket = "data-platform-dev-data"

type harness struct {
	docker *testutil.DockerTestEnv
	store  *blocks.FileStore
	remote config.RemoteConfig
	logger *testutil.TestLogger
}

func setup(t *testing.T) *harness {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	docker := testutil.StartDockerEnv(t, []string{"localstack", "postgres"})
	ls := docker.LocalStackClient()
	require.NoError(t, ls.CreateBucket(bucket))

	h := &harness{
		docker: docker,
		store:  blocks.NewFileStore(t.TempDir(), fakes.NewFakeKeystore()),
		remote: config.RemoteConfig{
			Type:             "aws.secretsmanager",
			BundleName:       "data-platform/{environment}/credentials",
			CredentialsBlock: "localstack",
			Region:           testutil.LocalStackRegion,
			Endpoint:         docker.LocalStackEndpoint(),
		},
		logger: testutil.NewTestLoggerWithDebug(t, true),
	}

	require.NoError(t, h.store.SaveCredentials(&blocks.Credentials{
		Name:            "localstack",
		Provider:        "aws",
		Region:          testutil.LocalStackRegion,
		AccessKeyID:     testutil.LocalStackAccessKey,
		SecretAccessKey: testutil.LocalStackSecretKey,
	}))
	require.NoError(t, h.store.SaveStorage(&blocks.Storage{
		Name:        pipeline.DefaultStorageBlock,
		BucketName:  bucket,
		Region:      testutil.LocalStackRegion,
		Endpoint:    docker.LocalStackEndpoint(),
		PathStyle:   true,
		Credentials: "localstack",
	}))
	return h
}

func (h *harness) saveJobConfig(t *testing.T, job map[string]any) {
	t.Helper()
	value, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, h.store.SaveConfig(&blocks.Config{Name: pipeline.DefaultConfigBlock, Value: value}))
}

func (h *harness) orchestrator() *pipeline.Orchestrator {
	opener := remote.NewOpener(h.remote, h.store)
	acq := connector.New(connector.Options{
		Blocks: h.store,
		Resolvers: func(env string) connector.SecretGetter {
			return secrets.New(secrets.Options{
				Environment: env,
				BundleName:  h.remote.BundleNameFor(env),
				Opener:      opener,
				Timeout:     10 * time.Second,
				Logger:      h.logger.Logger,
			})
		},
		Driver:  warehouse.DriverPostgres,
		SSLMode: "disable",
		Logger:  h.logger.Logger,
	})

	return pipeline.New(pipeline.Options{
		Blocks:   h.store,
		Readers:  pipeline.S3Readers(h.store, h.logger.Logger),
		Acquirer: acq,
		Sinks:    pipeline.WarehouseSinks(10*time.Second, h.logger.Logger),
		Engine:   transform.NewEngine(transform.Options{Logger: h.logger.Logger}),
		Logger:   h.logger.Logger,
	})
}

func TestPipelineLoadsCSVWithRemoteBundleCredentials(t *testing.T) {
	h := setup(t)
	ls := h.docker.LocalStackClient()

	bundle := map[string]string{
		"WAREHOUSE_ACCOUNT":   h.docker.PostgresAccount(),
		"WAREHOUSE_USER":      testutil.PostgresUser,
		"WAREHOUSE_PASSWORD":  testutil.PostgresPassword,
		"WAREHOUSE_WAREHOUSE": "DEV_WH",
		"WAREHOUSE_DATABASE":  testutil.PostgresDatabase,
		"WAREHOUSE_SCHEMA":    "public",
		"WAREHOUSE_ROLE":      testutil.PostgresUser,
	}
	payload, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, ls.CreateSecret("data-platform/dev/credentials", string(payload)))

	require.NoError(t, ls.PutObject(bucket, "raw/customers.csv",
		[]byte("id,temp_col,status,score\n1,a,active,1.5\n2,b,,\n")))
	h.saveJobConfig(t, map[string]any{
		"table_name": "customers",
		"schema":     "public",
		"transform_rules": map[string]any{
			"drop_columns":   []string{"temp_col"},
			"rename_columns": map[string]string{"score": "customer_score"},
			"fill_na":        map[string]any{"status": "unknown", "customer_score": 0},
		},
	})

	res, err := h.orchestrator().Run(context.Background(), pipeline.Params{
		Key:            "raw/customers.csv",
		WarehouseBlock: "missing-warehouse",
		Environment:    "dev",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, res.State)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, "Successfully loaded data from raw/customers.csv to warehouse table public.customers", res.Summary)

	h.logger.AssertContains(t, "Could not load warehouse block missing-warehouse")
	h.logger.AssertNoSecretLeak(t, testutil.PostgresPassword)

	pg := h.docker.PostgresClient()
	statuses, err := pg.Strings(`SELECT status FROM "public"."customers" ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "active", *statuses[0])
	assert.Equal(t, "unknown", *statuses[1])

	scores, err := pg.Strings(`SELECT customer_score FROM "public"."customers" ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "1.5", *scores[0])
	assert.Equal(t, "0", *scores[1])

	_, err = pg.Strings(`SELECT temp_col FROM "public"."customers"`)
	assert.Error(t, err, "dropped column must not be created")
}

func TestPipelineUsesRegisteredWarehouseBlock(t *testing.T) {
	h := setup(t)
	ls := h.docker.LocalStackClient()

	require.NoError(t, h.store.SaveWarehouse(&blocks.Warehouse{
		Name:     "dev-warehouse",
		Driver:   warehouse.DriverPostgres,
		Account:  h.docker.PostgresAccount(),
		User:     testutil.PostgresUser,
		Password: testutil.PostgresPassword,
		Database: testutil.PostgresDatabase,
		Schema:   "public",
		SSLMode:  "disable",
	}))
	require.NoError(t, h.docker.PostgresClient().Exec(`CREATE SCHEMA IF NOT EXISTS staging`))

	require.NoError(t, ls.PutObject(bucket, "raw/events.json",
		[]byte(`[{"event":"signup","count":3},{"event":"login","count":null}]`)))
	h.saveJobConfig(t, map[string]any{
		"table_name":      "events",
		"schema":          "public",
		"transform_rules": map[string]any{"fill_na": map[string]any{"count": 0}},
	})

	res, err := h.orchestrator().Run(context.Background(), pipeline.Params{
		Key:            "raw/events.json",
		WarehouseBlock: "dev-warehouse",
		Environment:    "dev",
		Schema:         "staging",
	})
	require.NoError(t, err)
	assert.Equal(t, "staging", res.Schema)

	counts, err := h.docker.PostgresClient().Strings(`SELECT "count" FROM "staging"."events" ORDER BY event`)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "0", *counts[0])
	assert.Equal(t, "3", *counts[1])
}

func TestPipelineMissingObject(t *testing.T) {
	h := setup(t)
	h.saveJobConfig(t, map[string]any{"table_name": "nothing", "schema": "public"})

	res, err := h.orchestrator().Run(context.Background(), pipeline.Params{
		Key:         "raw/does-not-exist.csv",
		Environment: "dev",
	})
	require.Error(t, err)
	assert.Equal(t, pipeline.StateFailed, res.State)
	assert.Equal(t, []pipeline.State{pipeline.StateConfiguring, pipeline.StateExtracting, pipeline.StateFailed}, res.Trail)
}
