package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// LocalStack accepts any static credentials
const (
	LocalStackRegion    = "us-east-1"
	LocalStackAccessKey = "test"
	LocalStackSecretKey = "test"

	PostgresUser     = "test"
	PostgresPassword = "test-password"
	PostgresDatabase = "testdb"
)

// DockerTestEnv manages Docker Compose lifecycle for integration tests
type DockerTestEnv struct {
	t           *testing.T
	composePath string
	services    []string
	started     bool
	projectName string
	ports       map[string]map[int]int // service -> containerPort -> hostPort

	localstack *LocalStackTestClient
	postgres   *PostgresTestClient
}

// LocalStackTestClient wraps the AWS SDK clients pointed at LocalStack
type LocalStackTestClient struct {
	s3             *s3.Client
	secretsManager *secretsmanager.Client
	ssm            *ssm.Client
}

// PostgresTestClient wraps a PostgreSQL connection
type PostgresTestClient struct {
	db *sql.DB
}

// StartDockerEnv starts Docker Compose services for integration testing.
// The services are stopped and their volumes removed when the test ends.
func StartDockerEnv(t *testing.T, services []string) *DockerTestEnv {
	t.Helper()

	SkipIfDockerUnavailable(t)

	// AWS_ENDPOINT_URL and PG* would override the endpoints the tests wire
	ClearEnv(t, "AWS_ENDPOINT_URL", "AWS_ENDPOINT_URL_S3", "AWS_PROFILE", "PGHOST", "PGPORT")

	composePath := findDockerComposePath(t)
	if composePath == "" {
		t.Fatal("docker-compose.yml not found in tests/integration/")
	}

	env := &DockerTestEnv{
		t:           t,
		composePath: composePath,
		services:    services,
		projectName: fmt.Sprintf("dsload-test-%d", time.Now().UnixNano()),
	}

	env.start()
	t.Cleanup(env.Stop)

	if err := env.WaitForHealthy(90 * time.Second); err != nil {
		t.Fatalf("Docker services failed to become healthy: %v", err)
	}
	if err := env.discoverPorts(); err != nil {
		t.Fatalf("Failed to discover ports: %v", err)
	}
	return env
}

// SkipIfDockerUnavailable skips the test if Docker is not available
func SkipIfDockerUnavailable(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("Docker not available, skipping integration test")
	}
}

// IsDockerAvailable checks that the docker CLI, a running daemon and the
// compose plugin are all present
func IsDockerAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if err := exec.Command("docker", "ps").Run(); err != nil {
		return false
	}
	return exec.Command("docker", "compose", "version").Run() == nil
}

func (e *DockerTestEnv) compose(args ...string) *exec.Cmd {
	full := append([]string{"compose", "-f", e.composePath, "-p", e.projectName}, args...)
	cmd := exec.Command("docker", full...)
	cmd.Dir = filepath.Dir(e.composePath)
	return cmd
}

func (e *DockerTestEnv) start() {
	e.t.Helper()

	cmd := e.compose(append([]string{"up", "-d"}, e.services...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	e.t.Logf("Starting Docker services: %v", e.services)
	if err := cmd.Run(); err != nil {
		e.t.Fatalf("Failed to start Docker services: %v", err)
	}
	e.started = true
}

// Stop closes test clients and removes the compose project
func (e *DockerTestEnv) Stop() {
	if !e.started {
		return
	}
	if e.postgres != nil {
		_ = e.postgres.Close()
	}

	cmd := e.compose("down", "-v")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		e.t.Logf("Warning: Failed to stop Docker services: %v", err)
	}
	e.started = false
}

// WaitForHealthy polls until every requested service reports healthy, or
// running for services without a health check
func (e *DockerTestEnv) WaitForHealthy(timeout time.Duration) error {
	e.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for services to be healthy")
		case <-ticker.C:
			if e.checkHealth() {
				e.t.Logf("All services are healthy")
				return nil
			}
		}
	}
}

func (e *DockerTestEnv) checkHealth() bool {
	for _, service := range e.services {
		// Compose names containers {project}-{service}-{replica}
		container := fmt.Sprintf("%s-%s-1", e.projectName, service)

		out, err := exec.Command("docker", "inspect", "--format", "{{.State.Health.Status}}", container).Output()
		if err != nil {
			out, err = exec.Command("docker", "inspect", "--format", "{{.State.Status}}", container).Output()
			if err != nil || strings.TrimSpace(string(out)) != "running" {
				return false
			}
			continue
		}
		if status := strings.TrimSpace(string(out)); status != "healthy" && status != "" {
			return false
		}
	}
	return true
}

func (e *DockerTestEnv) discoverPorts() error {
	servicePorts := map[string][]int{
		"postgres":   {5432},
		"mysql":      {3306},
		"localstack": {4566},
	}

	e.ports = make(map[string]map[int]int)
	for _, service := range e.services {
		e.ports[service] = make(map[int]int)
		for _, containerPort := range servicePorts[service] {
			out, err := e.compose("port", service, fmt.Sprintf("%d", containerPort)).Output()
			if err != nil {
				return fmt.Errorf("failed to get port for %s:%d: %w", service, containerPort, err)
			}

			// "0.0.0.0:32768" -> 32768
			addr := strings.TrimSpace(string(out))
			idx := strings.LastIndex(addr, ":")
			if idx < 0 {
				return fmt.Errorf("unexpected port output format: %s", addr)
			}
			hostPort := 0
			if _, err := fmt.Sscanf(addr[idx+1:], "%d", &hostPort); err != nil {
				return fmt.Errorf("failed to parse host port from %s: %w", addr, err)
			}

			e.ports[service][containerPort] = hostPort
			e.t.Logf("Discovered port mapping: %s:%d -> localhost:%d", service, containerPort, hostPort)
		}
	}
	return nil
}

// GetPort returns the host port for a service's container port, or the
// container port itself when no mapping was discovered
func (e *DockerTestEnv) GetPort(service string, containerPort int) int {
	if hostPort, ok := e.ports[service][containerPort]; ok {
		return hostPort
	}
	return containerPort
}

// LocalStackEndpoint returns the LocalStack edge endpoint
func (e *DockerTestEnv) LocalStackEndpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", e.GetPort("localstack", 4566))
}

// PostgresAccount returns the host:port pair used as a warehouse account
func (e *DockerTestEnv) PostgresAccount() string {
	return fmt.Sprintf("127.0.0.1:%d", e.GetPort("postgres", 5432))
}

// PostgresConnString returns a lib/pq connection string for the test database
func (e *DockerTestEnv) PostgresConnString() string {
	return fmt.Sprintf("host=127.0.0.1 port=%d user=%s password=%s dbname=%s sslmode=disable",
		e.GetPort("postgres", 5432), PostgresUser, PostgresPassword, PostgresDatabase)
}

// LocalStackClient returns S3 and Secrets Manager clients for LocalStack,
// created once per env
func (e *DockerTestEnv) LocalStackClient() *LocalStackTestClient {
	e.t.Helper()

	if e.localstack != nil {
		return e.localstack
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(LocalStackRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			LocalStackAccessKey, LocalStackSecretKey, "",
		)),
	)
	if err != nil {
		e.t.Fatalf("Failed to load AWS config: %v", err)
	}

	endpoint := e.LocalStackEndpoint()
	e.localstack = &LocalStackTestClient{
		s3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		}),
		secretsManager: secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		}),
		ssm: ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			o.BaseEndpoint = &endpoint
		}),
	}
	return e.localstack
}

// PostgresClient returns a connection to the test database, opened once
// per env
func (e *DockerTestEnv) PostgresClient() *PostgresTestClient {
	e.t.Helper()

	if e.postgres != nil {
		return e.postgres
	}

	db, err := sql.Open("postgres", e.PostgresConnString())
	if err != nil {
		e.t.Fatalf("Failed to open PostgreSQL connection: %v", err)
	}
	e.postgres = &PostgresTestClient{db: db}
	return e.postgres
}

// findDockerComposePath walks up to the module root and returns
// tests/integration/docker-compose.yml, or "" when it does not exist
func findDockerComposePath(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			path := filepath.Join(dir, "tests", "integration", "docker-compose.yml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// CreateBucket creates a bucket
func (c *LocalStackTestClient) CreateBucket(name string) error {
	_, err := c.s3.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PutObject uploads body under key
func (c *LocalStackTestClient) PutObject(bucket, key string, body []byte) error {
	_, err := c.s3.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// CreateSecret stores payload as a Secrets Manager secret string
func (c *LocalStackTestClient) CreateSecret(name, payload string) error {
	_, err := c.secretsManager.CreateSecret(context.Background(), &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

// PutParameter stores value as a SecureString parameter
func (c *LocalStackTestClient) PutParameter(name, value string) error {
	_, err := c.ssm.PutParameter(context.Background(), &ssm.PutParameterInput{
		Name:  aws.String(name),
		Value: aws.String(value),
		Type:  ssmtypes.ParameterTypeSecureString,
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter: %w", err)
	}
	return nil
}

// Exec executes a SQL statement
func (p *PostgresTestClient) Exec(query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.db.ExecContext(ctx, query, args...)
	return err
}

// Strings runs a query returning one nullable text column per row and
// returns the values, with NULL as nil
func (p *PostgresTestClient) Strings(query string, args ...interface{}) ([]*string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			s := v.String
			out = append(out, &s)
		} else {
			out = append(out, nil)
		}
	}
	return out, rows.Err()
}

// Close closes the PostgreSQL connection
func (p *PostgresTestClient) Close() error {
	return p.db.Close()
}
