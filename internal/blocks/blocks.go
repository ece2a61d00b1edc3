// Package blocks stores named, pre-registered configuration objects:
// cloud credentials, warehouse connectors, object storage locations and
// pipeline configuration. Blocks are written once by the register commands
// and read by name at run time; saving a block under an existing name
// replaces it.
package blocks

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a block family
type Kind string

const (
	KindCredentials Kind = "credentials"
	KindWarehouse   Kind = "warehouse"
	KindStorage     Kind = "storage"
	KindConfig      Kind = "config"
)

// Kinds lists every block kind
var Kinds = []Kind{KindCredentials, KindWarehouse, KindStorage, KindConfig}

// Credentials holds cloud credentials used to open remote secret stores and
// object storage. Fields tagged json:"-" live in the keyring.
type Credentials struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // aws, gcp or azure

	// AWS
	Region          string `json:"region,omitempty"`
	Profile         string `json:"profile,omitempty"`
	RoleARN         string `json:"role_arn,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`

	// GCP
	CredentialsFile string `json:"credentials_file,omitempty"`

	// Azure
	TenantID     string `json:"tenant_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"-"`
}

func (c *Credentials) sensitive() map[string]*string {
	return map[string]*string{
		"secret_access_key": &c.SecretAccessKey,
		"session_token":     &c.SessionToken,
		"client_secret":     &c.ClientSecret,
	}
}

// Warehouse is a pre-registered warehouse connector
type Warehouse struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Account   string `json:"account"`
	User      string `json:"user"`
	Password  string `json:"-"`
	Warehouse string `json:"warehouse,omitempty"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Role      string `json:"role,omitempty"`
	SSLMode   string `json:"sslmode,omitempty"`
}

func (w *Warehouse) sensitive() map[string]*string {
	return map[string]*string{"password": &w.Password}
}

// Storage locates an object storage bucket
type Storage struct {
	Name       string `json:"name"`
	BucketName string `json:"bucket_name"`
	Region     string `json:"region,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	PathStyle  bool   `json:"path_style,omitempty"`
	// Credentials names a credentials block; empty uses the default AWS chain
	Credentials string `json:"credentials,omitempty"`
}

func (s *Storage) sensitive() map[string]*string { return nil }

// Config is a free-form JSON configuration value
type Config struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (c *Config) sensitive() map[string]*string { return nil }

// block is implemented by every stored type
type block interface {
	sensitive() map[string]*string
}

// NotFoundError is returned when no block of a kind exists under a name
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s block '%s' not found", e.Kind, e.Name)
}

// Store loads and saves blocks by name
type Store interface {
	LoadCredentials(name string) (*Credentials, error)
	SaveCredentials(b *Credentials) error
	LoadWarehouse(name string) (*Warehouse, error)
	SaveWarehouse(b *Warehouse) error
	LoadStorage(name string) (*Storage, error)
	SaveStorage(b *Storage) error
	LoadConfig(name string) (*Config, error)
	SaveConfig(b *Config) error
	List(kind Kind) ([]string, error)
}
