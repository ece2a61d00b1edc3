package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/systmms/dsload/internal/keystore"
)

// keyringService holds sensitive block fields
const keyringService = "dsload-blocks"

// FileStore implements Store using one JSON file per block under
// <baseDir>/<kind>/. Sensitive fields go to the keyring.
type FileStore struct {
	baseDir string
	keys    keystore.Client
	mu      sync.RWMutex
}

// NewFileStore creates a file-backed block store
func NewFileStore(baseDir string, keys keystore.Client) *FileStore {
	return &FileStore{
		baseDir: baseDir,
		keys:    keys,
	}
}

// DefaultDir returns the default block directory
func DefaultDir() string {
	if dir := os.Getenv("DSLOAD_BLOCKS_DIR"); dir != "" {
		return dir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dsload", "blocks")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "dsload", "blocks")
	}

	return filepath.Join(os.TempDir(), "dsload", "blocks")
}

// LoadCredentials loads a credentials block
func (fs *FileStore) LoadCredentials(name string) (*Credentials, error) {
	b := &Credentials{}
	if err := fs.load(KindCredentials, name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveCredentials stores a credentials block
func (fs *FileStore) SaveCredentials(b *Credentials) error {
	return fs.save(KindCredentials, b.Name, b)
}

// LoadWarehouse loads a warehouse connector block
func (fs *FileStore) LoadWarehouse(name string) (*Warehouse, error) {
	b := &Warehouse{}
	if err := fs.load(KindWarehouse, name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveWarehouse stores a warehouse connector block
func (fs *FileStore) SaveWarehouse(b *Warehouse) error {
	return fs.save(KindWarehouse, b.Name, b)
}

// LoadStorage loads a storage block
func (fs *FileStore) LoadStorage(name string) (*Storage, error) {
	b := &Storage{}
	if err := fs.load(KindStorage, name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveStorage stores a storage block
func (fs *FileStore) SaveStorage(b *Storage) error {
	return fs.save(KindStorage, b.Name, b)
}

// LoadConfig loads a configuration block
func (fs *FileStore) LoadConfig(name string) (*Config, error) {
	b := &Config{}
	if err := fs.load(KindConfig, name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveConfig stores a configuration block
func (fs *FileStore) SaveConfig(b *Config) error {
	if !json.Valid(b.Value) {
		return fmt.Errorf("config block '%s' value is not valid JSON", b.Name)
	}
	return fs.save(KindConfig, b.Name, b)
}

// List returns the names of all blocks of a kind, sorted
func (fs *FileStore) List(kind Kind) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir := filepath.Join(fs.baseDir, string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s blocks: %w", kind, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var header struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &header); err != nil || header.Name == "" {
			continue
		}
		names = append(names, header.Name)
	}

	sort.Strings(names)
	return names, nil
}

func (fs *FileStore) save(kind Kind, name string, b block) error {
	if name == "" {
		return fmt.Errorf("%s block name is required", kind)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Join(fs.baseDir, string(kind))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create block directory: %w", err)
	}

	for field, value := range b.sensitive() {
		account := keyAccount(kind, name, field)
		if *value == "" {
			if err := fs.keys.Delete(keyringService, account); err != nil {
				return fmt.Errorf("failed to clear %s for %s block '%s': %w", field, kind, name, err)
			}
			continue
		}
		if err := fs.keys.Set(keyringService, account, *value); err != nil {
			return fmt.Errorf("failed to store %s for %s block '%s': %w", field, kind, name, err)
		}
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s block: %w", kind, err)
	}

	// write-then-rename so a reader never sees a partial block
	path := fs.path(kind, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write block file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write block file: %w", err)
	}

	return nil
}

func (fs *FileStore) load(kind Kind, name string, b block) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.path(kind, name))
	if err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Kind: kind, Name: name}
		}
		return fmt.Errorf("failed to read %s block '%s': %w", kind, name, err)
	}

	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("failed to unmarshal %s block '%s': %w", kind, name, err)
	}

	for field, value := range b.sensitive() {
		secret, err := fs.keys.Get(keyringService, keyAccount(kind, name, field))
		if err != nil {
			if errors.Is(err, keystore.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to read %s for %s block '%s': %w", field, kind, name, err)
		}
		*value = secret
	}

	return nil
}

func (fs *FileStore) path(kind Kind, name string) string {
	return filepath.Join(fs.baseDir, string(kind), sanitizeFilename(name)+".json")
}

func keyAccount(kind Kind, name, field string) string {
	return fmt.Sprintf("%s/%s/%s", kind, name, field)
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}

var _ Store = (*FileStore)(nil)
