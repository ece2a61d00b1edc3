// Package keystore abstracts the OS keyring (macOS Keychain, Linux Secret
// Service, Windows Credential Manager) behind a small client interface so the
// secret resolver and block store can be tested without a real keyring.
package keystore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no item exists for the service/user pair
var ErrNotFound = errors.New("secret not found in keyring")

// Client reads and writes keyring items
type Client interface {
	Get(service, user string) (string, error)
	Set(service, user, value string) error
	Delete(service, user string) error
}

// OSKeyring is the Client backed by the platform keyring
type OSKeyring struct{}

// New returns the platform keyring client
func New() *OSKeyring {
	return &OSKeyring{}
}

// Get retrieves an item, mapping the platform's not-found error to ErrNotFound
func (OSKeyring) Get(service, user string) (string, error) {
	value, err := keyring.Get(service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores or replaces an item
func (OSKeyring) Set(service, user, value string) error {
	return keyring.Set(service, user, value)
}

// Delete removes an item. Deleting a missing item is not an error.
func (OSKeyring) Delete(service, user string) error {
	err := keyring.Delete(service, user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

var _ Client = OSKeyring{}
