package fakes

import (
	"sync"

	"github.com/systmms/dsload/internal/keystore"
)

// FakeKeystore is an in-memory keystore.Client
type FakeKeystore struct {
	mu    sync.Mutex
	items map[string]string

	// GetErr, when set, is returned by every Get call
	GetErr error
	// GetCalls counts Get invocations
	GetCalls int
}

// NewFakeKeystore creates an empty fake keyring
func NewFakeKeystore() *FakeKeystore {
	return &FakeKeystore{items: make(map[string]string)}
}

// WithItem seeds an item and returns the fake for chaining
func (f *FakeKeystore) WithItem(service, user, value string) *FakeKeystore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[service+"\x00"+user] = value
	return f
}

// Get returns the stored item or keystore.ErrNotFound
func (f *FakeKeystore) Get(service, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++

	if f.GetErr != nil {
		return "", f.GetErr
	}
	v, ok := f.items[service+"\x00"+user]
	if !ok {
		return "", keystore.ErrNotFound
	}
	return v, nil
}

// Set stores an item
func (f *FakeKeystore) Set(service, user, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[service+"\x00"+user] = value
	return nil
}

// Delete removes an item
func (f *FakeKeystore) Delete(service, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, service+"\x00"+user)
	return nil
}

// Len returns the number of stored items
func (f *FakeKeystore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

var _ keystore.Client = (*FakeKeystore)(nil)
