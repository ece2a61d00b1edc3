// Package secure keeps sensitive values (warehouse passwords, cloud secret
// keys) encrypted in memory while they are held by long-lived structs.
//
// Values are stored in a memguard enclave and only decrypted for the
// duration of a callback. Call memguard.Purge from main on exit.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed buffer is opened
var ErrDestroyed = errors.New("secure buffer has been destroyed")

// SecureBuffer provides memory-safe storage for a secret value.
type SecureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// NewSecureBuffer seals data into an enclave. memguard wipes the source slice.
func NewSecureBuffer(data []byte) *SecureBuffer {
	// memguard refuses zero-length enclaves
	if len(data) == 0 {
		return &SecureBuffer{empty: true}
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}
}

// FromString seals a string value
func FromString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// With decrypts the value, hands it to fn and wipes the plaintext afterwards.
// fn must not retain the slice.
func (s *SecureBuffer) With(fn func(plaintext []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if s.empty {
		return fn(nil)
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Reveal returns a copy of the plaintext as a string. Prefer With where the
// value can be consumed in place.
func (s *SecureBuffer) Reveal() (string, error) {
	var out string
	err := s.With(func(b []byte) error {
		out = string(b)
		return nil
	})
	return out, err
}

// IsEmpty reports whether the buffer holds a zero-length value
func (s *SecureBuffer) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.empty
}

// Destroy drops the enclave. Idempotent.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
