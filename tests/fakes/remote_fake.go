package fakes

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/systmms/dsload/internal/remote"
)

// FakeFetcher serves fixed bundle payloads
type FakeFetcher struct {
	mu       sync.Mutex
	Bundles  map[string]string
	FetchErr error
	Fetches  int
}

// NewFakeFetcher creates a fetcher holding one bundle
func NewFakeFetcher(name, payload string) *FakeFetcher {
	return &FakeFetcher{Bundles: map[string]string{name: payload}}
}

// Name returns the backend name
func (f *FakeFetcher) Name() string {
	return "fake"
}

// FetchBundle returns the stored payload
func (f *FakeFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++

	if f.FetchErr != nil {
		return "", f.FetchErr
	}
	payload, ok := f.Bundles[name]
	if !ok {
		return "", &remote.BundleNotFoundError{Backend: "fake", Name: name}
	}
	return payload, nil
}

// FakeOpener counts open attempts and hands out a fixed fetcher or error
type FakeOpener struct {
	Fetcher remote.Fetcher
	Err     error
	opens   atomic.Int32
}

// Open returns the configured fetcher or error
func (o *FakeOpener) Open(ctx context.Context) (remote.Fetcher, error) {
	o.opens.Add(1)
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Fetcher, nil
}

// Opens returns the number of Open calls
func (o *FakeOpener) Opens() int {
	return int(o.opens.Load())
}

var _ remote.Fetcher = (*FakeFetcher)(nil)
