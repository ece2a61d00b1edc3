package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/keystore"
	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/tests/fakes"
)

type stubFetcher struct {
	payload string
	err     error
}

func (s stubFetcher) Name() string { return "stub" }

func (s stubFetcher) FetchBundle(ctx context.Context, name string) (string, error) {
	return s.payload, s.err
}

type mapStore map[string]string

func (m mapStore) Load(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", keystore.ErrNotFound
	}
	return v, nil
}

func (m mapStore) Save(name, value string) error {
	m[name] = value
	return nil
}

func TestRemoteTierLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fetcher stubFetcher
		want    Outcome
	}{
		{name: "hit", fetcher: stubFetcher{payload: `{"K":"v"}`}, want: Outcome{Found: true, Value: "v"}},
		{name: "empty value is a hit", fetcher: stubFetcher{payload: `{"K":""}`}, want: Outcome{Found: true, Value: ""}},
		{name: "absent", fetcher: stubFetcher{payload: `{}`}, want: Outcome{Reason: errKeyAbsent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tier := NewRemoteTier(tt.fetcher, "b", 0, logging.Discard())
			assert.Equal(t, tt.want, tier.Lookup(context.Background(), "K"))
		})
	}

	boom := errors.New("boom")
	tier := NewRemoteTier(stubFetcher{err: boom}, "b", 0, logging.Discard())
	out := tier.Lookup(context.Background(), "K")
	assert.False(t, out.Found)
	assert.ErrorIs(t, out.Reason, boom)
}

func TestLocalTierLookup(t *testing.T) {
	t.Parallel()

	tier := NewLocalTier(mapStore{"K": "v"}, logging.Discard())
	assert.Equal(t, "local", tier.Name())
	assert.Equal(t, Outcome{Found: true, Value: "v"}, tier.Lookup(context.Background(), "K"))

	out := tier.Lookup(context.Background(), "OTHER")
	assert.False(t, out.Found)
	assert.ErrorIs(t, out.Reason, keystore.ErrNotFound)
}

func TestEnvTierLookup(t *testing.T) {
	t.Parallel()

	tier := NewEnvTier(func(key string) (string, bool) {
		switch key {
		case "SET":
			return "v", true
		case "EMPTY":
			return "", true
		}
		return "", false
	})

	assert.True(t, tier.Lookup(context.Background(), "SET").Found)
	assert.False(t, tier.Lookup(context.Background(), "EMPTY").Found)
	assert.False(t, tier.Lookup(context.Background(), "UNSET").Found)
	assert.False(t, NewEnvTier(nil).Lookup(context.Background(), "SET").Found)
}

func TestKeyringStore(t *testing.T) {
	t.Parallel()

	keys := fakes.NewFakeKeystore()
	store := NewKeyringStore("dsload", keys)

	require.NoError(t, store.Save("WAREHOUSE_USER", "loader"))
	require.NoError(t, store.Save("WAREHOUSE_USER", "loader2"))
	assert.Error(t, store.Save("", "v"))

	got, err := store.Load("WAREHOUSE_USER")
	require.NoError(t, err)
	assert.Equal(t, "loader2", got)

	_, err = keys.Get("dsload", "WAREHOUSE_USER")
	require.NoError(t, err)

	_, err = store.Load("MISSING")
	assert.ErrorIs(t, err, keystore.ErrNotFound)
}
