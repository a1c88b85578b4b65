package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "cache.db"), "site")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = backend.Load(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	e := Entry{Key: "plugins", TTL: time.Hour, ExpiresAt: epoch.Add(time.Hour), Payload: []byte(`{"pages":[1,2]}`)}
	require.NoError(t, backend.Save(t.Context(), e))
	e.Payload = []byte(`{"pages":[3]}`)
	require.NoError(t, backend.Save(t.Context(), e))

	got, err := backend.Load(t.Context(), "plugins")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.TTL)
	assert.True(t, got.ExpiresAt.Equal(e.ExpiresAt))
	assert.JSONEq(t, `{"pages":[3]}`, string(got.Payload))

	entries, err := backend.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, backend.Clear(t.Context()))
	_, err = backend.Load(t.Context(), "plugins")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackend_StoreExpiry(t *testing.T) {
	backend, err := NewSQLiteBackend(":memory:", "site")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	clock := clockwork.NewFakeClockAt(epoch)
	store := NewStore(backend).WithClock(clock)
	calls := 0

	for range 2 {
		_, err := store.WithCache(t.Context(), "k", time.Minute, counter(&calls, map[string]any{"v": 1}))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)

	clock.Advance(time.Minute + time.Nanosecond)
	_, err = store.WithCache(t.Context(), "k", time.Minute, counter(&calls, map[string]any{"v": 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSQLiteBackend_NamespacesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	a, err := NewSQLiteBackend(path, "a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewSQLiteBackend(path, "b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.Save(t.Context(), Entry{Key: "k", TTL: time.Hour, ExpiresAt: epoch, Payload: []byte(`{}`)}))
	_, err = b.Load(t.Context(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_PathForIsStable(t *testing.T) {
	b, err := NewFileBackend("/tmp/cache", "site")
	require.NoError(t, err)
	assert.Equal(t, b.PathFor("plugins"), b.PathFor("plugins"))
	assert.NotEqual(t, b.PathFor("a/b"), b.PathFor("a_b"), "sanitized names are disambiguated by the hash suffix")
	assert.Equal(t, filepath.Join("/tmp/cache", "site"), b.Root())
}
