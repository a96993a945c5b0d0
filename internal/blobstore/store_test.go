package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return store
}

func idFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	for _, data := range [][]byte{[]byte("hello"), []byte(""), make([]byte, 10000)} {
		id := idFor(data)

		require.NoError(t, store.Write(id, data))

		got, err := store.Read(id)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestExists(t *testing.T) {
	store := newTestStore(t)

	data := []byte("content")
	id := idFor(data)

	exists, err := store.Exists(id)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write(id, data))

	exists, err = store.Exists(id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestShardedPath(t *testing.T) {
	store := newTestStore(t)

	id := "abcdef0123456789"
	path, err := store.pathFor(id)
	require.NoError(t, err)
	assert.Contains(t, path, "ab")
	assert.Contains(t, path, "cd")
}
