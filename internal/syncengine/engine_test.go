package syncengine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/overlay"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// fakeClient is a minimal in-memory stand-in for RemoteClient, keyed on
// path joined with "\x00". Engine.Run uploads concurrently, so every method
// guards its state with mu.
type fakeClient struct {
	mu          gosync.Mutex
	blobs       map[string][]byte
	fileBlobIDs map[string]string
	synced      []revdb.SyncItem
	nextBlobID  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		blobs:       map[string][]byte{},
		fileBlobIDs: map[string]string{},
	}
}

func keyOf(path []string) string {
	key := ""
	for _, p := range path {
		key += "\x00" + p
	}

	return key
}

func (c *fakeClient) GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.fileBlobIDs[keyOf(path)]
	if !ok {
		return "", revdb.ErrNotFound
	}

	return id, nil
}

func (c *fakeClient) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.blobs[blobID]
	if !ok {
		return nil, revdb.ErrNotFound
	}

	return data, nil
}

func (c *fakeClient) WriteBlob(ctx context.Context, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextBlobID++
	id := "blob" + strconv.Itoa(c.nextBlobID)
	c.blobs[id] = data

	return id, nil
}

func (c *fakeClient) SyncFilesToWorkspace(ctx context.Context, workspaceID string, items []revdb.SyncItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.synced = append(c.synced, items...)

	return nil
}

func newTestEngine(t *testing.T) (*Engine, *overlay.Overlay, *fakeClient) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ov := overlay.NewOverlay(t.TempDir(), logger)
	client := newFakeClient()
	engine := NewEngine(client, ov, clock.Fixed{At: time.Unix(1700000000, 0)}, logger)

	return engine, ov, client
}

func TestRunUploadsAllFilesWhenNoIgnoreFile(t *testing.T) {
	engine, ov, client := newTestEngine(t)

	require.NoError(t, ov.CreateCowFile("w1", []string{"a.txt"}, []byte("alpha")))
	require.NoError(t, ov.CreateCowFile("w1", []string{"dir", "b.txt"}, []byte("bravo")))

	paths, err := engine.Run(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"a.txt"}, paths[0])
	assert.Equal(t, []string{"dir", "b.txt"}, paths[1])
	assert.Len(t, client.synced, 2)

	files, err := ov.ListCowFiles("w1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunHonorsOverlayIgnoreFile(t *testing.T) {
	engine, ov, _ := newTestEngine(t)

	require.NoError(t, ov.CreateCowFile("w1", []string{".sagitta.toml"}, []byte(`ignores = ["target", "foo.bin"]`)))
	require.NoError(t, ov.CreateCowFile("w1", []string{"target", "x"}, []byte("ignored")))
	require.NoError(t, ov.CreateCowFile("w1", []string{"foo.bin"}, []byte("ignored")))
	require.NoError(t, ov.CreateCowFile("w1", []string{"keep.txt"}, []byte("kept")))

	paths, err := engine.Run(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{".sagitta.toml"}, paths[0])
	assert.Equal(t, []string{"keep.txt"}, paths[1])
}

func TestRunFallsBackToRemoteIgnoreFile(t *testing.T) {
	engine, ov, client := newTestEngine(t)

	client.fileBlobIDs[keyOf([]string{".sagitta.toml"})] = "cfgblob"
	client.blobs["cfgblob"] = []byte(`ignores = ["skip.txt"]`)

	require.NoError(t, ov.CreateCowFile("w1", []string{"skip.txt"}, []byte("ignored")))
	require.NoError(t, ov.CreateCowFile("w1", []string{"keep.txt"}, []byte("kept")))

	paths, err := engine.Run(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"keep.txt"}, paths[0])
}

func TestRunWithNoFilesArchivesNothing(t *testing.T) {
	engine, _, client := newTestEngine(t)

	paths, err := engine.Run(context.Background(), "empty-ws")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Empty(t, client.synced)
}
