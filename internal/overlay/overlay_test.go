package overlay

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	return NewOverlay(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateAndReadCowFile(t *testing.T) {
	o := newTestOverlay(t)

	require.NoError(t, o.CreateCowFile("w1", []string{"a.txt"}, []byte("hello world")))

	got, err := o.ReadCowFile("w1", []string{"a.txt"}, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	got, err = o.ReadCowFile("w1", []string{"a.txt"}, 6, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}

func TestDeleteThenRecreateClearsTombstone(t *testing.T) {
	o := newTestOverlay(t)

	require.NoError(t, o.CreateCowFile("w1", []string{"a.txt"}, []byte("x")))
	require.NoError(t, o.DeleteCowFile("w1", []string{"a.txt"}))

	entries, err := o.ReadCowDir("w1", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, o.CreateCowFile("w1", []string{"a.txt"}, []byte("y")))

	entries, err = o.ReadCowDir("w1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
}

func TestListCowFilesExcludesTombstones(t *testing.T) {
	o := newTestOverlay(t)

	require.NoError(t, o.CreateCowFile("w1", []string{"keep.txt"}, []byte("k")))
	require.NoError(t, o.CreateCowFile("w1", []string{"gone.txt"}, []byte("g")))
	require.NoError(t, o.DeleteCowFile("w1", []string{"gone.txt"}))

	files, err := o.ListCowFiles("w1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, []string{"keep.txt"}, files[0])
}

func TestArchiveCowDirHidesArchivedFiles(t *testing.T) {
	o := newTestOverlay(t)

	require.NoError(t, o.CreateCowFile("w1", []string{"a.txt"}, []byte("a")))
	require.NoError(t, o.CreateCowFile("w1", []string{"b.txt"}, []byte("b")))

	files, err := o.ListCowFiles("w1")
	require.NoError(t, err)
	require.Len(t, files, 2)

	require.NoError(t, o.ArchiveCowDir("w1", files, time.Unix(1700000000, 0)))

	remaining, err := o.ListCowFiles("w1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestReadCowFileTruncatesToAvailableBytes(t *testing.T) {
	o := newTestOverlay(t)

	require.NoError(t, o.CreateCowFile("w1", []string{"a.txt"}, []byte("abc")))

	got, err := o.ReadCowFile("w1", []string{"a.txt"}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
