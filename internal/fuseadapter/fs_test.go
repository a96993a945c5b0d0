package fuseadapter

import (
	"context"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/overlay"
	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// fakeRemoteClient is a hand-rolled stub of RemoteClient, keyed by
// "workspace\x00a\x00b\x00c" (trunk uses the empty workspace key).
type fakeRemoteClient struct {
	workspaces map[string]string // name -> id
	attrs      map[string]revdb.Attr
	dirs       map[string][]revdb.DirEntry
	blobIDs    map[string]string
	blobs      map[string][]byte
}

func newFakeRemoteClient() *fakeRemoteClient {
	return &fakeRemoteClient{
		workspaces: map[string]string{},
		attrs:      map[string]revdb.Attr{},
		dirs:       map[string][]revdb.DirEntry{},
		blobIDs:    map[string]string{},
		blobs:      map[string][]byte{},
	}
}

func scopedKey(workspaceID *string, path []string) string {
	prefix := ""
	if workspaceID != nil {
		prefix = *workspaceID
	}

	key := prefix

	for _, p := range path {
		key += "\x00" + p
	}

	return key
}

func (c *fakeRemoteClient) GetWorkspaces(ctx context.Context) ([]remoteserver.WorkspaceSummary, error) {
	out := make([]remoteserver.WorkspaceSummary, 0, len(c.workspaces))
	for name, id := range c.workspaces {
		out = append(out, remoteserver.WorkspaceSummary{ID: id, Name: name})
	}

	return out, nil
}

func (c *fakeRemoteClient) GetWorkspaceIDFromName(ctx context.Context, name string) (string, error) {
	id, ok := c.workspaces[name]
	if !ok {
		return "", revdb.ErrWorkspaceNotFound
	}

	return id, nil
}

func (c *fakeRemoteClient) GetAttr(ctx context.Context, workspaceID *string, path []string) (revdb.Attr, error) {
	attr, ok := c.attrs[scopedKey(workspaceID, path)]
	if !ok {
		return revdb.Attr{}, revdb.ErrNotFound
	}

	return attr, nil
}

func (c *fakeRemoteClient) ReadDir(ctx context.Context, workspaceID *string, path []string, includeDeleted bool) ([]revdb.DirEntry, error) {
	entries, ok := c.dirs[scopedKey(workspaceID, path)]
	if !ok {
		return nil, revdb.ErrNotFound
	}

	return entries, nil
}

func (c *fakeRemoteClient) GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error) {
	id, ok := c.blobIDs[scopedKey(workspaceID, path)]
	if !ok {
		return "", revdb.ErrNotFound
	}

	return id, nil
}

func (c *fakeRemoteClient) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	data, ok := c.blobs[blobID]
	if !ok {
		return nil, revdb.ErrNotFound
	}

	return data, nil
}

func newTestFS(t *testing.T, client *fakeRemoteClient) (*FS, *overlay.Overlay) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ov := overlay.NewOverlay(t.TempDir(), logger)
	fsys := NewFS(client, ov, clock.Fixed{At: time.Unix(1700000000, 0)}, logger)

	return fsys, ov
}

func lookupChild(t *testing.T, fsys *FS, parentIno uint64, name string) *fuse.EntryOut {
	t.Helper()

	out := &fuse.EntryOut{}
	cancel := make(chan struct{})
	status := fsys.Lookup(cancel, &fuse.InHeader{NodeId: parentIno}, name, out)
	require.Equal(t, fuse.OK, status)

	return out
}

func TestLookupRootListsTrunkAndWorkspaces(t *testing.T) {
	client := newFakeRemoteClient()
	client.workspaces["alice"] = "ws1"

	fsys, _ := newTestFS(t, client)

	trunkOut := lookupChild(t, fsys, rootIno, "trunk")
	assert.Equal(t, uint64(trunkIno), trunkOut.NodeId)
	assert.True(t, trunkOut.Attr.Mode&syscall.S_IFDIR != 0)

	wsOut := lookupChild(t, fsys, rootIno, "alice")
	assert.NotZero(t, wsOut.NodeId)

	cancel := make(chan struct{})
	status := fsys.Lookup(cancel, &fuse.InHeader{NodeId: rootIno}, "missing", &fuse.EntryOut{})
	assert.Equal(t, fuse.Status(syscall.ENOENT), status)
}

func TestGetAttrStaleInodeReturnsENOENT(t *testing.T) {
	client := newFakeRemoteClient()
	fsys, _ := newTestFS(t, client)

	cancel := make(chan struct{})
	status := fsys.GetAttr(cancel, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: 999}}, &fuse.AttrOut{})
	assert.Equal(t, fuse.Status(syscall.ENOENT), status)
}

func TestCreateWriteAndReadRoundTripThroughOverlay(t *testing.T) {
	client := newFakeRemoteClient()
	client.workspaces["alice"] = "ws1"

	fsys, _ := newTestFS(t, client)

	wsOut := lookupChild(t, fsys, rootIno, "alice")

	createOut := &fuse.CreateOut{}
	cancel := make(chan struct{})
	status := fsys.Create(cancel, &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: wsOut.NodeId}}, "a.txt", createOut)
	require.Equal(t, fuse.OK, status)

	written, status := fsys.Write(cancel, &fuse.WriteIn{InHeader: fuse.InHeader{NodeId: createOut.NodeId}}, []byte("hello"))
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint32(5), written)

	buf := make([]byte, 16)
	result, status := fsys.Read(cancel, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: createOut.NodeId}, Size: 16}, buf)
	require.Equal(t, fuse.OK, status)

	data, rs := result.Bytes(buf)
	require.Equal(t, fuse.OK, rs)
	assert.Equal(t, []byte("hello"), data)
}

func TestCreateUnderTrunkReturnsEPERM(t *testing.T) {
	client := newFakeRemoteClient()
	fsys, _ := newTestFS(t, client)

	cancel := make(chan struct{})
	status := fsys.Create(cancel, &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: trunkIno}}, "a.txt", &fuse.CreateOut{})
	assert.Equal(t, fuse.Status(syscall.EPERM), status)
}

func TestMkdirRmdirRoundTrip(t *testing.T) {
	client := newFakeRemoteClient()
	client.workspaces["alice"] = "ws1"

	fsys, _ := newTestFS(t, client)
	wsOut := lookupChild(t, fsys, rootIno, "alice")

	cancel := make(chan struct{})
	mkdirOut := &fuse.EntryOut{}
	status := fsys.Mkdir(cancel, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: wsOut.NodeId}}, "sub", mkdirOut)
	require.Equal(t, fuse.OK, status)
	assert.True(t, mkdirOut.Attr.Mode&syscall.S_IFDIR != 0)

	status = fsys.Rmdir(cancel, &fuse.InHeader{NodeId: wsOut.NodeId}, "sub")
	assert.Equal(t, fuse.OK, status)

	status = fsys.Rmdir(cancel, &fuse.InHeader{NodeId: wsOut.NodeId}, "sub")
	assert.Equal(t, fuse.Status(syscall.ENOENT), status)
}

func TestReadDirUnionsOverlayAndRemote(t *testing.T) {
	client := newFakeRemoteClient()
	client.workspaces["alice"] = "ws1"
	client.dirs[scopedKey(strPtr("ws1"), nil)] = []revdb.DirEntry{
		{Name: "synced.txt", FileType: revdb.FileTypeFile, Size: 3, ModifiedAt: time.Unix(1, 0)},
	}

	fsys, ov := newTestFS(t, client)
	require.NoError(t, ov.CreateCowFile("ws1", []string{"staged.txt"}, []byte("hi")))

	wsOut := lookupChild(t, fsys, rootIno, "alice")

	cancel := make(chan struct{})
	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	status := fsys.ReadDir(cancel, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: wsOut.NodeId}}, list)
	require.Equal(t, fuse.OK, status)
}

func TestAccessSucceedsWhenAttrResolves(t *testing.T) {
	client := newFakeRemoteClient()
	fsys, _ := newTestFS(t, client)

	cancel := make(chan struct{})
	status := fsys.Access(cancel, &fuse.AccessIn{InHeader: fuse.InHeader{NodeId: trunkIno}})
	assert.Equal(t, fuse.OK, status)
}

func TestGetXAttrUnsupported(t *testing.T) {
	client := newFakeRemoteClient()
	fsys, _ := newTestFS(t, client)

	cancel := make(chan struct{})
	_, status := fsys.GetXAttr(cancel, &fuse.InHeader{NodeId: trunkIno}, "user.test", nil)
	assert.Equal(t, fuse.Status(syscall.EOPNOTSUPP), status)
}

func strPtr(s string) *string { return &s }
