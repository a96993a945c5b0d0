// Package fuseadapter maps kernel filesystem calls onto Sagitta's revision
// database, blob store, and local overlay. Grounded on the raw
// github.com/hanwen/go-fuse/v2/fuse.RawFileSystem interface — the vendored
// copy in rclone-rclone and the jra3-linear-fuse/scttfrdmn-objectfs
// manifests are the real third-party consumers of this exact library in
// the pack — rather than the higher-level nodefs/fs inode-embedder API,
// which manages inodes itself and would fight the explicit ino↔path bimap
// this package owns.
package fuseadapter

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"

	"log/slog"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/overlay"
	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// trunkName is the reserved top-level entry exposing committed history.
const trunkName = "trunk"

const (
	rootIno  = 1
	trunkIno = 2
)

// RemoteClient is the subset of remoteclient.Client's methods the FUSE
// adapter needs, defined at the consumer per the teacher's TokenSource
// convention in internal/graph/client.go.
type RemoteClient interface {
	GetWorkspaces(ctx context.Context) ([]remoteserver.WorkspaceSummary, error)
	GetWorkspaceIDFromName(ctx context.Context, name string) (string, error)
	GetAttr(ctx context.Context, workspaceID *string, path []string) (revdb.Attr, error)
	ReadDir(ctx context.Context, workspaceID *string, path []string, includeDeleted bool) ([]revdb.DirEntry, error)
	GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error)
	ReadBlob(ctx context.Context, blobID string) ([]byte, error)
}

// FS implements fuse.RawFileSystem for Sagitta. It embeds
// fuse.NewDefaultRawFileSystem() and overrides exactly the methods spec'd,
// leaving everything else to return ENOSYS via the embedded default.
type FS struct {
	fuse.RawFileSystem

	client  RemoteClient
	overlay *overlay.Overlay
	clock   clock.Clock
	logger  *slog.Logger

	uid uint32
	gid uint32

	mu        sync.Mutex
	pathByIno map[uint64][]string
	inoByPath map[string]uint64
	nextIno   uint64

	wsMu    sync.Mutex
	wsCache map[string]string

	fhMu   sync.Mutex
	nextFh uint64
}

// NewFS returns an FS backed by client and ov, with the bimap seeded as
// spec'd: {1 → [], 2 → [trunk]}.
func NewFS(client RemoteClient, ov *overlay.Overlay, clk clock.Clock, logger *slog.Logger) *FS {
	return &FS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		client:        client,
		overlay:       ov,
		clock:         clk,
		logger:        logger,
		uid:           uint32(os.Getuid()),
		gid:           uint32(os.Getgid()),
		pathByIno: map[uint64][]string{
			rootIno:  {},
			trunkIno: {trunkName},
		},
		inoByPath: map[string]uint64{
			pathKey(nil):                 rootIno,
			pathKey([]string{trunkName}): trunkIno,
		},
		nextIno: trunkIno + 1,
		wsCache: map[string]string{},
		nextFh:  1,
	}
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)

	return out
}

// pathForIno returns the path assigned to ino, or false if ino is unknown
// (a stale or never-assigned inode).
func (f *FS) pathForIno(ino uint64) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pathByIno[ino]
	if !ok {
		return nil, false
	}

	return clonePath(p), true
}

// inoForPath returns the inode assigned to path, allocating a fresh one on
// first sight. Inodes are never reused or forgotten.
func (f *FS) inoForPath(path []string) uint64 {
	key := pathKey(path)

	f.mu.Lock()
	defer f.mu.Unlock()

	if ino, ok := f.inoByPath[key]; ok {
		return ino
	}

	ino := f.nextIno
	f.nextIno++

	f.pathByIno[ino] = clonePath(path)
	f.inoByPath[key] = ino

	return ino
}

// moveIno relocates the inode mapping (if any) from oldPath to newPath,
// deleting the old path key, per the "rename moves the mapping" rule.
func (f *FS) moveIno(oldPath, newPath []string) {
	oldKey := pathKey(oldPath)
	newKey := pathKey(newPath)

	f.mu.Lock()
	defer f.mu.Unlock()

	ino, ok := f.inoByPath[oldKey]
	if !ok {
		return
	}

	delete(f.inoByPath, oldKey)
	f.inoByPath[newKey] = ino
	f.pathByIno[ino] = clonePath(newPath)
}

func (f *FS) nextFileHandle() uint64 {
	f.fhMu.Lock()
	defer f.fhMu.Unlock()

	fh := f.nextFh
	f.nextFh++

	return fh
}

// resolveWorkspaceID resolves a workspace name to its id, consulting and
// populating the process-lifetime name→id cache.
func (f *FS) resolveWorkspaceID(ctx context.Context, name string) (string, error) {
	f.wsMu.Lock()
	if id, ok := f.wsCache[name]; ok {
		f.wsMu.Unlock()
		return id, nil
	}
	f.wsMu.Unlock()

	id, err := f.client.GetWorkspaceIDFromName(ctx, name)
	if err != nil {
		return "", err
	}

	f.wsMu.Lock()
	f.wsCache[name] = id
	f.wsMu.Unlock()

	return id, nil
}

// ctxFromCancel derives a context.Context that is canceled when the FUSE
// request's cancel channel closes, so remote calls made mid-handler abort
// along with the kernel request.
func ctxFromCancel(cancel <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		select {
		case <-cancel:
			cancelFunc()
		case <-ctx.Done():
		}
	}()

	return ctx, cancelFunc
}

func statusFromErr(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, revdb.ErrNotFound), errors.Is(err, revdb.ErrWorkspaceNotFound):
		return fuse.Status(syscall.ENOENT)
	case errors.Is(err, revdb.ErrPermissionDenied):
		return fuse.Status(syscall.EPERM)
	case errors.Is(err, revdb.ErrUnsupported):
		return fuse.Status(syscall.EOPNOTSUPP)
	default:
		return fuse.Status(syscall.EIO)
	}
}
