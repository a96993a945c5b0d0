package fuseadapter

import (
	"context"
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// fattrSize mirrors the kernel's FATTR_SIZE bit (include/uapi/linux/fuse.h)
// rather than depending on the library exporting a matching constant name.
const fattrSize = 1 << 3

// splitFirst returns a path's first component (trunkName or a workspace
// name) and the remaining components that address the file within it.
func splitFirst(path []string) (first string, rest []string) {
	if len(path) == 0 {
		return "", nil
	}

	return path[0], path[1:]
}

func (f *FS) lookupEntry(ctx context.Context, parentPath []string, name string) (childPath []string, ra resolvedAttr, err error) {
	childPath = append(clonePath(parentPath), name)

	ra, err = f.resolveAttr(ctx, childPath)

	return childPath, ra, err
}

// Lookup computes parent ino's path, appends name, and resolves attributes
// via get_file_attr.
func (f *FS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	parentPath, ok := f.pathForIno(header.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	childPath, ra, err := f.lookupEntry(ctx, parentPath, name)
	if err != nil {
		return statusFromErr(err)
	}

	ino := f.inoForPath(childPath)
	out.NodeId = ino
	out.Generation = 1
	f.fillAttr(ino, ra, &out.Attr)

	return fuse.OK
}

// GetAttr resolves ino's current path via the bimap. A stale (unknown)
// inode returns ENOENT rather than panicking.
func (f *FS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	ra, err := f.resolveAttr(ctx, path)
	if err != nil {
		return statusFromErr(err)
	}

	f.fillAttr(input.NodeId, ra, &out.Attr)

	return fuse.OK
}

// SetAttr handles truncate-to-zero (the only file-data mutation outside
// Write per spec §4.5) and otherwise just echoes current attributes.
func (f *FS) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	first, rel := splitFirst(path)
	if first == trunkName {
		return fuse.Status(syscall.EPERM)
	}

	if input.Valid&fattrSize != 0 && input.Size == 0 {
		wsID, err := f.resolveWorkspaceID(ctx, first)
		if err != nil {
			return statusFromErr(err)
		}

		if err := f.overlay.TruncateCowFile(wsID, rel, 0); err != nil {
			return statusFromErr(err)
		}
	}

	ra, err := f.resolveAttr(ctx, path)
	if err != nil {
		return statusFromErr(err)
	}

	f.fillAttr(input.NodeId, ra, &out.Attr)

	return fuse.OK
}

// Mkdir creates a directory in the overlay. Rejected with EPERM under trunk.
func (f *FS) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	parentPath, ok := f.pathForIno(input.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	first, parentRel := splitFirst(parentPath)
	if first == trunkName {
		return fuse.Status(syscall.EPERM)
	}

	wsID, err := f.resolveWorkspaceID(ctx, first)
	if err != nil {
		return statusFromErr(err)
	}

	childRel := append(clonePath(parentRel), name)
	if err := f.overlay.CreateCowDir(wsID, childRel); err != nil {
		return statusFromErr(err)
	}

	childPath := append(clonePath(parentPath), name)

	ra, err := f.resolveAttr(ctx, childPath)
	if err != nil {
		return statusFromErr(err)
	}

	ino := f.inoForPath(childPath)
	out.NodeId = ino
	out.Generation = 1
	f.fillAttr(ino, ra, &out.Attr)

	return fuse.OK
}

// Create creates an empty file in the overlay. Rejected with EPERM under
// trunk.
func (f *FS) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	parentPath, ok := f.pathForIno(input.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	first, parentRel := splitFirst(parentPath)
	if first == trunkName {
		return fuse.Status(syscall.EPERM)
	}

	wsID, err := f.resolveWorkspaceID(ctx, first)
	if err != nil {
		return statusFromErr(err)
	}

	childRel := append(clonePath(parentRel), name)
	if err := f.overlay.CreateCowFile(wsID, childRel, nil); err != nil {
		return statusFromErr(err)
	}

	childPath := append(clonePath(parentPath), name)

	ra, err := f.resolveAttr(ctx, childPath)
	if err != nil {
		return statusFromErr(err)
	}

	ino := f.inoForPath(childPath)
	out.NodeId = ino
	out.Generation = 1
	f.fillAttr(ino, ra, &out.Attr)
	out.Fh = f.nextFileHandle()

	return fuse.OK
}

// deleteEntry resolves name's type under parentPath and dispatches to
// delete_cow_file or delete_cow_dir, per spec §4.5's unlink description
// (shared by Unlink and Rmdir).
func (f *FS) deleteEntry(ctx context.Context, parentPath []string, name string) fuse.Status {
	first, parentRel := splitFirst(parentPath)
	if first == trunkName {
		return fuse.Status(syscall.EPERM)
	}

	childPath := append(clonePath(parentPath), name)

	ra, err := f.resolveAttr(ctx, childPath)
	if err != nil {
		return statusFromErr(err)
	}

	wsID, err := f.resolveWorkspaceID(ctx, first)
	if err != nil {
		return statusFromErr(err)
	}

	childRel := append(clonePath(parentRel), name)

	if ra.isDir {
		err = f.overlay.DeleteCowDir(wsID, childRel)
	} else {
		err = f.overlay.DeleteCowFile(wsID, childRel)
	}

	if err != nil {
		return statusFromErr(err)
	}

	return fuse.OK
}

func (f *FS) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	parentPath, ok := f.pathForIno(header.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	return f.deleteEntry(ctx, parentPath, name)
}

func (f *FS) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	parentPath, ok := f.pathForIno(header.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	return f.deleteEntry(ctx, parentPath, name)
}

// Rename rejects EPERM if either side is under trunk; otherwise moves the
// overlay entry and the ino↔path bimap mapping together.
func (f *FS) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	oldParentPath, ok := f.pathForIno(input.InHeader.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	newParentPath, ok := f.pathForIno(input.Newdir)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	oldFirst, oldParentRel := splitFirst(oldParentPath)
	newFirst, newParentRel := splitFirst(newParentPath)

	if oldFirst == trunkName || newFirst == trunkName {
		return fuse.Status(syscall.EPERM)
	}

	oldWsID, err := f.resolveWorkspaceID(ctx, oldFirst)
	if err != nil {
		return statusFromErr(err)
	}

	newWsID, err := f.resolveWorkspaceID(ctx, newFirst)
	if err != nil {
		return statusFromErr(err)
	}

	oldRel := append(clonePath(oldParentRel), oldName)
	newRel := append(clonePath(newParentRel), newName)

	if err := f.overlay.RenameCowFile(oldWsID, oldRel, newWsID, newRel); err != nil {
		return statusFromErr(err)
	}

	oldPath := append(clonePath(oldParentPath), oldName)
	newPath := append(clonePath(newParentPath), newName)
	f.moveIno(oldPath, newPath)

	return fuse.OK
}

// Open allocates a monotonic file handle; no per-handle state is kept.
func (f *FS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if _, ok := f.pathForIno(input.NodeId); !ok {
		return fuse.Status(syscall.ENOENT)
	}

	out.Fh = f.nextFileHandle()

	return fuse.OK
}

// OpenDir allocates a monotonic file handle; no per-handle state is kept.
func (f *FS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if _, ok := f.pathForIno(input.NodeId); !ok {
		return fuse.Status(syscall.ENOENT)
	}

	out.Fh = f.nextFileHandle()

	return fuse.OK
}

// Read serves from the overlay when a cow file exists for this path;
// otherwise it fetches the resolved blob from the remote store.
func (f *FS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.NodeId)
	if !ok {
		return nil, fuse.Status(syscall.ENOENT)
	}

	first, rel := splitFirst(path)
	size := int(input.Size)
	offset := int64(input.Offset)

	if first != trunkName {
		wsID, err := f.resolveWorkspaceID(ctx, first)
		if err != nil {
			return nil, statusFromErr(err)
		}

		if isFile, statErr := f.overlay.CheckCowFile(wsID, rel); statErr == nil && isFile {
			data, err := f.overlay.ReadCowFile(wsID, rel, offset, size)
			if err != nil {
				return nil, statusFromErr(err)
			}

			return fuse.ReadResultData(data), fuse.OK
		}

		blobID, err := f.client.GetFileBlobID(ctx, &wsID, rel)
		if err != nil {
			return nil, statusFromErr(err)
		}

		return f.readBlobSlice(ctx, blobID, offset, size)
	}

	blobID, err := f.client.GetFileBlobID(ctx, nil, rel)
	if err != nil {
		return nil, statusFromErr(err)
	}

	return f.readBlobSlice(ctx, blobID, offset, size)
}

func (f *FS) readBlobSlice(ctx context.Context, blobID string, offset int64, size int) (fuse.ReadResult, fuse.Status) {
	data, err := f.client.ReadBlob(ctx, blobID)
	if err != nil {
		return nil, statusFromErr(err)
	}

	if offset >= int64(len(data)) {
		return fuse.ReadResultData(nil), fuse.OK
	}

	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}

	return fuse.ReadResultData(data[offset:end]), fuse.OK
}

// Write returns EPERM for paths under trunk; otherwise it writes into the
// workspace overlay file via write_cow_file.
func (f *FS) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.NodeId)
	if !ok {
		return 0, fuse.Status(syscall.ENOENT)
	}

	first, rel := splitFirst(path)
	if first == trunkName {
		return 0, fuse.Status(syscall.EPERM)
	}

	wsID, err := f.resolveWorkspaceID(ctx, first)
	if err != nil {
		return 0, statusFromErr(err)
	}

	if err := f.overlay.WriteCowFile(wsID, rel, int64(input.Offset), data); err != nil {
		return 0, statusFromErr(err)
	}

	return uint32(len(data)), fuse.OK
}

// ReadDir lists root's fixed entries, or unions the remote view with the
// overlay for a workspace, preferring the overlay entry on name collision.
func (f *FS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	entries, status := f.listDirEntries(ctx, path)
	if status != fuse.OK {
		return status
	}

	for i := int(input.Offset); i < len(entries); i++ {
		e := entries[i]

		mode := uint32(syscall.S_IFREG)
		if e.isDir {
			mode = syscall.S_IFDIR
		}

		if !out.AddDirEntry(fuse.DirEntry{Name: e.name, Mode: mode}) {
			break
		}
	}

	return fuse.OK
}

type dirListEntry struct {
	name  string
	isDir bool
}

func (f *FS) listDirEntries(ctx context.Context, path []string) ([]dirListEntry, fuse.Status) {
	if len(path) == 0 {
		workspaces, err := f.client.GetWorkspaces(ctx)
		if err != nil {
			return nil, statusFromErr(err)
		}

		entries := make([]dirListEntry, 0, len(workspaces)+1)
		entries = append(entries, dirListEntry{name: trunkName, isDir: true})

		for _, ws := range workspaces {
			entries = append(entries, dirListEntry{name: ws.Name, isDir: true})
		}

		return entries, fuse.OK
	}

	first, rel := splitFirst(path)

	var workspaceID *string
	if first != trunkName {
		wsID, err := f.resolveWorkspaceID(ctx, first)
		if err != nil {
			return nil, statusFromErr(err)
		}

		workspaceID = &wsID
	}

	remoteEntries, remoteErr := f.client.ReadDir(ctx, workspaceID, rel, false)
	remoteFound := remoteErr == nil

	if remoteErr != nil && !errors.Is(remoteErr, revdb.ErrNotFound) {
		return nil, statusFromErr(remoteErr)
	}

	byName := map[string]dirListEntry{}
	if remoteFound {
		for _, e := range remoteEntries {
			byName[e.Name] = dirListEntry{name: e.Name, isDir: e.FileType == revdb.FileTypeDir}
		}
	}

	overlayFound := false

	if workspaceID != nil {
		cowEntries, err := f.overlay.ReadCowDir(*workspaceID, rel)
		if err == nil {
			overlayFound = true

			for _, e := range cowEntries {
				byName[e.Name] = dirListEntry{name: e.Name, isDir: e.IsDir}
			}
		}
	}

	if !remoteFound && !overlayFound {
		return nil, fuse.Status(syscall.ENOENT)
	}

	out := make([]dirListEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}

	return out, fuse.OK
}

// Release, ReleaseDir, Flush, and Forget are no-ops per spec §4.5.
func (f *FS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

func (f *FS) ReleaseDir(input *fuse.ReleaseIn) {}

func (f *FS) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (f *FS) Forget(nodeid, nlookup uint64) {}

// Access succeeds if get_file_attr resolves the path, ignoring the
// requested access mask.
func (f *FS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	ctx, cancelFn := ctxFromCancel(cancel)
	defer cancelFn()

	path, ok := f.pathForIno(input.InHeader.NodeId)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}

	if _, err := f.resolveAttr(ctx, path); err != nil {
		return statusFromErr(err)
	}

	return fuse.OK
}

// GetXAttr and ListXAttr are unsupported per spec §4.5.
func (f *FS) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	return 0, fuse.Status(syscall.EOPNOTSUPP)
}

func (f *FS) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	return 0, fuse.Status(syscall.EOPNOTSUPP)
}
