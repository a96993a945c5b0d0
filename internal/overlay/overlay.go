// Package overlay implements Sagitta's local copy-on-write overlay: a
// per-workspace on-disk directory of user-written files buffered before
// sync, sibling tombstones marking intentional deletions, and timestamped
// archive directories left behind once a sync promotes the overlay's
// contents. Grounded on spec.md §4.3 (which extends
// sagitta-local-system-workspace/src/lib.rs in original_source/ with
// tombstones, list_cow_files, archive_cow_dir, and rename_cow_file — none
// of which exist there); realized as plain os/io/fs calls, the teacher's
// filesystem idiom (explicit os.MkdirAll, wrapped errors, no hidden magic).
package overlay

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// tombstonePrefix names the sibling marker file that hides a deleted entry
// from read_cow_dir and list_cow_files without mutating the Revision DB.
const tombstonePrefix = ".sagitta.delete."

// Overlay is rooted at base/<workspace_id>/cow/... for the active overlay,
// and base/<workspace_id>/cow-<unix-seconds>/... for archives.
type Overlay struct {
	base   string
	logger *slog.Logger
}

// NewOverlay returns an Overlay rooted at base.
func NewOverlay(base string, logger *slog.Logger) *Overlay {
	return &Overlay{base: base, logger: logger}
}

func (o *Overlay) cowRoot(workspaceID string) string {
	return filepath.Join(o.base, workspaceID, "cow")
}

func joinPath(root string, path []string) string {
	return filepath.Join(append([]string{root}, path...)...)
}

func tombstonePath(fullPath string) string {
	dir, leaf := filepath.Split(fullPath)
	return filepath.Join(dir, tombstonePrefix+leaf)
}

// removeTombstoneIfPresent clears the tombstone marking fullPath as
// previously deleted, called whenever a write makes the entry real again.
func removeTombstoneIfPresent(fullPath string) error {
	tomb := tombstonePath(fullPath)

	err := os.Remove(tomb)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("overlay: remove tombstone %s: %w", tomb, err)
	}

	return nil
}

// CreateCowFile writes data at path, creating ancestor directories, and
// clears any sibling tombstone.
func (o *Overlay) CreateCowFile(workspaceID string, path []string, data []byte) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("overlay: create parent dirs for %s: %w", full, err)
	}

	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("overlay: create cow file %s: %w", full, err)
	}

	return removeTombstoneIfPresent(full)
}

// CreateCowDir creates path as a directory and clears any sibling
// tombstone.
func (o *Overlay) CreateCowDir(workspaceID string, path []string) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("overlay: create cow dir %s: %w", full, err)
	}

	return removeTombstoneIfPresent(full)
}

// CheckCowFile reports whether path exists as a regular file in the
// overlay.
func (o *Overlay) CheckCowFile(workspaceID string, path []string) (bool, error) {
	full := joinPath(o.cowRoot(workspaceID), path)

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("overlay: stat %s: %w", full, err)
	}

	return !info.IsDir(), nil
}

// CheckCowDir reports whether path exists as a directory in the overlay.
func (o *Overlay) CheckCowDir(workspaceID string, path []string) (bool, error) {
	full := joinPath(o.cowRoot(workspaceID), path)

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("overlay: stat %s: %w", full, err)
	}

	return info.IsDir(), nil
}

// Metadata is the subset of os.FileInfo Sagitta's FUSE layer needs from a
// cow entry.
type Metadata struct {
	Size  int64
	Ctime time.Time
	Mtime time.Time
}

// LenCtimeMtime returns an overlay file's size and timestamps.
func (o *Overlay) LenCtimeMtime(workspaceID string, path []string) (Metadata, error) {
	full := joinPath(o.cowRoot(workspaceID), path)

	info, err := os.Stat(full)
	if err != nil {
		return Metadata{}, fmt.Errorf("overlay: stat %s: %w", full, err)
	}

	return Metadata{Size: info.Size(), Ctime: info.ModTime(), Mtime: info.ModTime()}, nil
}

// DirEntry describes one entry yielded by ReadCowDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// ReadCowDir lists the entries directly under path, excluding tombstone
// marker files and any entry whose sibling tombstone exists.
func (o *Overlay) ReadCowDir(workspaceID string, path []string) ([]DirEntry, error) {
	full := joinPath(o.cowRoot(workspaceID), path)

	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("overlay: read cow dir %s: %w", full, os.ErrNotExist)
	}

	if err != nil {
		return nil, fmt.Errorf("overlay: read cow dir %s: %w", full, err)
	}

	tombstoned := make(map[string]bool)

	for _, e := range entries {
		if name, ok := strings.CutPrefix(e.Name(), tombstonePrefix); ok {
			tombstoned[name] = true
		}
	}

	var out []DirEntry

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tombstonePrefix) {
			continue
		}

		if tombstoned[e.Name()] {
			continue
		}

		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}

	return out, nil
}

// ReadCowFile reads up to size bytes starting at offset, truncated to the
// bytes actually available.
func (o *Overlay) ReadCowFile(workspaceID string, path []string, offset int64, size int) ([]byte, error) {
	full := joinPath(o.cowRoot(workspaceID), path)

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("overlay: open %s: %w", full, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("overlay: seek %s: %w", full, err)
	}

	buf := make([]byte, size)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("overlay: read %s: %w", full, err)
	}

	return buf[:n], nil
}

// WriteCowFile writes data at offset into an already-open-for-write path,
// creating it if absent, and clears any sibling tombstone.
func (o *Overlay) WriteCowFile(workspaceID string, path []string, offset int64, data []byte) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("overlay: create parent dirs for %s: %w", full, err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("overlay: open for write %s: %w", full, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("overlay: seek %s: %w", full, err)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("overlay: write %s: %w", full, err)
	}

	return removeTombstoneIfPresent(full)
}

// TruncateCowFile replaces a cow file's contents with size bytes (used by
// setattr's truncate-to-zero path, the only file-data mutation outside
// write per spec §4.5).
func (o *Overlay) TruncateCowFile(workspaceID string, path []string, size int64) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.Truncate(full, size); err != nil {
		return fmt.Errorf("overlay: truncate %s: %w", full, err)
	}

	return nil
}

// writeTombstone drops an empty marker file named .sagitta.delete.<leaf>
// next to fullPath, recording that the entry was intentionally removed.
func writeTombstone(fullPath string) error {
	tomb := tombstonePath(fullPath)

	if err := os.MkdirAll(filepath.Dir(tomb), 0o755); err != nil {
		return fmt.Errorf("overlay: create tombstone dir for %s: %w", tomb, err)
	}

	if err := os.WriteFile(tomb, nil, 0o644); err != nil {
		return fmt.Errorf("overlay: write tombstone %s: %w", tomb, err)
	}

	return nil
}

// DeleteCowFile removes a file if present, then writes a tombstone.
func (o *Overlay) DeleteCowFile(workspaceID string, path []string) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("overlay: delete cow file %s: %w", full, err)
	}

	return writeTombstone(full)
}

// DeleteCowDir removes a directory if present, then writes a tombstone.
func (o *Overlay) DeleteCowDir(workspaceID string, path []string) error {
	full := joinPath(o.cowRoot(workspaceID), path)

	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("overlay: delete cow dir %s: %w", full, err)
	}

	return writeTombstone(full)
}

// ListCowFiles recursively enumerates every regular file under the
// workspace's overlay, returning each as a path segment slice relative to
// cow/.
func (o *Overlay) ListCowFiles(workspaceID string) ([][]string, error) {
	root := o.cowRoot(workspaceID)

	var out [][]string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return nil
			}

			return err
		}

		if d.IsDir() {
			return nil
		}

		if strings.HasPrefix(d.Name(), tombstonePrefix) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("overlay: relativize %s: %w", p, err)
		}

		out = append(out, strings.Split(rel, string(filepath.Separator)))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("overlay: list cow files for %s: %w", workspaceID, err)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i], "/") < strings.Join(out[j], "/")
	})

	return out, nil
}

// ArchiveCowDir atomically renames each enumerated path from cow/... to
// cow-<unix-seconds>/..., creating intermediate archive directories. After
// this call, none of the enumerated paths are visible under cow/.
func (o *Overlay) ArchiveCowDir(workspaceID string, paths [][]string, now time.Time) error {
	cowRoot := o.cowRoot(workspaceID)
	archiveRoot := filepath.Join(o.base, workspaceID, fmt.Sprintf("cow-%d", now.Unix()))

	for _, p := range paths {
		src := joinPath(cowRoot, p)
		dst := joinPath(archiveRoot, p)

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("overlay: create archive dir for %s: %w", dst, err)
		}

		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("overlay: archive %s: %w", src, err)
		}
	}

	o.logger.Info("archived overlay",
		slog.String("workspace_id", workspaceID),
		slog.Int("files", len(paths)),
		slog.String("archive", archiveRoot),
	)

	return nil
}

// RenameCowFile moves a cow entry, possibly across workspaces.
func (o *Overlay) RenameCowFile(oldWorkspace string, oldPath []string, newWorkspace string, newPath []string) error {
	src := joinPath(o.cowRoot(oldWorkspace), oldPath)
	dst := joinPath(o.cowRoot(newWorkspace), newPath)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("overlay: create parent dirs for %s: %w", dst, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("overlay: rename %s to %s: %w", src, dst, err)
	}

	return nil
}
