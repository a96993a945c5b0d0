// Package revdb implements Sagitta's revision database: workspaces, blobs,
// interned file paths, per-workspace file revisions, trunk commits, and the
// unified (trunk ⊕ workspace) read view. Grounded on the teacher's
// internal/sync package (SQLiteStore, goose migrations, domain-grouped
// prepared statements) and on the flat-revision model spec.md §9 mandates
// in place of the tree-object graph original_source/ used before the
// redesign.
package revdb

import "time"

// FileType is the kind of a tracked path, stored as the SQLite TEXT values
// below — mirrors the teacher's ItemType string-enum-in-SQLite convention
// (internal/sync/types.go's ItemTypeFile/ItemTypeFolder).
type FileType string

// The two file types a revision can describe.
const (
	FileTypeFile FileType = "file"
	FileTypeDir  FileType = "dir"
)

// Workspace is a named, mutable branch of pending file revisions.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Blob is an immutable, content-addressed byte string identity. The Blob
// Store owns the bytes; revdb owns only the (hash, size) metadata.
type Blob struct {
	ID   string
	Hash string // hex SHA-256, 64 chars
	Size int64
}

// Commit is one atomic promotion of a workspace's latest per-path revisions
// into trunk at a new global rank.
type Commit struct {
	ID          string
	CommitRank  int64
	CreatedAt   time.Time
	WorkspaceID string // the workspace that was promoted (informational)
}

// ChangelistItem describes the current state of one path in a workspace's
// sync chain, as returned by GetWorkspaceChangelist.
type ChangelistItem struct {
	Path      string
	FileType  FileType
	BlobID    string // empty for directories or deletions
	Deleted   bool
	Version   int64
	CreatedAt time.Time
}

// DirEntry describes one entry returned by ReadDir.
type DirEntry struct {
	Name       string
	FileType   FileType
	Size       int64
	ModifiedAt time.Time
	Deleted    bool
}

// Attr describes the result of GetAttr: a path's current type, size, and
// modification time in the requested (workspace or trunk-only) view.
type Attr struct {
	FileType   FileType
	Size       int64
	ModifiedAt time.Time
}

// TrunkFile describes one path's current state in trunk, as returned by
// GetAllTrunkFiles.
type TrunkFile struct {
	Path       string
	FileType   FileType
	BlobID     string
	Size       int64
	ModifiedAt time.Time
	Deleted    bool
}

// SyncItemKind tags the variant of a SyncItem.
type SyncItemKind int

// The four kinds of sync batch items, matching spec §4.1's
// UpsertFile/UpsertDir/DeleteFile/DeleteDir tags.
const (
	SyncUpsertFile SyncItemKind = iota
	SyncUpsertDir
	SyncDeleteFile
	SyncDeleteDir
)

// SyncItem is one entry in a sync_files_to_workspace batch. Path is the
// slash-free path segment slice (e.g. ["dir", "file.txt"]); BlobID is set
// only for SyncUpsertFile.
type SyncItem struct {
	Kind   SyncItemKind
	Path   []string
	BlobID string
}

// CommitHistoryItem is one row of commit history, newest first.
type CommitHistoryItem struct {
	CommitID   string
	CommitRank int64
	CreatedAt  time.Time
}
