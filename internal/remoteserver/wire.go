// Package remoteserver implements Sagitta's Remote Server: thin,
// stateless HTTP handlers over internal/revdb and internal/blobstore, one
// per operation in spec.md §6. Grounded on the teacher's graph.Client
// request/response shape (typed structs, no dynamic maps) but inverted —
// the teacher is an HTTP client, Sagitta's remote server is the analogous
// server — routed with github.com/go-chi/chi/v5 and encoded with
// github.com/goccy/go-json.
package remoteserver

// CreateWorkspaceRequest is the body of POST /v2/create-workspace.
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// CreateWorkspaceResponse is returned by /v2/create-workspace.
type CreateWorkspaceResponse struct {
	ID           string `json:"id,omitempty"`
	AlreadyExists bool  `json:"already_exists,omitempty"`
}

// WorkspaceSummary is one entry of GetWorkspacesResponse.
type WorkspaceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetWorkspacesResponse is returned by /v2/get-workspaces.
type GetWorkspacesResponse struct {
	Items []WorkspaceSummary `json:"items,omitempty"`
	Err   string             `json:"err,omitempty"`
}

// GetWorkspaceIDFromNameRequest is the body of POST /v2/get-workspace-id-from-name.
type GetWorkspaceIDFromNameRequest struct {
	WorkspaceName string `json:"workspace_name"`
}

// GetWorkspaceIDFromNameResponse is returned by /v2/get-workspace-id-from-name.
type GetWorkspaceIDFromNameResponse struct {
	Found       bool   `json:"found"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// DeleteWorkspaceRequest is the body of POST /v2/delete-workspace.
type DeleteWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// DeleteWorkspaceResponse is returned by /v2/delete-workspace.
type DeleteWorkspaceResponse struct {
	Err string `json:"err,omitempty"`
}

// WriteBlobRequest is the body of POST /v2/write-blob.
type WriteBlobRequest struct {
	Data []byte `json:"data"`
}

// WriteBlobResponse is returned by /v2/write-blob.
type WriteBlobResponse struct {
	BlobID string `json:"blob_id"`
}

// ReadBlobRequest is the body of POST /v2/read-blob.
type ReadBlobRequest struct {
	BlobID string `json:"blob_id"`
}

// ReadBlobResponse is returned by /v2/read-blob.
type ReadBlobResponse struct {
	Found bool   `json:"found"`
	Blob  []byte `json:"blob,omitempty"`
}

// PathRequest is the shared shape of every request scoped to an optional
// workspace and a path.
type PathRequest struct {
	WorkspaceID *string  `json:"workspace_id,omitempty"`
	Path        []string `json:"path"`
}

// GetFileBlobIDResponse is returned by /v2/get-file-blob-id.
type GetFileBlobIDResponse struct {
	Found  bool   `json:"found"`
	BlobID string `json:"blob_id,omitempty"`
}

// ReadDirRequest is the body of POST /v2/read-dir.
type ReadDirRequest struct {
	WorkspaceID    *string  `json:"workspace_id,omitempty"`
	Path           []string `json:"path"`
	IncludeDeleted bool     `json:"include_deleted"`
}

// ReadDirEntry is one entry of ReadDirResponse.
type ReadDirEntry struct {
	Name       string `json:"name"`
	IsDir      bool   `json:"is_dir"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// ReadDirResponse is returned by /v2/read-dir.
type ReadDirResponse struct {
	Found bool           `json:"found"`
	Items []ReadDirEntry `json:"items,omitempty"`
}

// GetAttrResponse is returned by /v2/get-attr.
type GetAttrResponse struct {
	Found      bool   `json:"found"`
	IsDir      bool   `json:"is_dir,omitempty"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Permission uint32 `json:"permission,omitempty"`
}

// SyncItemWire is one entry of SyncFilesWithWorkspaceRequest.Items.
type SyncItemWire struct {
	Kind       string   `json:"kind"` // upsert_file | upsert_dir | delete_file | delete_dir
	FilePath   []string `json:"file_path"`
	BlobID     string   `json:"blob_id,omitempty"`
	Permission uint32   `json:"permission,omitempty"`
}

// SyncFilesWithWorkspaceRequest is the body of POST /v2/sync-files-with-workspace.
type SyncFilesWithWorkspaceRequest struct {
	WorkspaceID string         `json:"workspace_id"`
	Items       []SyncItemWire `json:"items"`
}

// SyncFilesWithWorkspaceResponse is returned by /v2/sync-files-with-workspace.
type SyncFilesWithWorkspaceResponse struct {
	Err string `json:"err,omitempty"`
}

// CommitRequest is the body of POST /v2/commit.
type CommitRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// CommitResponse is returned by /v2/commit.
type CommitResponse struct {
	CommitID string `json:"commit_id,omitempty"`
	Err      string `json:"err,omitempty"`
}

// CommitHistoryRequest is the body of POST /v2/get-commit-history.
type CommitHistoryRequest struct {
	Take int `json:"take"`
}

// CommitHistoryEntry is one entry of CommitHistoryResponse.
type CommitHistoryEntry struct {
	CommitID   string `json:"commit_id"`
	CommitRank int64  `json:"commit_rank"`
	CreatedAt  string `json:"created_at"`
}

// CommitHistoryResponse is returned by /v2/get-commit-history.
type CommitHistoryResponse struct {
	Items []CommitHistoryEntry `json:"items"`
}

// LocalSyncRequest is the body of POST /v1/sync, served by the process
// running the FUSE mount rather than the Remote Server.
type LocalSyncRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// LocalSyncResponse is returned by /v1/sync.
type LocalSyncResponse struct {
	UpsertFiles [][]string `json:"upsert_files,omitempty"`
	Err         string     `json:"err,omitempty"`
}
