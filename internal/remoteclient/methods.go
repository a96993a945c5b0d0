package remoteclient

import (
	"context"
	"fmt"
	"time"

	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

const wireTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// CreateWorkspace creates a new workspace named name and returns its id.
// Returns revdb.ErrWorkspaceAlreadyExists when a live workspace already has
// that name.
func (c *Client) CreateWorkspace(ctx context.Context, name string) (string, error) {
	var resp remoteserver.CreateWorkspaceResponse
	if err := c.postJSON(ctx, "/v2/create-workspace", remoteserver.CreateWorkspaceRequest{Name: name}, &resp); err != nil {
		return "", err
	}

	if resp.AlreadyExists {
		return "", fmt.Errorf("remoteclient: create-workspace %q: %w", name, revdb.ErrWorkspaceAlreadyExists)
	}

	return resp.ID, nil
}

// GetWorkspaces lists every live workspace.
func (c *Client) GetWorkspaces(ctx context.Context) ([]remoteserver.WorkspaceSummary, error) {
	var resp remoteserver.GetWorkspacesResponse
	if err := c.postJSON(ctx, "/v2/get-workspaces", struct{}{}, &resp); err != nil {
		return nil, err
	}

	if resp.Err != "" {
		return nil, fmt.Errorf("remoteclient: get-workspaces: %s", resp.Err)
	}

	return resp.Items, nil
}

// GetWorkspaceIDFromName resolves a workspace name to its id. It returns
// revdb.ErrWorkspaceNotFound when no live workspace has that name.
func (c *Client) GetWorkspaceIDFromName(ctx context.Context, name string) (string, error) {
	var resp remoteserver.GetWorkspaceIDFromNameResponse

	req := remoteserver.GetWorkspaceIDFromNameRequest{WorkspaceName: name}
	if err := c.postJSON(ctx, "/v2/get-workspace-id-from-name", req, &resp); err != nil {
		return "", err
	}

	if !resp.Found {
		return "", revdb.ErrWorkspaceNotFound
	}

	return resp.WorkspaceID, nil
}

// DeleteWorkspace soft-deletes workspaceID. Returns revdb.ErrWorkspaceNotFound
// if no live workspace matched.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	var resp remoteserver.DeleteWorkspaceResponse

	req := remoteserver.DeleteWorkspaceRequest{WorkspaceID: workspaceID}
	if err := c.postJSON(ctx, "/v2/delete-workspace", req, &resp); err != nil {
		return err
	}

	if resp.Err == "workspace_not_found" {
		return revdb.ErrWorkspaceNotFound
	}

	if resp.Err != "" {
		return fmt.Errorf("remoteclient: delete-workspace: %s", resp.Err)
	}

	return nil
}

// WriteBlob uploads data, deduplicating server-side, and returns its blob id.
func (c *Client) WriteBlob(ctx context.Context, data []byte) (string, error) {
	var resp remoteserver.WriteBlobResponse
	if err := c.postJSON(ctx, "/v2/write-blob", remoteserver.WriteBlobRequest{Data: data}, &resp); err != nil {
		return "", err
	}

	return resp.BlobID, nil
}

// ReadBlob downloads the bytes for blobID. Returns revdb.ErrNotFound if
// no such blob exists.
func (c *Client) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	var resp remoteserver.ReadBlobResponse
	if err := c.postJSON(ctx, "/v2/read-blob", remoteserver.ReadBlobRequest{BlobID: blobID}, &resp); err != nil {
		return nil, err
	}

	if !resp.Found {
		return nil, revdb.ErrNotFound
	}

	return resp.Blob, nil
}

// GetFileBlobID resolves path to its current blob id in the given view
// (trunk when workspaceID is nil). Returns revdb.ErrNotFound if the path
// does not resolve to a live file.
func (c *Client) GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error) {
	var resp remoteserver.GetFileBlobIDResponse

	req := remoteserver.PathRequest{WorkspaceID: workspaceID, Path: path}
	if err := c.postJSON(ctx, "/v2/get-file-blob-id", req, &resp); err != nil {
		return "", err
	}

	if !resp.Found {
		return "", revdb.ErrNotFound
	}

	return resp.BlobID, nil
}

// ReadDir lists the children of path in the given view. Returns
// revdb.ErrNotFound if path does not resolve to a live directory.
func (c *Client) ReadDir(ctx context.Context, workspaceID *string, path []string, includeDeleted bool) ([]revdb.DirEntry, error) {
	var resp remoteserver.ReadDirResponse

	req := remoteserver.ReadDirRequest{WorkspaceID: workspaceID, Path: path, IncludeDeleted: includeDeleted}
	if err := c.postJSON(ctx, "/v2/read-dir", req, &resp); err != nil {
		return nil, err
	}

	if !resp.Found {
		return nil, revdb.ErrNotFound
	}

	entries := make([]revdb.DirEntry, 0, len(resp.Items))

	for _, it := range resp.Items {
		modAt, err := time.Parse(wireTimeLayout, it.ModifiedAt)
		if err != nil {
			return nil, fmt.Errorf("remoteclient: parse modified_at for %q: %w", it.Name, err)
		}

		fileType := revdb.FileTypeFile
		if it.IsDir {
			fileType = revdb.FileTypeDir
		}

		entries = append(entries, revdb.DirEntry{
			Name:       it.Name,
			FileType:   fileType,
			Size:       it.Size,
			ModifiedAt: modAt,
		})
	}

	return entries, nil
}

// GetAttr resolves path to its attributes in the given view. Returns
// revdb.ErrNotFound if path does not resolve to a live entry.
func (c *Client) GetAttr(ctx context.Context, workspaceID *string, path []string) (revdb.Attr, error) {
	var resp remoteserver.GetAttrResponse

	req := remoteserver.PathRequest{WorkspaceID: workspaceID, Path: path}
	if err := c.postJSON(ctx, "/v2/get-attr", req, &resp); err != nil {
		return revdb.Attr{}, err
	}

	if !resp.Found {
		return revdb.Attr{}, revdb.ErrNotFound
	}

	modAt, err := time.Parse(wireTimeLayout, resp.ModifiedAt)
	if err != nil {
		return revdb.Attr{}, fmt.Errorf("remoteclient: parse modified_at: %w", err)
	}

	fileType := revdb.FileTypeFile
	if resp.IsDir {
		fileType = revdb.FileTypeDir
	}

	return revdb.Attr{FileType: fileType, Size: resp.Size, ModifiedAt: modAt}, nil
}

func syncItemKindWire(kind revdb.SyncItemKind) (string, error) {
	switch kind {
	case revdb.SyncUpsertFile:
		return "upsert_file", nil
	case revdb.SyncUpsertDir:
		return "upsert_dir", nil
	case revdb.SyncDeleteFile:
		return "delete_file", nil
	case revdb.SyncDeleteDir:
		return "delete_dir", nil
	default:
		return "", fmt.Errorf("remoteclient: unknown sync item kind %d", kind)
	}
}

// SyncFilesToWorkspace sends a sync batch to workspaceID. The server does not
// check whether the workspace is live: a batch for a deleted workspace is
// accepted, and other server-side failures (including an unknown workspace
// id) come back as an HTTP error rather than revdb.ErrWorkspaceNotFound.
func (c *Client) SyncFilesToWorkspace(ctx context.Context, workspaceID string, items []revdb.SyncItem) error {
	wireItems := make([]remoteserver.SyncItemWire, 0, len(items))

	for _, it := range items {
		kind, err := syncItemKindWire(it.Kind)
		if err != nil {
			return err
		}

		wireItems = append(wireItems, remoteserver.SyncItemWire{Kind: kind, FilePath: it.Path, BlobID: it.BlobID})
	}

	var resp remoteserver.SyncFilesWithWorkspaceResponse

	req := remoteserver.SyncFilesWithWorkspaceRequest{WorkspaceID: workspaceID, Items: wireItems}
	if err := c.postJSON(ctx, "/v2/sync-files-with-workspace", req, &resp); err != nil {
		return err
	}

	if resp.Err == "workspace_not_found" {
		return revdb.ErrWorkspaceNotFound
	}

	if resp.Err != "" {
		return fmt.Errorf("remoteclient: sync-files-with-workspace: %s", resp.Err)
	}

	return nil
}

// Commit promotes workspaceID's latest revisions into trunk and returns the
// new commit id. Returns revdb.ErrWorkspaceNotFound if the workspace does
// not exist or was already committed/deleted.
func (c *Client) Commit(ctx context.Context, workspaceID string) (string, error) {
	var resp remoteserver.CommitResponse
	if err := c.postJSON(ctx, "/v2/commit", remoteserver.CommitRequest{WorkspaceID: workspaceID}, &resp); err != nil {
		return "", err
	}

	if resp.Err == "workspace_not_found" {
		return "", revdb.ErrWorkspaceNotFound
	}

	if resp.Err != "" {
		return "", fmt.Errorf("remoteclient: commit: %s", resp.Err)
	}

	return resp.CommitID, nil
}

// GetCommitHistory returns up to take commits, newest first.
func (c *Client) GetCommitHistory(ctx context.Context, take int) ([]revdb.CommitHistoryItem, error) {
	var resp remoteserver.CommitHistoryResponse

	req := remoteserver.CommitHistoryRequest{Take: take}
	if err := c.postJSON(ctx, "/v2/get-commit-history", req, &resp); err != nil {
		return nil, err
	}

	items := make([]revdb.CommitHistoryItem, 0, len(resp.Items))

	for _, it := range resp.Items {
		createdAt, err := time.Parse(wireTimeLayout, it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("remoteclient: parse created_at: %w", err)
		}

		items = append(items, revdb.CommitHistoryItem{CommitID: it.CommitID, CommitRank: it.CommitRank, CreatedAt: createdAt})
	}

	return items, nil
}
