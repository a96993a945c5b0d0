package revdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	sqlMaxWorkspaceVersion = `SELECT COALESCE(MAX(sync_version_number), 0) FROM workspace_file_revision WHERE workspace_id = ?`

	sqlInsertWorkspaceRevision = `INSERT INTO workspace_file_revision
		(id, workspace_id, file_path_id, sync_version_number, blob_id, file_type, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlWorkspaceChangelist = `SELECT fp.path, wfr.file_type, wfr.blob_id, wfr.deleted_at, wfr.sync_version_number, wfr.created_at
		FROM workspace_file_revision wfr
		JOIN file_path fp ON fp.id = wfr.file_path_id
		JOIN (
			SELECT file_path_id, MAX(sync_version_number) AS max_version
			FROM workspace_file_revision
			WHERE workspace_id = ?
			GROUP BY file_path_id
		) latest ON latest.file_path_id = wfr.file_path_id AND latest.max_version = wfr.sync_version_number
		WHERE wfr.workspace_id = ?`
)

// SyncFilesToWorkspace appends a batch of revisions to a workspace at a new
// sync_version_number, materializing ancestor directories as it goes. The
// whole batch commits in one transaction. Grounded on spec §4.1's algorithm,
// including the depth asymmetry between file ancestors and UpsertDir
// ancestors (§9 REDESIGN FLAG — preserved unchanged, not a bug).
func (s *Store) SyncFilesToWorkspace(ctx context.Context, workspaceID string, items []SyncItem, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("revdb: sync files to workspace: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxVersion int64
	if err := tx.QueryRowContext(ctx, sqlMaxWorkspaceVersion, workspaceID).Scan(&maxVersion); err != nil {
		return fmt.Errorf("revdb: sync files to workspace: max version: %w", err)
	}

	version := maxVersion + 1
	inserted := make(map[string]bool)
	createdAt := formatTime(now)

	for _, item := range items {
		if err := applySyncItem(ctx, tx, workspaceID, version, createdAt, item, inserted); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("revdb: sync files to workspace: commit: %w", err)
	}

	s.logger.Info("synced files to workspace",
		slog.String("workspace_id", workspaceID),
		slog.Int64("version", version),
		slog.Int("items", len(items)),
	)

	return nil
}

// applySyncItem materializes one item's strict ancestors, then the item's
// own revision row, sharing the insertedSet that suppresses duplicate rows
// for the same path within this batch.
func applySyncItem(ctx context.Context, tx *sql.Tx, workspaceID string, version int64, createdAt string, item SyncItem, inserted map[string]bool) error {
	ancestorDepth := len(item.Path) - 1
	if item.Kind == SyncUpsertDir {
		ancestorDepth = len(item.Path)
	}

	for d := 1; d <= ancestorDepth; d++ {
		ref, err := internFilePath(ctx, tx, item.Path[:d])
		if err != nil {
			return err
		}

		if err := insertWorkspaceRevisionOnce(ctx, tx, inserted, ref.ID, workspaceID, version, createdAt, FileTypeDir, "", false); err != nil {
			return err
		}
	}

	ref, err := internFilePath(ctx, tx, item.Path)
	if err != nil {
		return err
	}

	switch item.Kind {
	case SyncUpsertFile:
		return insertWorkspaceRevisionOnce(ctx, tx, inserted, ref.ID, workspaceID, version, createdAt, FileTypeFile, item.BlobID, false)
	case SyncDeleteFile:
		return insertWorkspaceRevisionOnce(ctx, tx, inserted, ref.ID, workspaceID, version, createdAt, FileTypeFile, "", true)
	case SyncUpsertDir:
		return insertWorkspaceRevisionOnce(ctx, tx, inserted, ref.ID, workspaceID, version, createdAt, FileTypeDir, "", false)
	case SyncDeleteDir:
		return insertWorkspaceRevisionOnce(ctx, tx, inserted, ref.ID, workspaceID, version, createdAt, FileTypeDir, "", true)
	default:
		return fmt.Errorf("revdb: unknown sync item kind %d", item.Kind)
	}
}

// insertWorkspaceRevisionOnce inserts a workspace_file_revision row for
// filePathID unless that path has already received a row in this batch.
func insertWorkspaceRevisionOnce(ctx context.Context, tx *sql.Tx, inserted map[string]bool, filePathID, workspaceID string, version int64, createdAt string, fileType FileType, blobID string, deletedNow bool) error {
	if inserted[filePathID] {
		return nil
	}

	id, err := newID()
	if err != nil {
		return err
	}

	var blobArg, deletedArg any

	if blobID != "" {
		blobArg = blobID
	}

	if deletedNow {
		deletedArg = createdAt
	}

	_, err = tx.ExecContext(ctx, sqlInsertWorkspaceRevision, id, workspaceID, filePathID, version, blobArg, string(fileType), createdAt, deletedArg)
	if err != nil {
		return fmt.Errorf("revdb: insert workspace revision: %w", err)
	}

	inserted[filePathID] = true

	return nil
}

// GetWorkspaceChangelist returns every path's current state in a workspace's
// sync chain (the highest sync_version_number row per path).
func (s *Store) GetWorkspaceChangelist(ctx context.Context, workspaceID string) ([]ChangelistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, sqlWorkspaceChangelist, workspaceID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("revdb: get workspace changelist: %w", err)
	}
	defer rows.Close()

	var out []ChangelistItem

	for rows.Next() {
		var (
			item      ChangelistItem
			fileType  string
			blobID    sql.NullString
			deletedAt sql.NullString
			createdAt string
		)

		if err := rows.Scan(&item.Path, &fileType, &blobID, &deletedAt, &item.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("revdb: scan changelist row: %w", err)
		}

		item.FileType = FileType(fileType)
		item.BlobID = blobID.String
		item.Deleted = deletedAt.Valid

		item.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("revdb: parse changelist created_at: %w", err)
		}

		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revdb: iterate changelist rows: %w", err)
	}

	return out, nil
}

// errNoLatestRevision is an internal sentinel used by the unified-view
// helpers to signal "no row at all for this path", distinct from "found a
// row but it is deleted".
var errNoLatestRevision = errors.New("revdb: no latest revision")
