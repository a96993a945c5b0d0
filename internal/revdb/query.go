package revdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	sqlLatestWorkspaceRevisionForPath = `SELECT blob_id, file_type, created_at, deleted_at
		FROM workspace_file_revision
		WHERE workspace_id = ? AND file_path_id = ?
		ORDER BY sync_version_number DESC LIMIT 1`

	sqlLatestTrunkRevisionForPath = `SELECT blob_id, file_type, created_at, deleted_at
		FROM trunk_file_revision
		WHERE file_path_id = ?
		ORDER BY commit_rank DESC LIMIT 1`

	sqlChildrenTrunkLatest = `SELECT fp.id, fp.name, tfr.file_type, tfr.blob_id, tfr.deleted_at, tfr.created_at, b.size
		FROM trunk_file_revision tfr
		JOIN file_path fp ON fp.id = tfr.file_path_id
		LEFT JOIN blob b ON b.id = tfr.blob_id
		JOIN (
			SELECT file_path_id, MAX(commit_rank) AS max_rank
			FROM trunk_file_revision
			GROUP BY file_path_id
		) latest ON latest.file_path_id = tfr.file_path_id AND latest.max_rank = tfr.commit_rank
		WHERE fp.parent = ?`

	sqlChildrenWorkspaceLatest = `SELECT fp.id, fp.name, wfr.file_type, wfr.blob_id, wfr.deleted_at, wfr.created_at, b.size
		FROM workspace_file_revision wfr
		JOIN file_path fp ON fp.id = wfr.file_path_id
		LEFT JOIN blob b ON b.id = wfr.blob_id
		JOIN (
			SELECT file_path_id, MAX(sync_version_number) AS max_version
			FROM workspace_file_revision
			WHERE workspace_id = ?
			GROUP BY file_path_id
		) latest ON latest.file_path_id = wfr.file_path_id AND latest.max_version = wfr.sync_version_number
		WHERE wfr.workspace_id = ? AND fp.parent = ?`
)

// revisionRow is the shared shape of a latest workspace or trunk revision
// row, used by the three-layer lookup helpers below.
type revisionRow struct {
	BlobID    sql.NullString
	FileType  FileType
	CreatedAt string
	Deleted   bool
}

// latestWorkspaceRevision returns the highest-version workspace revision for
// filePathID, or errNoLatestRevision if the path has never been referenced
// in this workspace's sync chain.
func latestWorkspaceRevision(ctx context.Context, q querier, workspaceID, filePathID string) (revisionRow, error) {
	var (
		row      revisionRow
		fileType string
		deleted  sql.NullString
	)

	err := q.QueryRowContext(ctx, sqlLatestWorkspaceRevisionForPath, workspaceID, filePathID).
		Scan(&row.BlobID, &fileType, &row.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return revisionRow{}, errNoLatestRevision
	}

	if err != nil {
		return revisionRow{}, fmt.Errorf("revdb: latest workspace revision: %w", err)
	}

	row.FileType = FileType(fileType)
	row.Deleted = deleted.Valid

	return row, nil
}

// latestTrunkRevision returns the highest-rank trunk revision for
// filePathID, or errNoLatestRevision if the path was never committed.
func latestTrunkRevision(ctx context.Context, q querier, filePathID string) (revisionRow, error) {
	var (
		row      revisionRow
		fileType string
		deleted  sql.NullString
	)

	err := q.QueryRowContext(ctx, sqlLatestTrunkRevisionForPath, filePathID).
		Scan(&row.BlobID, &fileType, &row.CreatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return revisionRow{}, errNoLatestRevision
	}

	if err != nil {
		return revisionRow{}, fmt.Errorf("revdb: latest trunk revision: %w", err)
	}

	row.FileType = FileType(fileType)
	row.Deleted = deleted.Valid

	return row, nil
}

// resolvePath is the shared three-layer lookup behind GetAttr and
// GetFileBlobID: workspace (if given) shadows trunk entirely — present and
// live wins, present and deleted means NotFound outright, and only an
// absent workspace row falls through to trunk.
func resolvePath(ctx context.Context, q querier, workspaceID *string, filePathID string) (revisionRow, error) {
	if workspaceID != nil {
		row, err := latestWorkspaceRevision(ctx, q, *workspaceID, filePathID)
		if err == nil {
			if row.Deleted {
				return revisionRow{}, ErrNotFound
			}

			return row, nil
		}

		if !errors.Is(err, errNoLatestRevision) {
			return revisionRow{}, err
		}
	}

	row, err := latestTrunkRevision(ctx, q, filePathID)
	if err != nil {
		if errors.Is(err, errNoLatestRevision) {
			return revisionRow{}, ErrNotFound
		}

		return revisionRow{}, err
	}

	if row.Deleted {
		return revisionRow{}, ErrNotFound
	}

	return row, nil
}

// GetAttr resolves a path's type, size, and modification time in the
// requested view (workspace-shadows-trunk if workspaceID is given, trunk
// only otherwise).
func (s *Store) GetAttr(ctx context.Context, workspaceID *string, path []string) (Attr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePathID, err := s.resolveFilePathID(ctx, path)
	if err != nil {
		return Attr{}, err
	}

	row, err := resolvePath(ctx, s.db, workspaceID, filePathID)
	if err != nil {
		return Attr{}, err
	}

	attr := Attr{FileType: row.FileType}

	attr.ModifiedAt, err = parseTime(row.CreatedAt)
	if err != nil {
		return Attr{}, fmt.Errorf("revdb: get attr: parse created_at: %w", err)
	}

	if row.BlobID.Valid {
		size, err := s.blobSizeLocked(ctx, row.BlobID.String)
		if err != nil {
			return Attr{}, err
		}

		attr.Size = size
	}

	return attr, nil
}

// GetFileBlobID resolves a path to the blob id of its current revision. A
// revision whose blob_id is null (a directory, or any row with no content)
// yields ErrNotFound.
func (s *Store) GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePathID, err := s.resolveFilePathID(ctx, path)
	if err != nil {
		return "", err
	}

	row, err := resolvePath(ctx, s.db, workspaceID, filePathID)
	if err != nil {
		return "", err
	}

	if !row.BlobID.Valid {
		return "", ErrNotFound
	}

	return row.BlobID.String, nil
}

// ReadDir lists the live entries directly under path in the unified view,
// workspace entries shadowing trunk entries of the same name.
func (s *Store) ReadDir(ctx context.Context, workspaceID *string, path []string, includeDeleted bool) ([]DirEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID := rootFilePathID

	if len(path) > 0 {
		id, found, err := lookupFilePath(ctx, s.db, path)
		if err != nil {
			return nil, err
		}

		if !found {
			return nil, ErrNotFound
		}

		row, err := resolvePath(ctx, s.db, workspaceID, id)
		if err != nil {
			return nil, err
		}

		if row.FileType != FileTypeDir {
			return nil, ErrNotFound
		}

		parentID = id
	}

	entries := make(map[string]DirEntry)

	trunkRows, err := s.db.QueryContext(ctx, sqlChildrenTrunkLatest, parentID)
	if err != nil {
		return nil, fmt.Errorf("revdb: read dir: trunk children: %w", err)
	}

	if err := scanChildRows(trunkRows, entries); err != nil {
		return nil, err
	}

	if workspaceID != nil {
		wsRows, err := s.db.QueryContext(ctx, sqlChildrenWorkspaceLatest, *workspaceID, *workspaceID, parentID)
		if err != nil {
			return nil, fmt.Errorf("revdb: read dir: workspace children: %w", err)
		}

		if err := scanChildRows(wsRows, entries); err != nil {
			return nil, err
		}
	}

	out := make([]DirEntry, 0, len(entries))

	for _, e := range entries {
		if e.Deleted && !includeDeleted {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

// scanChildRows scans one side (trunk or workspace) of a ReadDir query into
// entries, keyed by name so the workspace pass naturally overwrites trunk.
func scanChildRows(rows *sql.Rows, entries map[string]DirEntry) error {
	defer rows.Close()

	for rows.Next() {
		var (
			id, name, fileType string
			blobID, deletedAt  sql.NullString
			createdAt          string
			size               sql.NullInt64
		)

		if err := rows.Scan(&id, &name, &fileType, &blobID, &deletedAt, &createdAt, &size); err != nil {
			return fmt.Errorf("revdb: read dir: scan child row: %w", err)
		}

		entry := DirEntry{
			Name:     name,
			FileType: FileType(fileType),
			Deleted:  deletedAt.Valid,
			Size:     size.Int64,
		}

		var err error

		entry.ModifiedAt, err = parseTime(createdAt)
		if err != nil {
			return fmt.Errorf("revdb: read dir: parse created_at: %w", err)
		}

		entries[name] = entry
	}

	return rows.Err()
}

// resolveFilePathID looks up an already-interned path id, or ErrNotFound if
// it was never referenced.
func (s *Store) resolveFilePathID(ctx context.Context, path []string) (string, error) {
	if len(path) == 0 {
		return rootFilePathID, nil
	}

	id, found, err := lookupFilePath(ctx, s.db, path)
	if err != nil {
		return "", err
	}

	if !found {
		return "", ErrNotFound
	}

	return id, nil
}

// blobSizeLocked reads a blob's size by id. Callers must already hold s.mu.
func (s *Store) blobSizeLocked(ctx context.Context, blobID string) (int64, error) {
	var size int64

	err := s.db.QueryRowContext(ctx, `SELECT size FROM blob WHERE id = ?`, blobID).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("revdb: read blob size %s: %w", blobID, err)
	}

	return size, nil
}
