package revdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	sqlMaxCommitRank = `SELECT COALESCE(MAX(commit_rank), 0) FROM commit_`

	sqlInsertCommit = `INSERT INTO commit_ (id, commit_rank, created_at) VALUES (?, ?, ?)`

	sqlWorkspaceLatestRevisions = `SELECT fp.id, wfr.blob_id, wfr.file_type, wfr.created_at, wfr.deleted_at
		FROM workspace_file_revision wfr
		JOIN file_path fp ON fp.id = wfr.file_path_id
		JOIN (
			SELECT file_path_id, MAX(sync_version_number) AS max_version
			FROM workspace_file_revision
			WHERE workspace_id = ?
			GROUP BY file_path_id
		) latest ON latest.file_path_id = wfr.file_path_id AND latest.max_version = wfr.sync_version_number
		WHERE wfr.workspace_id = ?`

	sqlInsertTrunkRevision = `INSERT INTO trunk_file_revision
		(id, file_path_id, commit_id, commit_rank, blob_id, file_type, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlTrunkLatest = `SELECT fp.path, tfr.file_type, tfr.blob_id, tfr.deleted_at, tfr.created_at, b.size
		FROM trunk_file_revision tfr
		JOIN file_path fp ON fp.id = tfr.file_path_id
		LEFT JOIN blob b ON b.id = tfr.blob_id
		JOIN (
			SELECT file_path_id, MAX(commit_rank) AS max_rank
			FROM trunk_file_revision
			GROUP BY file_path_id
		) latest ON latest.file_path_id = tfr.file_path_id AND latest.max_rank = tfr.commit_rank`

	sqlCommitHistory = `SELECT id, commit_rank, created_at FROM commit_ WHERE id != 'genesis' ORDER BY commit_rank DESC LIMIT ?`
)

// Commit promotes workspaceID's latest per-path revisions into trunk at a
// fresh global commit_rank, then soft-deletes the workspace. Rejects with
// ErrWorkspaceNotFound if the workspace is already deleted (the §9 Open
// Question "second commit on an already-committed workspace" is resolved
// this way: the same deleted_at IS NULL guard DeleteWorkspace uses).
func (s *Store) Commit(ctx context.Context, workspaceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("revdb: commit: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var liveCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspace WHERE id = ? AND deleted_at IS NULL`, workspaceID).Scan(&liveCount); err != nil {
		return "", fmt.Errorf("revdb: commit: check workspace live: %w", err)
	}

	if liveCount == 0 {
		return "", fmt.Errorf("revdb: commit %s: %w", workspaceID, ErrWorkspaceNotFound)
	}

	var maxRank int64
	if err := tx.QueryRowContext(ctx, sqlMaxCommitRank).Scan(&maxRank); err != nil {
		return "", fmt.Errorf("revdb: commit: max rank: %w", err)
	}

	rank := maxRank + 1

	commitID, err := newID()
	if err != nil {
		return "", err
	}

	now := formatTime(time.Now().UTC())

	rows, err := tx.QueryContext(ctx, sqlWorkspaceLatestRevisions, workspaceID, workspaceID)
	if err != nil {
		return "", fmt.Errorf("revdb: commit: read workspace revisions: %w", err)
	}

	type promoted struct {
		filePathID string
		blobID     sql.NullString
		fileType   string
		createdAt  string
		deletedAt  sql.NullString
	}

	var toPromote []promoted

	for rows.Next() {
		var p promoted
		if err := rows.Scan(&p.filePathID, &p.blobID, &p.fileType, &p.createdAt, &p.deletedAt); err != nil {
			rows.Close()
			return "", fmt.Errorf("revdb: commit: scan workspace revision: %w", err)
		}

		toPromote = append(toPromote, p)
	}

	if err := rows.Err(); err != nil {
		rows.Close()
		return "", fmt.Errorf("revdb: commit: iterate workspace revisions: %w", err)
	}

	rows.Close()

	if _, err := tx.ExecContext(ctx, sqlInsertCommit, commitID, rank, now); err != nil {
		return "", fmt.Errorf("revdb: commit: insert commit row: %w", err)
	}

	for _, p := range toPromote {
		// §9 Open Question 1, resolved as (a): a fresh id per copied row,
		// rather than reusing commitID as every row's primary key.
		rowID, err := newID()
		if err != nil {
			return "", err
		}

		var blobArg, deletedArg any

		if p.blobID.Valid {
			blobArg = p.blobID.String
		}

		if p.deletedAt.Valid {
			deletedArg = p.deletedAt.String
		}

		_, err = tx.ExecContext(ctx, sqlInsertTrunkRevision, rowID, p.filePathID, commitID, rank, blobArg, p.fileType, p.createdAt, deletedArg)
		if err != nil {
			return "", fmt.Errorf("revdb: commit: insert trunk revision: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteWorkspace, now, workspaceID); err != nil {
		return "", fmt.Errorf("revdb: commit: soft-delete workspace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("revdb: commit: commit tx: %w", err)
	}

	s.logger.Info("committed workspace",
		slog.String("workspace_id", workspaceID),
		slog.String("commit_id", commitID),
		slog.Int64("commit_rank", rank),
		slog.Int("promoted_paths", len(toPromote)),
	)

	return commitID, nil
}

// GetAllTrunkFiles returns the latest-rank-per-path view over trunk, deleted
// entries included.
func (s *Store) GetAllTrunkFiles(ctx context.Context) ([]TrunkFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, sqlTrunkLatest)
	if err != nil {
		return nil, fmt.Errorf("revdb: get all trunk files: %w", err)
	}
	defer rows.Close()

	var out []TrunkFile

	for rows.Next() {
		var (
			tf        TrunkFile
			fileType  string
			blobID    sql.NullString
			deletedAt sql.NullString
			createdAt string
			size      sql.NullInt64
		)

		if err := rows.Scan(&tf.Path, &fileType, &blobID, &deletedAt, &createdAt, &size); err != nil {
			return nil, fmt.Errorf("revdb: scan trunk file row: %w", err)
		}

		tf.FileType = FileType(fileType)
		tf.BlobID = blobID.String
		tf.Size = size.Int64
		tf.Deleted = deletedAt.Valid

		tf.ModifiedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("revdb: parse trunk file created_at: %w", err)
		}

		out = append(out, tf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revdb: iterate trunk file rows: %w", err)
	}

	return out, nil
}

// GetCommitHistory returns up to take commits, newest (highest commit_rank)
// first. The genesis commit (rank 0) is never returned.
func (s *Store) GetCommitHistory(ctx context.Context, take int) ([]CommitHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, sqlCommitHistory, take)
	if err != nil {
		return nil, fmt.Errorf("revdb: get commit history: %w", err)
	}
	defer rows.Close()

	var out []CommitHistoryItem

	for rows.Next() {
		var (
			item      CommitHistoryItem
			createdAt string
		)

		if err := rows.Scan(&item.CommitID, &item.CommitRank, &createdAt); err != nil {
			return nil, fmt.Errorf("revdb: scan commit history row: %w", err)
		}

		item.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("revdb: parse commit created_at: %w", err)
		}

		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revdb: iterate commit history rows: %w", err)
	}

	return out, nil
}
