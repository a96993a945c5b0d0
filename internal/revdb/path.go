package revdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	sqlGetFilePathByPath = `SELECT id, parent FROM file_path WHERE path = ?`

	sqlInsertFilePath = `INSERT INTO file_path (id, name, path, parent) VALUES (?, ?, ?, ?)`
)

// rootFilePathID is the id of the path interned during migration for the
// empty (root) path.
const rootFilePathID = "root"

// FilePathRef is the result of interning a path: its id and the id of its
// parent (empty for root).
type FilePathRef struct {
	ID     string
	Parent string
}

// GetOrCreateFilePath interns the given path, recursively interning every
// missing ancestor first. segments is the path split into components
// (e.g. ["dir", "file.txt"]); an empty slice refers to root and is rejected
// per spec §4.1 ("fails on empty path" — GetOrCreateFilePath is never called
// for root itself, root is seeded by migration).
func (s *Store) GetOrCreateFilePath(ctx context.Context, segments []string) (FilePathRef, error) {
	if len(segments) == 0 {
		return FilePathRef{}, ErrEmptyPath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FilePathRef{}, fmt.Errorf("revdb: get or create file path: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ref, err := internFilePath(ctx, tx, segments)
	if err != nil {
		return FilePathRef{}, err
	}

	if err := tx.Commit(); err != nil {
		return FilePathRef{}, fmt.Errorf("revdb: get or create file path: commit: %w", err)
	}

	return ref, nil
}

// internFilePath looks up segments' joined path; if absent, it interns every
// strict ancestor first (root is always present from migration), then
// inserts the leaf referencing its immediate parent.
func internFilePath(ctx context.Context, tx *sql.Tx, segments []string) (FilePathRef, error) {
	path := strings.Join(segments, "/")

	var (
		id     string
		parent sql.NullString
	)

	err := tx.QueryRowContext(ctx, sqlGetFilePathByPath, path).Scan(&id, &parent)
	if err == nil {
		return FilePathRef{ID: id, Parent: parent.String}, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return FilePathRef{}, fmt.Errorf("revdb: intern file path %q: %w", path, err)
	}

	parentID := rootFilePathID

	if len(segments) > 1 {
		parentRef, err := internFilePath(ctx, tx, segments[:len(segments)-1])
		if err != nil {
			return FilePathRef{}, err
		}

		parentID = parentRef.ID
	}

	newPathID, err := newID()
	if err != nil {
		return FilePathRef{}, err
	}

	leaf := segments[len(segments)-1]

	if _, err := tx.ExecContext(ctx, sqlInsertFilePath, newPathID, leaf, path, parentID); err != nil {
		return FilePathRef{}, fmt.Errorf("revdb: intern file path %q: insert: %w", path, err)
	}

	return FilePathRef{ID: newPathID, Parent: parentID}, nil
}

// lookupFilePath returns the id of an already-interned path, or
// (found=false) if it has never been referenced.
func lookupFilePath(ctx context.Context, q querier, segments []string) (id string, found bool, err error) {
	path := strings.Join(segments, "/")

	err = q.QueryRowContext(ctx, `SELECT id FROM file_path WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("revdb: lookup file path %q: %w", path, err)
	}

	return id, true, nil
}
