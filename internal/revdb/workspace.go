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
	sqlInsertWorkspace = `INSERT INTO workspace (id, name, created_at) VALUES (?, ?, ?)`

	sqlGetWorkspaces = `SELECT id, name, created_at, deleted_at FROM workspace`

	sqlGetWorkspacesLive = sqlGetWorkspaces + ` WHERE deleted_at IS NULL`

	sqlDeleteWorkspace = `UPDATE workspace SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	sqlGetWorkspaceIDFromName = `SELECT id FROM workspace WHERE name = ? AND deleted_at IS NULL`
)

// CreateWorkspace inserts a new workspace row with the current time. It does
// not reject duplicate names; callers enforce uniqueness with GetWorkspaces.
func (s *Store) CreateWorkspace(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := newID()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, sqlInsertWorkspace, id, name, formatTime(now))
	if err != nil {
		return "", fmt.Errorf("revdb: create workspace %q: %w", name, err)
	}

	s.logger.Info("created workspace", slog.String("id", id), slog.String("name", name))

	return id, nil
}

// GetWorkspaces returns every workspace, optionally including soft-deleted
// ones.
func (s *Store) GetWorkspaces(ctx context.Context, containsDeleted bool) ([]Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := sqlGetWorkspacesLive
	if containsDeleted {
		query = sqlGetWorkspaces
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("revdb: get workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace

	for rows.Next() {
		var (
			w         Workspace
			createdAt string
			deletedAt sql.NullString
		)

		if err := rows.Scan(&w.ID, &w.Name, &createdAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("revdb: scan workspace row: %w", err)
		}

		w.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("revdb: parse workspace created_at: %w", err)
		}

		if deletedAt.Valid {
			t, err := parseTime(deletedAt.String)
			if err != nil {
				return nil, fmt.Errorf("revdb: parse workspace deleted_at: %w", err)
			}

			w.DeletedAt = &t
		}

		out = append(out, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revdb: iterate workspace rows: %w", err)
	}

	return out, nil
}

// DeleteWorkspace soft-deletes a workspace by id. Returns ErrWorkspaceNotFound
// if no live row matched.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWorkspaceLocked(ctx, id)
}

func (s *Store) deleteWorkspaceLocked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteWorkspace, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("revdb: delete workspace %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revdb: delete workspace %s: rows affected: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("revdb: delete workspace %s: %w", id, ErrWorkspaceNotFound)
	}

	s.logger.Info("deleted workspace", slog.String("id", id))

	return nil
}

// WorkspaceLookupResult reports whether GetWorkspaceIDFromName found a live
// workspace for the given name.
type WorkspaceLookupResult struct {
	Found       bool
	WorkspaceID string
}

// GetWorkspaceIDFromName resolves a workspace name to its id, considering
// only non-deleted workspaces.
func (s *Store) GetWorkspaceIDFromName(ctx context.Context, name string) (WorkspaceLookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string

	err := s.db.QueryRowContext(ctx, sqlGetWorkspaceIDFromName, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkspaceLookupResult{}, nil
	}

	if err != nil {
		return WorkspaceLookupResult{}, fmt.Errorf("revdb: get workspace id from name %q: %w", name, err)
	}

	return WorkspaceLookupResult{Found: true, WorkspaceID: id}, nil
}

// formatTime renders a timestamp as RFC3339, the TEXT column format spec
// §4 mandates for every created_at/deleted_at.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
