package revdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

const (
	sqlSearchBlobByHash = `SELECT id, size FROM blob WHERE hash = ?`

	sqlInsertBlob = `INSERT INTO blob (id, hash, size) VALUES (?, ?, ?)`
)

// BlobLookupResult reports whether SearchBlobByHash found a blob, and if so
// its id and size.
type BlobLookupResult struct {
	Found bool
	ID    string
	Size  int64
}

// SearchBlobByHash looks up a blob purely by its content hash.
func (s *Store) SearchBlobByHash(ctx context.Context, hash string) (BlobLookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.searchBlobByHashLocked(ctx, s.db, hash)
}

func (s *Store) searchBlobByHashLocked(ctx context.Context, q querier, hash string) (BlobLookupResult, error) {
	var (
		id   string
		size int64
	)

	err := q.QueryRowContext(ctx, sqlSearchBlobByHash, hash).Scan(&id, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return BlobLookupResult{}, nil
	}

	if err != nil {
		return BlobLookupResult{}, fmt.Errorf("revdb: search blob by hash: %w", err)
	}

	return BlobLookupResult{Found: true, ID: id, Size: size}, nil
}

// BlobCreateResult reports whether CreateOrGetBlob allocated a fresh blob
// row (Created) or reused an existing one with the same hash (Found).
type BlobCreateResult struct {
	Created bool
	ID      string
}

// CreateOrGetBlob looks up a blob by hash; if absent, allocates a fresh id
// and inserts it. The whole operation runs in one transaction so concurrent
// callers racing on the same hash cannot both observe "absent".
func (s *Store) CreateOrGetBlob(ctx context.Context, hash string, size int64) (BlobCreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BlobCreateResult{}, fmt.Errorf("revdb: create or get blob: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	existing, err := s.searchBlobByHashLocked(ctx, tx, hash)
	if err != nil {
		return BlobCreateResult{}, err
	}

	if existing.Found {
		if err := tx.Commit(); err != nil {
			return BlobCreateResult{}, fmt.Errorf("revdb: create or get blob: commit: %w", err)
		}

		return BlobCreateResult{Created: false, ID: existing.ID}, nil
	}

	id, err := newID()
	if err != nil {
		return BlobCreateResult{}, err
	}

	if _, err := tx.ExecContext(ctx, sqlInsertBlob, id, hash, size); err != nil {
		return BlobCreateResult{}, fmt.Errorf("revdb: create or get blob: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return BlobCreateResult{}, fmt.Errorf("revdb: create or get blob: commit: %w", err)
	}

	s.logger.Info("created blob", slog.String("id", id), slog.String("hash", hash), slog.Int64("size", size))

	return BlobCreateResult{Created: true, ID: id}, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting lookup helpers
// run either standalone or inside a caller's transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
