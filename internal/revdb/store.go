package revdb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// idSize is the number of random bytes in an entity id (384 bits), matching
// sagitta-remote-system-db/src/sqlite.rs's generate_id.
const idSize = 48

// walJournalSizeLimit bounds the WAL file, matching the teacher's
// setPragmas convention.
const walJournalSizeLimit = 67108864

// Store is the revision database: workspaces, blobs, interned file paths,
// per-workspace file revisions, trunk commits, and the unified read view.
// All sync state the spec describes is persisted here.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// mu serializes every public method so each one executes as a single
	// atomic unit against the connection, matching spec §5's single
	// process-wide mutex over the database.
	mu sync.Mutex
}

// NewStore opens (or creates) the revision database at dbPath, applies
// pending migrations, and returns a ready Store. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening revision database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("revdb: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("revision database ready", slog.String("path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("revdb: close: %w", err)
	}

	return nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("revdb: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// runMigrations applies every embedded goose migration, logging each one
// applied. Grounded on the teacher's migrations.go (goose.NewProvider over
// an fs.Sub'd embed.FS) — the Store itself uses the numbered-runner variant
// nowhere; goose owns schema versioning end to end.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("revdb: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("revdb: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("revdb: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// newID returns a fresh URL-safe base64 encoding of idSize random bytes,
// the entity id scheme spec §4.1 mandates for every table.
func newID() (string, error) {
	buf := make([]byte, idSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("revdb: generate id: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf), nil
}
