// Package syncengine implements Sagitta's sync pipeline: walk a workspace's
// local overlay, filter out ignored paths, upload non-ignored file contents
// as blobs, post one batched sync, then archive the overlay. Grounded on
// the teacher's internal/sync/engine.go RunOnce staged pipeline (observe →
// buffer → plan → execute), generalized here to the simpler enumerate →
// ignore-filter → upload → batch-post → archive shape spec.md §4.6 names.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	gosync "sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/overlay"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// ignoreFileName is the per-directory config consulted while building the
// ignore cache.
const ignoreFileName = ".sagitta.toml"

// uploadWorkers bounds concurrent WriteBlob calls per sync run.
const uploadWorkers = 8

// RemoteClient is the subset of remoteclient.Client the sync pipeline
// needs, defined at the consumer per the teacher's TokenSource convention.
type RemoteClient interface {
	GetFileBlobID(ctx context.Context, workspaceID *string, path []string) (string, error)
	ReadBlob(ctx context.Context, blobID string) ([]byte, error)
	WriteBlob(ctx context.Context, data []byte) (string, error)
	SyncFilesToWorkspace(ctx context.Context, workspaceID string, items []revdb.SyncItem) error
}

// Engine drives one workspace's sync pipeline over an overlay and a
// RemoteClient.
type Engine struct {
	client  RemoteClient
	overlay *overlay.Overlay
	clock   clock.Clock
	logger  *slog.Logger
}

// NewEngine returns an Engine wired to client and ov.
func NewEngine(client RemoteClient, ov *overlay.Overlay, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{client: client, overlay: ov, clock: clk, logger: logger}
}

// ignoreConfig is the parsed shape of a .sagitta.toml file.
type ignoreConfig struct {
	Ignores []string `toml:"ignores"`
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

func clonePrefix(prefix []string) []string {
	out := make([]string, len(prefix), len(prefix)+1)
	copy(out, prefix)

	return out
}

func parseIgnoreConfig(data []byte) (*ignoreConfig, error) {
	var cfg ignoreConfig

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("syncengine: parse %s: %w", ignoreFileName, err)
	}

	return &cfg, nil
}

// loadIgnoreConfig looks up .sagitta.toml in prefix, cascading overlay cow
// file → remote get_file_blob_id → remote read_blob, per spec.md §4.6 step 2.
// A nil, nil result means the prefix carries no ignore config.
func (e *Engine) loadIgnoreConfig(ctx context.Context, workspaceID string, prefix []string) (*ignoreConfig, error) {
	tomlPath := append(clonePrefix(prefix), ignoreFileName)

	isFile, err := e.overlay.CheckCowFile(workspaceID, tomlPath)
	if err != nil {
		return nil, fmt.Errorf("syncengine: check overlay for %s: %w", ignoreFileName, err)
	}

	if isFile {
		meta, err := e.overlay.LenCtimeMtime(workspaceID, tomlPath)
		if err != nil {
			return nil, fmt.Errorf("syncengine: stat overlay %s: %w", ignoreFileName, err)
		}

		data, err := e.overlay.ReadCowFile(workspaceID, tomlPath, 0, int(meta.Size))
		if err != nil {
			return nil, fmt.Errorf("syncengine: read overlay %s: %w", ignoreFileName, err)
		}

		return parseIgnoreConfig(data)
	}

	blobID, err := e.client.GetFileBlobID(ctx, &workspaceID, tomlPath)
	if err != nil {
		if errors.Is(err, revdb.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("syncengine: get_file_blob_id for %s: %w", ignoreFileName, err)
	}

	data, err := e.client.ReadBlob(ctx, blobID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: read_blob for %s: %w", ignoreFileName, err)
	}

	return parseIgnoreConfig(data)
}

// ignoreCache memoizes loadIgnoreConfig by prefix path for the duration of
// one sync run.
type ignoreCache struct {
	entries map[string]*ignoreConfig
}

func newIgnoreCache() *ignoreCache {
	return &ignoreCache{entries: map[string]*ignoreConfig{}}
}

func (e *Engine) ignoreConfigAt(ctx context.Context, workspaceID string, prefix []string, cache *ignoreCache) (*ignoreConfig, error) {
	key := pathKey(prefix)

	if cfg, ok := cache.entries[key]; ok {
		return cfg, nil
	}

	cfg, err := e.loadIgnoreConfig(ctx, workspaceID, prefix)
	if err != nil {
		return nil, err
	}

	cache.entries[key] = cfg

	return cfg, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// isIgnored reports whether path is ignored: for any ancestor prefix P of
// path (including the root), any ignore string in P's config equals any
// path component strictly below P.
func (e *Engine) isIgnored(ctx context.Context, workspaceID string, path []string, cache *ignoreCache) (bool, error) {
	for i := 0; i < len(path); i++ {
		cfg, err := e.ignoreConfigAt(ctx, workspaceID, path[:i], cache)
		if err != nil {
			return false, err
		}

		if cfg == nil {
			continue
		}

		for _, comp := range path[i:] {
			if containsString(cfg.Ignores, comp) {
				return true, nil
			}
		}
	}

	return false, nil
}

// uploadAll reads and writes every candidate path's contents as a blob
// through a bounded worker pool, grounded on the teacher's
// TransferManager.dispatchPool. The first error cancels remaining workers.
func (e *Engine) uploadAll(ctx context.Context, workspaceID string, candidates [][]string) ([]revdb.SyncItem, [][]string, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)

	var mu gosync.Mutex

	items := make([]revdb.SyncItem, 0, len(candidates))
	syncedPaths := make([][]string, 0, len(candidates))

	for _, path := range candidates {
		path := path

		g.Go(func() error {
			meta, err := e.overlay.LenCtimeMtime(workspaceID, path)
			if err != nil {
				return fmt.Errorf("syncengine: stat %s: %w", strings.Join(path, "/"), err)
			}

			data, err := e.overlay.ReadCowFile(workspaceID, path, 0, int(meta.Size))
			if err != nil {
				return fmt.Errorf("syncengine: read %s: %w", strings.Join(path, "/"), err)
			}

			blobID, err := e.client.WriteBlob(gctx, data)
			if err != nil {
				return fmt.Errorf("syncengine: write_blob for %s: %w", strings.Join(path, "/"), err)
			}

			mu.Lock()
			items = append(items, revdb.SyncItem{Kind: revdb.SyncUpsertFile, Path: path, BlobID: blobID})
			syncedPaths = append(syncedPaths, path)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return items, syncedPaths, nil
}

// Run executes spec.md §4.6's sync algorithm for workspaceID, returning the
// sorted list of upserted paths as path-component slices.
func (e *Engine) Run(ctx context.Context, workspaceID string) ([][]string, error) {
	runID := uuid.New().String()
	logger := e.logger.With(slog.String("run_id", runID), slog.String("workspace_id", workspaceID))
	logger.Info("sync started")

	files, err := e.overlay.ListCowFiles(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: list cow files: %w", err)
	}

	cache := newIgnoreCache()

	var candidates [][]string

	for _, path := range files {
		ignored, err := e.isIgnored(ctx, workspaceID, path, cache)
		if err != nil {
			return nil, err
		}

		if ignored {
			continue
		}

		candidates = append(candidates, path)
	}

	items, syncedPaths, err := e.uploadAll(ctx, workspaceID, candidates)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := e.client.SyncFilesToWorkspace(ctx, workspaceID, items); err != nil {
			return nil, fmt.Errorf("syncengine: sync_files_to_workspace: %w", err)
		}
	}

	if err := e.overlay.ArchiveCowDir(workspaceID, syncedPaths, e.clock.Now()); err != nil {
		return nil, fmt.Errorf("syncengine: archive cow dir: %w", err)
	}

	sort.Slice(syncedPaths, func(i, j int) bool {
		return strings.Join(syncedPaths[i], "/") < strings.Join(syncedPaths[j], "/")
	})

	logger.Info("sync complete", slog.Int("files", len(syncedPaths)))

	return syncedPaths, nil
}
