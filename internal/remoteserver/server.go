package remoteserver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tonimelisma/onedrive-go/internal/blobstore"
	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

// Server is the Remote Server façade: thin HTTP handlers over a revdb.Store
// and a blobstore.Store. It is stateless across requests — all state lives
// in those two components.
type Server struct {
	store  *revdb.Store
	blobs  *blobstore.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewServer returns a Server wrapping store and blobs.
func NewServer(store *revdb.Store, blobs *blobstore.Store, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{store: store, blobs: blobs, clock: clk, logger: logger}
}

// Router builds the chi route tree for every operation in spec.md §6.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/v2", func(r chi.Router) {
		r.Post("/create-workspace", s.handleCreateWorkspace)
		r.Post("/get-workspaces", s.handleGetWorkspaces)
		r.Post("/get-workspace-id-from-name", s.handleGetWorkspaceIDFromName)
		r.Post("/delete-workspace", s.handleDeleteWorkspace)
		r.Post("/write-blob", s.handleWriteBlob)
		r.Post("/read-blob", s.handleReadBlob)
		r.Post("/get-file-blob-id", s.handleGetFileBlobID)
		r.Post("/read-dir", s.handleReadDir)
		r.Post("/get-attr", s.handleGetAttr)
		r.Post("/sync-files-with-workspace", s.handleSyncFilesWithWorkspace)
		r.Post("/commit", s.handleCommit)
		r.Post("/get-commit-history", s.handleGetCommitHistory)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but note it happened.
		_ = err
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("remoteserver: decode request body: %w", err)
	}

	return nil
}

func trunkOrWorkspacePermission(workspaceID *string, isDir bool) uint32 {
	switch {
	case workspaceID == nil && isDir:
		return 0o555
	case workspaceID == nil && !isDir:
		return 0o444
	case workspaceID != nil && isDir:
		return 0o755
	default:
		return 0o644
	}
}

// handleCreateWorkspace enforces name uniqueness on top of the DB's
// create_workspace, which by itself accepts duplicates (spec §4.1 puts the
// uniqueness check on the caller).
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, CreateWorkspaceResponse{})
		return
	}

	existing, err := s.store.GetWorkspaceIDFromName(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("create workspace lookup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, CreateWorkspaceResponse{})

		return
	}

	if existing.Found {
		writeJSON(w, http.StatusOK, CreateWorkspaceResponse{AlreadyExists: true})
		return
	}

	id, err := s.store.CreateWorkspace(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("create workspace failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, CreateWorkspaceResponse{})

		return
	}

	writeJSON(w, http.StatusOK, CreateWorkspaceResponse{ID: id})
}

func (s *Server) handleGetWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.store.GetWorkspaces(r.Context(), false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GetWorkspacesResponse{Err: "internal"})
		return
	}

	items := make([]WorkspaceSummary, 0, len(workspaces))
	for _, ws := range workspaces {
		items = append(items, WorkspaceSummary{ID: ws.ID, Name: ws.Name})
	}

	writeJSON(w, http.StatusOK, GetWorkspacesResponse{Items: items})
}

func (s *Server) handleGetWorkspaceIDFromName(w http.ResponseWriter, r *http.Request) {
	var req GetWorkspaceIDFromNameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, GetWorkspaceIDFromNameResponse{})
		return
	}

	res, err := s.store.GetWorkspaceIDFromName(r.Context(), req.WorkspaceName)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GetWorkspaceIDFromNameResponse{})
		return
	}

	writeJSON(w, http.StatusOK, GetWorkspaceIDFromNameResponse{Found: res.Found, WorkspaceID: res.WorkspaceID})
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	var req DeleteWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, DeleteWorkspaceResponse{Err: "bad request"})
		return
	}

	if err := s.store.DeleteWorkspace(r.Context(), req.WorkspaceID); err != nil {
		if errors.Is(err, revdb.ErrWorkspaceNotFound) {
			writeJSON(w, http.StatusOK, DeleteWorkspaceResponse{Err: "workspace_not_found"})
			return
		}

		s.logger.Error("delete workspace failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, DeleteWorkspaceResponse{Err: "internal"})

		return
	}

	writeJSON(w, http.StatusOK, DeleteWorkspaceResponse{})
}

// handleWriteBlob hashes the payload, calls CreateOrGetBlob, and only
// writes bytes to the Blob Store when the DB reports Created — the dedup
// contract spec.md §4.4 mandates.
func (s *Server) handleWriteBlob(w http.ResponseWriter, r *http.Request) {
	var req WriteBlobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, WriteBlobResponse{})
		return
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])

	res, err := s.store.CreateOrGetBlob(r.Context(), hash, int64(len(req.Data)))
	if err != nil {
		s.logger.Error("create or get blob failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, WriteBlobResponse{})

		return
	}

	if res.Created {
		if err := s.blobs.Write(res.ID, req.Data); err != nil {
			s.logger.Error("blob store write failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, WriteBlobResponse{})

			return
		}
	}

	writeJSON(w, http.StatusOK, WriteBlobResponse{BlobID: res.ID})
}

func (s *Server) handleReadBlob(w http.ResponseWriter, r *http.Request) {
	var req ReadBlobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ReadBlobResponse{})
		return
	}

	exists, err := s.blobs.Exists(req.BlobID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ReadBlobResponse{})
		return
	}

	if !exists {
		writeJSON(w, http.StatusOK, ReadBlobResponse{Found: false})
		return
	}

	data, err := s.blobs.Read(req.BlobID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ReadBlobResponse{})
		return
	}

	writeJSON(w, http.StatusOK, ReadBlobResponse{Found: true, Blob: data})
}

func (s *Server) handleGetFileBlobID(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, GetFileBlobIDResponse{})
		return
	}

	blobID, err := s.store.GetFileBlobID(r.Context(), req.WorkspaceID, req.Path)
	if errors.Is(err, revdb.ErrNotFound) {
		writeJSON(w, http.StatusOK, GetFileBlobIDResponse{Found: false})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GetFileBlobIDResponse{})
		return
	}

	writeJSON(w, http.StatusOK, GetFileBlobIDResponse{Found: true, BlobID: blobID})
}

func (s *Server) handleReadDir(w http.ResponseWriter, r *http.Request) {
	var req ReadDirRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ReadDirResponse{})
		return
	}

	entries, err := s.store.ReadDir(r.Context(), req.WorkspaceID, req.Path, req.IncludeDeleted)
	if errors.Is(err, revdb.ErrNotFound) {
		writeJSON(w, http.StatusOK, ReadDirResponse{Found: false})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ReadDirResponse{})
		return
	}

	items := make([]ReadDirEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, ReadDirEntry{
			Name:       e.Name,
			IsDir:      e.FileType == revdb.FileTypeDir,
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, ReadDirResponse{Found: true, Items: items})
}

func (s *Server) handleGetAttr(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, GetAttrResponse{})
		return
	}

	attr, err := s.store.GetAttr(r.Context(), req.WorkspaceID, req.Path)
	if errors.Is(err, revdb.ErrNotFound) {
		writeJSON(w, http.StatusOK, GetAttrResponse{Found: false})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GetAttrResponse{})
		return
	}

	isDir := attr.FileType == revdb.FileTypeDir

	writeJSON(w, http.StatusOK, GetAttrResponse{
		Found:      true,
		IsDir:      isDir,
		Size:       attr.Size,
		ModifiedAt: attr.ModifiedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Permission: trunkOrWorkspacePermission(req.WorkspaceID, isDir),
	})
}

func syncItemsFromWire(items []SyncItemWire) ([]revdb.SyncItem, error) {
	out := make([]revdb.SyncItem, 0, len(items))

	for _, it := range items {
		var kind revdb.SyncItemKind

		switch it.Kind {
		case "upsert_file":
			kind = revdb.SyncUpsertFile
		case "upsert_dir":
			kind = revdb.SyncUpsertDir
		case "delete_file":
			kind = revdb.SyncDeleteFile
		case "delete_dir":
			kind = revdb.SyncDeleteDir
		default:
			return nil, fmt.Errorf("remoteserver: unknown sync item kind %q", it.Kind)
		}

		out = append(out, revdb.SyncItem{Kind: kind, Path: it.FilePath, BlobID: it.BlobID})
	}

	return out, nil
}

func (s *Server) handleSyncFilesWithWorkspace(w http.ResponseWriter, r *http.Request) {
	var req SyncFilesWithWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, SyncFilesWithWorkspaceResponse{Err: "bad request"})
		return
	}

	items, err := syncItemsFromWire(req.Items)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SyncFilesWithWorkspaceResponse{Err: err.Error()})
		return
	}

	if err := s.store.SyncFilesToWorkspace(r.Context(), req.WorkspaceID, items, s.clock.Now()); err != nil {
		s.logger.Error("sync files to workspace failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, SyncFilesWithWorkspaceResponse{Err: "internal"})

		return
	}

	writeJSON(w, http.StatusOK, SyncFilesWithWorkspaceResponse{})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, CommitResponse{Err: "bad request"})
		return
	}

	commitID, err := s.store.Commit(r.Context(), req.WorkspaceID)
	if errors.Is(err, revdb.ErrWorkspaceNotFound) {
		writeJSON(w, http.StatusOK, CommitResponse{Err: "workspace_not_found"})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, CommitResponse{Err: "internal"})
		return
	}

	writeJSON(w, http.StatusOK, CommitResponse{CommitID: commitID})
}

func (s *Server) handleGetCommitHistory(w http.ResponseWriter, r *http.Request) {
	var req CommitHistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, CommitHistoryResponse{})
		return
	}

	history, err := s.store.GetCommitHistory(r.Context(), req.Take)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, CommitHistoryResponse{})
		return
	}

	items := make([]CommitHistoryEntry, 0, len(history))
	for _, h := range history {
		items = append(items, CommitHistoryEntry{
			CommitID:   h.CommitID,
			CommitRank: h.CommitRank,
			CreatedAt:  h.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, CommitHistoryResponse{Items: items})
}
