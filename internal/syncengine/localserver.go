package syncengine

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
)

// LocalServer exposes the sync pipeline as a loopback HTTP endpoint,
// grounded on sagitta-local-server/src/api/v1/sync.rs running alongside the
// FUSE mount in the same process (spec.md §6's local v1/sync operation).
type LocalServer struct {
	engine *Engine
	logger *slog.Logger
}

// NewLocalServer returns a LocalServer driving engine.
func NewLocalServer(engine *Engine, logger *slog.Logger) *LocalServer {
	return &LocalServer{engine: engine, logger: logger}
}

// Router builds the chi route tree for the v1/sync operation.
func (s *LocalServer) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
	})

	return r
}

func (s *LocalServer) handleSync(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	logger := s.logger.With(slog.String("request_id", requestID))

	var req remoteserver.LocalSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSyncJSON(w, http.StatusBadRequest, remoteserver.LocalSyncResponse{Err: "bad request"})
		return
	}

	paths, err := s.engine.Run(r.Context(), req.WorkspaceID)
	if err != nil {
		logger.Error("sync failed", slog.String("workspace_id", req.WorkspaceID), slog.String("error", err.Error()))
		writeSyncJSON(w, http.StatusInternalServerError, remoteserver.LocalSyncResponse{Err: "internal"})

		return
	}

	writeSyncJSON(w, http.StatusOK, remoteserver.LocalSyncResponse{UpsertFiles: paths})
}

func writeSyncJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}
