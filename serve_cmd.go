package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-go/internal/blobstore"
	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Remote Server, wrapping the revision database and blob store",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	store, err := revdb.NewStore(cc.Cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening revision database: %w", err)
	}
	defer store.Close()

	blobs, err := blobstore.NewStore(cc.Cfg.BlobStore.Root, logger)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	pidPath := filepath.Join(filepath.Dir(cc.Cfg.Database.Path), "sagitta-serve.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := remoteserver.NewServer(store, blobs, clock.Real{}, logger)

	httpServer := &http.Server{
		Addr:    cc.Cfg.Remote.Address,
		Handler: srv.Router(),
	}

	ctx := shutdownContext(cmd.Context(), logger, "serve")

	errCh := make(chan error, 1)

	go func() {
		logger.Info("remote server listening", slog.String("address", cc.Cfg.Remote.Address))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("remote server: %w", err)
		}

		return nil
	case <-ctx.Done():
		logger.Info("shutting down remote server")
		return httpServer.Shutdown(context.Background())
	}
}
