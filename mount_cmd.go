package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/fuseadapter"
	"github.com/tonimelisma/onedrive-go/internal/overlay"
	"github.com/tonimelisma/onedrive-go/internal/syncengine"
)

func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount trunk and every live workspace over FUSE",
		Args:  cobra.ExactArgs(1),
		RunE:  runMount,
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	mountpoint := args[0]

	client := newRemoteClient(cc)
	ov := overlay.NewOverlay(cc.Cfg.Overlay.Base, logger)
	fs := fuseadapter.NewFS(client, ov, clock.Real{}, logger)

	fssrv, err := fuse.NewServer(fs, mountpoint, &fuse.MountOptions{
		AllowOther: cc.Cfg.Mount.AllowOther,
		Name:       "sagitta",
	})
	if err != nil {
		return fmt.Errorf("mounting %s: %w", mountpoint, err)
	}

	pidPath := filepath.Join(filepath.Dir(cc.Cfg.Overlay.Base), "sagitta-mount.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := syncengine.NewEngine(client, ov, clock.Real{}, logger)
	localSrv := syncengine.NewLocalServer(engine, logger)

	localHTTP := &http.Server{
		Addr:    cc.Cfg.Mount.SyncAddress,
		Handler: localSrv.Router(),
	}

	go func() {
		logger.Info("local sync endpoint listening", slog.String("address", cc.Cfg.Mount.SyncAddress))

		if err := localHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("local sync endpoint failed", slog.String("error", err.Error()))
		}
	}()

	ctx := shutdownContext(cmd.Context(), logger, "mount")

	go func() {
		<-ctx.Done()
		logger.Info("unmounting", slog.String("mountpoint", mountpoint))
		fssrv.Unmount()
		localHTTP.Close()
	}()

	logger.Info("mounted", slog.String("mountpoint", mountpoint))
	fssrv.Serve()

	return nil
}
