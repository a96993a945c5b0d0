package main

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cc.Cfg)
	}

	rows := [][]string{
		{"database.path", cc.Cfg.Database.Path},
		{"blob_store.root", cc.Cfg.BlobStore.Root},
		{"overlay.base", cc.Cfg.Overlay.Base},
		{"remote.address", cc.Cfg.Remote.Address},
		{"mount.path", cc.Cfg.Mount.Path},
		{"mount.allow_other", fmt.Sprintf("%t", cc.Cfg.Mount.AllowOther)},
		{"mount.sync_address", cc.Cfg.Mount.SyncAddress},
		{"logging.level", cc.Cfg.Logging.Level},
		{"logging.format", cc.Cfg.Logging.Format},
		{"network.timeout_seconds", fmt.Sprintf("%d", cc.Cfg.Network.TimeoutSeconds)},
	}

	printTable(os.Stdout, []string{"KEY", "VALUE"}, rows)

	return nil
}
