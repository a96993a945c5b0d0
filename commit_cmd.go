package main

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <workspace-name>",
		Short: "Promote a workspace's latest revisions into trunk",
		Args:  cobra.ExactArgs(1),
		RunE:  runCommit,
	}
}

func runCommit(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client := newRemoteClient(cc)

	workspaceID, err := client.GetWorkspaceIDFromName(ctx, args[0])
	if err != nil {
		if errors.Is(err, revdb.ErrWorkspaceNotFound) {
			return fmt.Errorf("workspace %q not found", args[0])
		}

		return fmt.Errorf("resolving workspace %q: %w", args[0], err)
	}

	commitID, err := client.Commit(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, revdb.ErrWorkspaceNotFound) {
			return fmt.Errorf("workspace %q was already committed or deleted", args[0])
		}

		return fmt.Errorf("committing workspace %q: %w", args[0], err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"commit_id": commitID})
	}

	statusf("committed %q as %s\n", args[0], commitID)

	return nil
}
