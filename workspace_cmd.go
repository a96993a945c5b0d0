package main

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Create, list, and delete workspaces",
	}

	cmd.AddCommand(newWorkspaceCreateCmd())
	cmd.AddCommand(newWorkspaceListCmd())
	cmd.AddCommand(newWorkspaceDeleteCmd())

	return cmd
}

func newWorkspaceCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new workspace branched from trunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			client := newRemoteClient(cc)

			id, err := client.CreateWorkspace(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, revdb.ErrWorkspaceAlreadyExists) {
					return fmt.Errorf("workspace %q already exists", args[0])
				}

				return fmt.Errorf("creating workspace %q: %w", args[0], err)
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"id": id, "name": args[0]})
			}

			statusf("created workspace %q (%s)\n", args[0], id)

			return nil
		},
	}
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every live workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			client := newRemoteClient(cc)

			items, err := client.GetWorkspaces(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing workspaces: %w", err)
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(items)
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{it.ID, it.Name})
			}

			printTable(os.Stdout, []string{"ID", "NAME"}, rows)

			return nil
		},
	}
}

func newWorkspaceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			client := newRemoteClient(cc)

			id, err := client.GetWorkspaceIDFromName(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, revdb.ErrWorkspaceNotFound) {
					return fmt.Errorf("workspace %q not found", args[0])
				}

				return fmt.Errorf("resolving workspace %q: %w", args[0], err)
			}

			if err := client.DeleteWorkspace(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting workspace %q: %w", args[0], err)
			}

			statusf("deleted workspace %q (%s)\n", args[0], id)

			return nil
		},
	}
}
