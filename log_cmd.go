package main

import (
	"fmt"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var take int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLog(cmd, take)
		},
	}

	cmd.Flags().IntVar(&take, "take", 20, "maximum number of commits to show")

	return cmd
}

func runLog(cmd *cobra.Command, take int) error {
	cc := mustCLIContext(cmd.Context())
	client := newRemoteClient(cc)

	items, err := client.GetCommitHistory(cmd.Context(), take)
	if err != nil {
		return fmt.Errorf("fetching commit history: %w", err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(items)
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{strconv.FormatInt(it.CommitRank, 10), it.CommitID, formatTime(it.CreatedAt)})
	}

	printTable(os.Stdout, []string{"RANK", "COMMIT", "CREATED"}, rows)

	return nil
}
