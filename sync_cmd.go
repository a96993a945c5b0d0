package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-go/internal/remoteserver"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <workspace-name>",
		Short: "Upload the overlay's non-ignored files into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE:  runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client := newRemoteClient(cc)

	workspaceID, err := client.GetWorkspaceIDFromName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolving workspace %q: %w", args[0], err)
	}

	resp, err := postLocalSync(ctx, cc.Cfg.Mount.SyncAddress, workspaceID)
	if err != nil {
		return fmt.Errorf("syncing workspace %q: %w", args[0], err)
	}

	if resp.Err != "" {
		return fmt.Errorf("syncing workspace %q: %s", args[0], resp.Err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(resp)
	}

	for _, path := range resp.UpsertFiles {
		statusf("%s\n", strings.Join(path, "/"))
	}

	statusf("synced %d file(s) into %q\n", len(resp.UpsertFiles), args[0])

	return nil
}

// postLocalSync calls v1/sync on the mount process's local sync listener,
// a loopback endpoint distinct from the Remote Server's v2 API.
func postLocalSync(ctx context.Context, address, workspaceID string) (remoteserver.LocalSyncResponse, error) {
	payload, err := json.Marshal(remoteserver.LocalSyncRequest{WorkspaceID: workspaceID})
	if err != nil {
		return remoteserver.LocalSyncResponse{}, fmt.Errorf("marshal sync request: %w", err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Minute}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/v1/sync", bytes.NewReader(payload))
	if err != nil {
		return remoteserver.LocalSyncResponse{}, fmt.Errorf("build sync request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return remoteserver.LocalSyncResponse{}, fmt.Errorf("calling local sync endpoint at %s: %w", address, err)
	}
	defer httpResp.Body.Close()

	var resp remoteserver.LocalSyncResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return remoteserver.LocalSyncResponse{}, fmt.Errorf("decode sync response: %w", err)
	}

	return resp, nil
}
