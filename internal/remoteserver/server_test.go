package remoteserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-go/internal/blobstore"
	"github.com/tonimelisma/onedrive-go/internal/clock"
	"github.com/tonimelisma/onedrive-go/internal/revdb"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := revdb.NewStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blobstore.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	srv := NewServer(store, blobs, clock.Fixed{At: time.Unix(1700000000, 0)}, logger)

	return httptest.NewServer(srv.Router())
}

func postJSON(t *testing.T, ts *httptest.Server, path string, req, resp any) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpResp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	require.Equal(t, http.StatusOK, httpResp.StatusCode, httpResp.Status)

	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(resp))
}

func TestCreateAndListWorkspace(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var created CreateWorkspaceResponse
	postJSON(t, ts, "/v2/create-workspace", CreateWorkspaceRequest{Name: "alice"}, &created)
	require.NotEmpty(t, created.ID)

	var list GetWorkspacesResponse
	postJSON(t, ts, "/v2/get-workspaces", struct{}{}, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "alice", list.Items[0].Name)

	var lookup GetWorkspaceIDFromNameResponse
	postJSON(t, ts, "/v2/get-workspace-id-from-name", GetWorkspaceIDFromNameRequest{WorkspaceName: "alice"}, &lookup)
	assert.True(t, lookup.Found)
	assert.Equal(t, created.ID, lookup.WorkspaceID)
}

func TestCreateWorkspaceDuplicateNameReturnsAlreadyExists(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var first CreateWorkspaceResponse
	postJSON(t, ts, "/v2/create-workspace", CreateWorkspaceRequest{Name: "alice"}, &first)
	require.NotEmpty(t, first.ID)

	var second CreateWorkspaceResponse
	postJSON(t, ts, "/v2/create-workspace", CreateWorkspaceRequest{Name: "alice"}, &second)
	assert.True(t, second.AlreadyExists)
	assert.Empty(t, second.ID)
}

func TestWriteBlobDedupsAndReadBlobRoundTrips(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var first WriteBlobResponse
	postJSON(t, ts, "/v2/write-blob", WriteBlobRequest{Data: []byte("hello")}, &first)
	require.NotEmpty(t, first.BlobID)

	var second WriteBlobResponse
	postJSON(t, ts, "/v2/write-blob", WriteBlobRequest{Data: []byte("hello")}, &second)
	assert.Equal(t, first.BlobID, second.BlobID)

	var read ReadBlobResponse
	postJSON(t, ts, "/v2/read-blob", ReadBlobRequest{BlobID: first.BlobID}, &read)
	require.True(t, read.Found)
	assert.Equal(t, []byte("hello"), read.Blob)
}

func TestSyncCommitAndReadTrunk(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var created CreateWorkspaceResponse
	postJSON(t, ts, "/v2/create-workspace", CreateWorkspaceRequest{Name: "w1"}, &created)

	var blob WriteBlobResponse
	postJSON(t, ts, "/v2/write-blob", WriteBlobRequest{Data: []byte("contents")}, &blob)

	var syncResp SyncFilesWithWorkspaceResponse
	postJSON(t, ts, "/v2/sync-files-with-workspace", SyncFilesWithWorkspaceRequest{
		WorkspaceID: created.ID,
		Items: []SyncItemWire{
			{Kind: "upsert_file", FilePath: []string{"dir", "a.txt"}, BlobID: blob.BlobID},
		},
	}, &syncResp)
	require.Empty(t, syncResp.Err)

	var attrBefore GetAttrResponse
	postJSON(t, ts, "/v2/get-attr", PathRequest{WorkspaceID: nil, Path: []string{"dir", "a.txt"}}, &attrBefore)
	assert.False(t, attrBefore.Found)

	var commitResp CommitResponse
	postJSON(t, ts, "/v2/commit", CommitRequest{WorkspaceID: created.ID}, &commitResp)
	require.Empty(t, commitResp.Err)
	require.NotEmpty(t, commitResp.CommitID)

	var attrAfter GetAttrResponse
	postJSON(t, ts, "/v2/get-attr", PathRequest{WorkspaceID: nil, Path: []string{"dir", "a.txt"}}, &attrAfter)
	require.True(t, attrAfter.Found)
	assert.Equal(t, int64(len("contents")), attrAfter.Size)

	var history CommitHistoryResponse
	postJSON(t, ts, "/v2/get-commit-history", CommitHistoryRequest{Take: 10}, &history)
	require.Len(t, history.Items, 1)
	assert.Equal(t, commitResp.CommitID, history.Items[0].CommitID)
}

func TestDeleteWorkspaceRemovesItFromList(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var created CreateWorkspaceResponse
	postJSON(t, ts, "/v2/create-workspace", CreateWorkspaceRequest{Name: "bob"}, &created)

	var del DeleteWorkspaceResponse
	postJSON(t, ts, "/v2/delete-workspace", DeleteWorkspaceRequest{WorkspaceID: created.ID}, &del)
	require.Empty(t, del.Err)

	var list GetWorkspacesResponse
	postJSON(t, ts, "/v2/get-workspaces", struct{}{}, &list)
	assert.Empty(t, list.Items)

	var redel DeleteWorkspaceResponse
	postJSON(t, ts, "/v2/delete-workspace", DeleteWorkspaceRequest{WorkspaceID: created.ID}, &redel)
	assert.Equal(t, "workspace_not_found", redel.Err)
}

func TestCommitUnknownWorkspaceReturnsNotFoundErr(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var resp CommitResponse
	postJSON(t, ts, "/v2/commit", CommitRequest{WorkspaceID: "missing"}, &resp)
	assert.Equal(t, "workspace_not_found", resp.Err)
}
