package revdb

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// TestDedup covers spec §8 scenario 1: writing the same content twice
// returns the same blob id and allocates only one row.
func TestDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	hash := hashOf("hi")

	first, err := store.CreateOrGetBlob(ctx, hash, 2)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := store.CreateOrGetBlob(ctx, hash, 2)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	lookup, err := store.SearchBlobByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, lookup.Found)
	assert.Equal(t, first.ID, lookup.ID)
	assert.Equal(t, int64(2), lookup.Size)
}

func mustBlob(t *testing.T, store *Store, content string) string {
	t.Helper()

	res, err := store.CreateOrGetBlob(t.Context(), hashOf(content), int64(len(content)))
	require.NoError(t, err)

	return res.ID
}

// seedTrunk builds a one-commit trunk: /a.txt -> "H", /d/b.txt -> "HH".
func seedTrunk(t *testing.T, store *Store) string {
	t.Helper()

	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "seed")
	require.NoError(t, err)

	blobA := mustBlob(t, store, "H")
	blobB := mustBlob(t, store, "HH")

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"a.txt"}, BlobID: blobA},
		{Kind: SyncUpsertFile, Path: []string{"d", "b.txt"}, BlobID: blobB},
	}, time.Now())
	require.NoError(t, err)

	commitID, err := store.Commit(ctx, wsID)
	require.NoError(t, err)

	return commitID
}

// TestTrunkReadPath covers spec §8 scenario 2.
func TestTrunkReadPath(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	seedTrunk(t, store)

	rootEntries, err := store.ReadDir(ctx, nil, nil, false)
	require.NoError(t, err)
	assert.Len(t, rootEntries, 2)

	names := map[string]FileType{}
	for _, e := range rootEntries {
		names[e.Name] = e.FileType
	}
	assert.Equal(t, FileTypeFile, names["a.txt"])
	assert.Equal(t, FileTypeDir, names["d"])

	dEntries, err := store.ReadDir(ctx, nil, []string{"d"}, false)
	require.NoError(t, err)
	require.Len(t, dEntries, 1)
	assert.Equal(t, "b.txt", dEntries[0].Name)
	assert.Equal(t, int64(2), dEntries[0].Size)

	blobID, err := store.GetFileBlobID(ctx, nil, []string{"a.txt"})
	require.NoError(t, err)

	lookup, err := store.SearchBlobByHash(ctx, hashOf("H"))
	require.NoError(t, err)
	assert.Equal(t, lookup.ID, blobID)
}

// TestWorkspaceOverlay covers spec §8 scenario 3.
func TestWorkspaceOverlay(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"f.txt"}, BlobID: blobX},
		{Kind: SyncUpsertDir, Path: []string{"d"}},
	}, time.Now())
	require.NoError(t, err)

	attr, err := store.GetAttr(ctx, &wsID, []string{"f.txt"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, attr.FileType)
	assert.Equal(t, int64(1), attr.Size)

	_, err = store.GetAttr(ctx, nil, []string{"f.txt"})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCommitPromotion covers spec §8 scenario 4.
func TestCommitPromotion(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"f.txt"}, BlobID: blobX},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.Commit(ctx, wsID)
	require.NoError(t, err)

	attr, err := store.GetAttr(ctx, nil, []string{"f.txt"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, attr.FileType)

	workspaces, err := store.GetWorkspaces(ctx, true)
	require.NoError(t, err)

	var found bool
	for _, w := range workspaces {
		if w.ID == wsID {
			found = true
			assert.NotNil(t, w.DeletedAt)
		}
	}
	assert.True(t, found)

	// A second commit on the now-deleted workspace is rejected.
	_, err = store.Commit(ctx, wsID)
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

// TestDeletionSemantics covers spec §8 scenario 5.
func TestDeletionSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	w1, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, w1, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"f.txt"}, BlobID: blobX},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.Commit(ctx, w1)
	require.NoError(t, err)

	w2, err := store.CreateWorkspace(ctx, "w2")
	require.NoError(t, err)

	err = store.SyncFilesToWorkspace(ctx, w2, []SyncItem{
		{Kind: SyncDeleteFile, Path: []string{"f.txt"}},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.GetAttr(ctx, &w2, []string{"f.txt"})
	assert.ErrorIs(t, err, ErrNotFound)

	attr, err := store.GetAttr(ctx, nil, []string{"f.txt"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, attr.FileType)

	_, err = store.Commit(ctx, w2)
	require.NoError(t, err)

	_, err = store.GetAttr(ctx, nil, []string{"f.txt"})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestWorkspaceDirShadowsTrunkFile covers the boundary behavior: a Dir
// created in a workspace shadows a trunk file of the same path.
func TestWorkspaceDirShadowsTrunkFile(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	w1, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, w1, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"n"}, BlobID: blobX},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.Commit(ctx, w1)
	require.NoError(t, err)

	w2, err := store.CreateWorkspace(ctx, "w2")
	require.NoError(t, err)

	err = store.SyncFilesToWorkspace(ctx, w2, []SyncItem{
		{Kind: SyncUpsertDir, Path: []string{"n"}},
	}, time.Now())
	require.NoError(t, err)

	attr, err := store.GetAttr(ctx, &w2, []string{"n"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeDir, attr.FileType)

	attr, err = store.GetAttr(ctx, nil, []string{"n"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, attr.FileType)
}

// TestGetOrCreateFilePath_EmptyPathFails covers the boundary behavior.
func TestGetOrCreateFilePath_EmptyPathFails(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetOrCreateFilePath(t.Context(), nil)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

// TestSyncFilesToWorkspace_AncestorMaterialization exercises the ancestor
// depth asymmetry: a nested file upsert materializes its parent directories
// as Dir revisions without an explicit UpsertDir item.
func TestSyncFilesToWorkspace_AncestorMaterialization(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"a", "b", "c.txt"}, BlobID: blobX},
	}, time.Now())
	require.NoError(t, err)

	attrA, err := store.GetAttr(ctx, &wsID, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeDir, attrA.FileType)

	attrAB, err := store.GetAttr(ctx, &wsID, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeDir, attrAB.FileType)
}

// TestSyncDeleteDir covers spec §4.1's DeleteDir case: deleting a directory
// must tombstone the directory's own revision, not re-assert it as live.
func TestSyncDeleteDir(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertDir, Path: []string{"d"}},
	}, time.Now())
	require.NoError(t, err)

	attr, err := store.GetAttr(ctx, &wsID, []string{"d"})
	require.NoError(t, err)
	assert.Equal(t, FileTypeDir, attr.FileType)

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncDeleteDir, Path: []string{"d"}},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.GetAttr(ctx, &wsID, []string{"d"})
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := store.ReadDir(ctx, &wsID, []string{}, false)
	require.NoError(t, err)

	for _, e := range entries {
		assert.NotEqual(t, "d", e.Name)
	}
}

// TestGetAllTrunkFiles exercises the latest-rank-per-path view over trunk,
// deleted entries included.
func TestGetAllTrunkFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	seedTrunk(t, store)

	w2, err := store.CreateWorkspace(ctx, "w2")
	require.NoError(t, err)

	err = store.SyncFilesToWorkspace(ctx, w2, []SyncItem{
		{Kind: SyncDeleteFile, Path: []string{"a.txt"}},
	}, time.Now())
	require.NoError(t, err)

	_, err = store.Commit(ctx, w2)
	require.NoError(t, err)

	files, err := store.GetAllTrunkFiles(ctx)
	require.NoError(t, err)

	byPath := map[string]TrunkFile{}
	for _, f := range files {
		byPath[f.Path] = f
	}

	assert.True(t, byPath["a.txt"].Deleted)
	assert.False(t, byPath["d/b.txt"].Deleted)
	assert.Equal(t, int64(2), byPath["d/b.txt"].Size)
	assert.Equal(t, FileTypeDir, byPath["d"].FileType)
}

// TestWorkspaceChangelist exercises GetWorkspaceChangelist returning each
// path's latest state.
func TestWorkspaceChangelist(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	wsID, err := store.CreateWorkspace(ctx, "w1")
	require.NoError(t, err)

	blobX := mustBlob(t, store, "X")

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncUpsertFile, Path: []string{"f.txt"}, BlobID: blobX},
	}, time.Now())
	require.NoError(t, err)

	err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
		{Kind: SyncDeleteFile, Path: []string{"f.txt"}},
	}, time.Now())
	require.NoError(t, err)

	items, err := store.GetWorkspaceChangelist(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "f.txt", items[0].Path)
	assert.True(t, items[0].Deleted)
	assert.EqualValues(t, 2, items[0].Version)
}

// TestCreateWorkspace_DoesNotRejectDuplicates documents that CreateWorkspace
// itself never rejects duplicate names (spec §4.1).
func TestCreateWorkspace_DoesNotRejectDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	_, err := store.CreateWorkspace(ctx, "dup")
	require.NoError(t, err)

	_, err = store.CreateWorkspace(ctx, "dup")
	require.NoError(t, err)
}

func TestDeleteWorkspace_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteWorkspace(t.Context(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrWorkspaceNotFound))
}

func TestGetCommitHistory_OrderedNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	var commits []string

	for i := 0; i < 3; i++ {
		wsID, err := store.CreateWorkspace(ctx, "w")
		require.NoError(t, err)

		err = store.SyncFilesToWorkspace(ctx, wsID, []SyncItem{
			{Kind: SyncUpsertDir, Path: []string{"d"}},
		}, time.Now())
		require.NoError(t, err)

		commitID, err := store.Commit(ctx, wsID)
		require.NoError(t, err)

		commits = append(commits, commitID)
	}

	history, err := store.GetCommitHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, commits[2], history[0].CommitID)
	assert.Equal(t, commits[0], history[2].CommitID)
}
