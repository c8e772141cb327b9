package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/testing/assert"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetSnapshotsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	err := store.SaveSnapshots(ctx, "repo1", []Snapshot{
		{RepoURL: "repo1", SnapshotID: "s1", Time: now, Tags: []string{"cirrus.docs"}, BackupName: "docs"},
		{RepoURL: "repo1", SnapshotID: "s2", Time: now.Add(time.Hour)},
	})
	assert.NoError(t, err)

	snaps, err := store.GetSnapshots(ctx, "repo1")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(snaps))
	assert.Equal(t, "s2", snaps[0].SnapshotID)
	assert.Equal(t, "docs", snaps[1].BackupName)
}

func TestSaveSnapshotsReplacesPriorGeneration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.SaveSnapshots(ctx, "repo1", []Snapshot{{RepoURL: "repo1", SnapshotID: "s1", Time: time.Now()}}))
	assert.NoError(t, store.SaveSnapshots(ctx, "repo1", []Snapshot{{RepoURL: "repo1", SnapshotID: "s2", Time: time.Now()}}))

	snaps, err := store.GetSnapshots(ctx, "repo1")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(snaps))
	assert.Equal(t, "s2", snaps[0].SnapshotID)
}

func TestGetUnindexedSnapshotsReturnsOnlyZeroFileCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.SaveSnapshots(ctx, "repo1", []Snapshot{
		{RepoURL: "repo1", SnapshotID: "s1", Time: time.Now()},
		{RepoURL: "repo1", SnapshotID: "s2", Time: time.Now()},
	}))
	assert.NoError(t, store.SaveFiles(ctx, "repo1", "s1", []File{
		{RepoURL: "repo1", SnapshotID: "s1", Path: "/data", Name: "data", Type: FileTypeDir, Parent: "/"},
	}))

	unindexed, err := store.GetUnindexedSnapshots(ctx, "repo1", 50)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(unindexed))
	assert.Equal(t, "s2", unindexed[0])
}

func TestGetFilesFiltersByParent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.SaveSnapshots(ctx, "repo1", []Snapshot{{RepoURL: "repo1", SnapshotID: "s1", Time: time.Now()}}))
	assert.NoError(t, store.SaveFiles(ctx, "repo1", "s1", []File{
		{RepoURL: "repo1", SnapshotID: "s1", Path: "/data", Name: "data", Type: FileTypeDir, Parent: "/"},
		{RepoURL: "repo1", SnapshotID: "s1", Path: "/data/report.txt", Name: "report.txt", Type: FileTypeFile, Parent: "/data", HasSize: true, Size: 4096},
	}))

	records, err := store.GetFiles(ctx, FileKey{RepoURL: "repo1", SnapshotID: "s1", Parent: "/data"}, 50)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, "report.txt", records[0].File.Name)
	assert.Equal(t, "s1", records[0].Snapshot.SnapshotID)
}
