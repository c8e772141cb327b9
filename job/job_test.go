package job

import (
	"testing"

	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/testing/assert"
)

func TestNewAssignsUniqueIDs(t *testing.T) {
	spec := &BackupSpec{
		Repository: &daemoncfg.Repository{Name: "repo1"},
		Backup:     &daemoncfg.Backup{Name: "nightly", Repository: "repo1"},
	}

	j1, err := New(spec)
	assert.NoError(t, err)
	j2, err := New(spec)
	assert.NoError(t, err)

	assert.True(t, j1.ID != "")
	assert.True(t, j1.ID != j2.ID)
}

func TestIndexSnapshotsSpecEquivalence(t *testing.T) {
	repo := &daemoncfg.Repository{Name: "repo1"}

	allUnindexed := &IndexSnapshotsSpec{Repository: repo}
	sameAllUnindexed := &IndexSnapshotsSpec{Repository: repo}
	assert.True(t, allUnindexed.Equivalent(sameAllUnindexed))

	oneSnapshot := &IndexSnapshotsSpec{Repository: repo, SnapshotID: "abc123"}
	sameSnapshot := &IndexSnapshotsSpec{Repository: repo, SnapshotID: "abc123"}
	assert.True(t, oneSnapshot.Equivalent(sameSnapshot))

	assert.False(t, allUnindexed.Equivalent(oneSnapshot))

	otherSnapshot := &IndexSnapshotsSpec{Repository: repo, SnapshotID: "def456"}
	assert.False(t, oneSnapshot.Equivalent(otherSnapshot))

	assert.False(t, allUnindexed.Equivalent(&BackupSpec{Repository: repo, Backup: &daemoncfg.Backup{Name: "nightly"}}))
}
