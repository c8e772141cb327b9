package daemoncfg

import (
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/errutils"
	"oss.nandlabs.io/cirrusd/testing/assert"
)

const sampleConfig = `
[repositories.home]
url = "local:/srv/backups"
parallel-jobs = 4
password = { env-var = "HOME_REPO_PWD" }

[backups.docs]
repository = "home"
path = "/home/alice/docs"
excludes = ["*.tmp"]
exclude-caches = true
[[backups.docs.triggers]]
at = "6am and 18:00"
every = "weekday except Wednesday"
`

func TestParseStringBuildsRepositoriesAndBackups(t *testing.T) {
	cfg, err := ParseString(sampleConfig)
	assert.NoError(t, err)

	repo, ok := cfg.Repositories["home"]
	assert.True(t, ok)
	assert.Equal(t, "local:/srv/backups", repo.URL)
	assert.Equal(t, 4, repo.ParallelJobs)
	assert.Equal(t, "HOME_REPO_PWD", repo.Password.EnvVar)

	backup, ok := cfg.Backups["docs"]
	assert.True(t, ok)
	assert.Equal(t, "home", backup.Repository)
	assert.Equal(t, 1, len(backup.Triggers))
}

func TestParseStringRejectsEmptyDocument(t *testing.T) {
	_, err := ParseString("   \n  ")
	assert.Equal(t, ErrEmptyConfig, err)
}

func TestParseStringRejectsUnknownRepository(t *testing.T) {
	_, err := ParseString(`
[backups.docs]
repository = "missing"
path = "/tmp"
`)
	merr, ok := err.(*errutils.MultiError)
	assert.True(t, ok)
	assert.True(t, merr.HasError(ErrUnknownRepository))
}

func TestParseStringAggregatesMultipleInvalidEntries(t *testing.T) {
	_, err := ParseString(`
[repositories.bad]
password = { env-var = "X" }

[backups.docs]
repository = "missing"
`)
	merr, ok := err.(*errutils.MultiError)
	assert.True(t, ok)
	assert.True(t, merr.HasError(ErrInvalidFile))
	assert.True(t, merr.HasError(ErrUnknownRepository))
	assert.True(t, len(merr.GetAll()) >= 2)
}

func TestParseStringDefaultsParallelJobs(t *testing.T) {
	cfg, err := ParseString(`
[repositories.home]
url = "local:/srv/backups"
password = { env-var = "X" }
`)
	assert.NoError(t, err)
	assert.Equal(t, 3, cfg.Repositories["home"].ParallelJobs)
}

func TestRepositoryForBackupResolvesOrErrors(t *testing.T) {
	cfg, err := ParseString(sampleConfig)
	assert.NoError(t, err)

	repo, err := cfg.RepositoryForBackup(cfg.Backups["docs"])
	assert.NoError(t, err)
	assert.Equal(t, "home", repo.Name)
}

func TestNextScheduleCombinesTriggersAndTakesMinimum(t *testing.T) {
	cfg, err := ParseString(sampleConfig)
	assert.NoError(t, err)

	backup := cfg.Backups["docs"]
	after := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC) // tuesday 7am
	next := NextSchedule(backup, after)
	assert.False(t, next.IsZero())
	assert.True(t, next.After(after))
}

func TestNextScheduleEmptyWhenTriggersDisabled(t *testing.T) {
	cfg, err := ParseString(sampleConfig)
	assert.NoError(t, err)

	backup := cfg.Backups["docs"]
	backup.DisableTriggers = true
	next := NextSchedule(backup, time.Now())
	assert.True(t, next.IsZero())
}
