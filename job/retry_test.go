package job

import (
	"errors"
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/testing/assert"
)

func newTestBackupSpec(maxAttempts int) *BackupSpec {
	return &BackupSpec{
		Repository: &daemoncfg.Repository{Name: "repo1"},
		Backup:     &daemoncfg.Backup{Name: "nightly", Repository: "repo1", MaxAttempts: maxAttempts},
	}
}

// startRetryHandler starts h and arranges for the bus to be closed during
// cleanup: the relay only exits once its subscriptions are closed (it keeps
// running through ShutdownRequested by design, see run()), so Stop alone
// would never return in a test that never sends a real shutdown-drain.
func startRetryHandler(t *testing.T, b *bus.Bus) *RetryHandler {
	t.Helper()
	h := NewRetryHandler(b)
	assert.NoError(t, h.Start())
	t.Cleanup(func() {
		b.Close()
		_ = h.Stop()
	})
	return h
}

func TestRetryHandlerResubmitsWhileAttemptsRemain(t *testing.T) {
	b := bus.New()
	subs := bus.Subscribe[Submission](b)
	statuses := bus.Subscribe[StatusChange](b)

	startRetryHandler(t, b)

	j, err := New(newTestBackupSpec(3))
	assert.NoError(t, err)
	bus.Send(b, Submission{Job: j})

	// this subscription also receives the original submission; drain it before sending the failure
	first, _, err := subs.Recv()
	assert.NoError(t, err)
	assert.Equal(t, j.ID, first.Job.ID)

	bus.Send(b, RawStatusChange{JobID: j.ID, RepositoryName: "repo1", BackupName: "nightly", Status: StatusFinishedWithError, Err: errors.New("boom"), Timestamp: time.Now()})

	sc, _, err := statuses.Recv()
	assert.NoError(t, err)
	assert.Equal(t, StatusRetried, sc.Status)
	assert.Equal(t, 1, sc.Attempt)
	assert.Equal(t, 2, sc.AttemptsLeft)

	resub, _, err := subs.Recv()
	assert.NoError(t, err)
	assert.NotEqual(t, j.ID, resub.Job.ID)
}

func TestRetryHandlerForwardsTerminalFailureWhenExhausted(t *testing.T) {
	b := bus.New()
	subs := bus.Subscribe[Submission](b)
	statuses := bus.Subscribe[StatusChange](b)

	startRetryHandler(t, b)

	j, err := New(newTestBackupSpec(1))
	assert.NoError(t, err)
	bus.Send(b, Submission{Job: j})

	_, _, err = subs.Recv()
	assert.NoError(t, err)

	bus.Send(b, RawStatusChange{JobID: j.ID, RepositoryName: "repo1", BackupName: "nightly", Status: StatusFinishedWithError, Err: errors.New("boom"), Timestamp: time.Now()})

	sc, _, err := statuses.Recv()
	assert.NoError(t, err)
	assert.Equal(t, StatusFinishedWithError, sc.Status)
	assert.Equal(t, 0, sc.AttemptsLeft)
}

func TestRetryHandlerClearsCounterOnSuccess(t *testing.T) {
	b := bus.New()
	subs := bus.Subscribe[Submission](b)
	statuses := bus.Subscribe[StatusChange](b)

	startRetryHandler(t, b)

	j, err := New(newTestBackupSpec(3))
	assert.NoError(t, err)
	bus.Send(b, Submission{Job: j})
	_, _, err = subs.Recv()
	assert.NoError(t, err)

	bus.Send(b, RawStatusChange{JobID: j.ID, RepositoryName: "repo1", BackupName: "nightly", Status: StatusFinishedSuccessfully, Timestamp: time.Now()})

	sc, _, err := statuses.Recv()
	assert.NoError(t, err)
	assert.Equal(t, StatusFinishedSuccessfully, sc.Status)
}
