package scheduler

import (
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/job"
	"oss.nandlabs.io/cirrusd/testing/assert"
	"oss.nandlabs.io/cirrusd/trigger"
)

// fireSoonTrigger fires once, a few milliseconds after creation, then never again.
type fireSoonTrigger struct {
	at   time.Time
	used bool
}

func newFireSoonTrigger(d time.Duration) *fireSoonTrigger {
	return &fireSoonTrigger{at: time.Now().Add(d)}
}

func (t *fireSoonTrigger) NextSchedule(after time.Time) time.Time {
	if t.used || after.After(t.at) {
		return time.Time{}
	}
	t.used = true
	return t.at
}

var _ trigger.Trigger = (*fireSoonTrigger)(nil)

func TestSchedulerSubmitsJobWhenTriggerFires(t *testing.T) {
	b := bus.New()
	subs := bus.Subscribe[job.Submission](b)

	s := New(b)
	assert.NoError(t, s.Start())
	defer func() {
		b.Close()
		s.Stop()
	}()

	repo := &daemoncfg.Repository{Name: "repo1", URL: "file:/tmp/repo"}
	backup := &daemoncfg.Backup{
		Name:       "nightly",
		Repository: "repo1",
		Path:       "/data",
		Triggers:   []daemoncfg.TriggerSpec{{Trigger: newFireSoonTrigger(10 * time.Millisecond)}},
	}
	cfg := &daemoncfg.Config{
		Repositories: map[string]*daemoncfg.Repository{"repo1": repo},
		Backups:      map[string]*daemoncfg.Backup{"nightly": backup},
	}

	bus.Send(b, daemoncfg.ConfigReload{Config: cfg})

	select {
	case sub := <-subs.Chan():
		spec, ok := sub.Job.Spec.(*job.BackupSpec)
		assert.True(t, ok)
		assert.Equal(t, "nightly", spec.Backup.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not submit a job in time")
	}
}

func TestSchedulerSkipsDisabledTriggers(t *testing.T) {
	b := bus.New()
	subs := bus.Subscribe[job.Submission](b)

	s := New(b)
	assert.NoError(t, s.Start())
	defer func() {
		b.Close()
		s.Stop()
	}()

	repo := &daemoncfg.Repository{Name: "repo1", URL: "file:/tmp/repo"}
	backup := &daemoncfg.Backup{
		Name:            "nightly",
		Repository:      "repo1",
		Path:            "/data",
		DisableTriggers: true,
		Triggers:        []daemoncfg.TriggerSpec{{Trigger: newFireSoonTrigger(10 * time.Millisecond)}},
	}
	cfg := &daemoncfg.Config{
		Repositories: map[string]*daemoncfg.Repository{"repo1": repo},
		Backups:      map[string]*daemoncfg.Backup{"nightly": backup},
	}

	bus.Send(b, daemoncfg.ConfigReload{Config: cfg})

	select {
	case <-subs.Chan():
		t.Fatal("scheduler submitted a job for a disabled backup")
	case <-time.After(100 * time.Millisecond):
	}
}
