// Package scheduler turns a configuration's per-backup triggers into
// job.Submission events at the right wall-clock moments, recomputing its
// schedule whenever daemoncfg publishes a new configuration.
package scheduler

import (
	"sort"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/daemoncfg"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/job"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

type entry struct {
	backup *daemoncfg.Backup
	repo   *daemoncfg.Repository
	next   time.Time
}

// Scheduler fires job.Submission events per-backup, per its configured
// triggers, recomputing each backup's next fire after it fires or whenever
// the configuration reloads.
type Scheduler struct {
	*lifecycle.SimpleComponent
	bus     *bus.Bus
	reloads *bus.Subscription[daemoncfg.ConfigReload]
	done    chan struct{}

	entries map[string]*entry // keyed by backup name
}

// New constructs a scheduler. It does no scheduling until Start is called.
func New(b *bus.Bus) *Scheduler {
	s := &Scheduler{bus: b, done: make(chan struct{}), entries: make(map[string]*entry)}
	s.SimpleComponent = &lifecycle.SimpleComponent{CompId: "scheduler"}
	s.StartFunc = s.start
	s.StopFunc = s.stop
	return s
}

func (s *Scheduler) start() error {
	s.reloads = bus.Subscribe[daemoncfg.ConfigReload](s.bus)
	go s.run()
	return nil
}

func (s *Scheduler) stop() error {
	<-s.done
	return nil
}

func (s *Scheduler) run() {
	defer close(s.done)

	shutdownCh := bus.Subscribe[events.ShutdownRequested](s.bus)

	var timer *time.Timer
	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		next, ok := s.nextFire()
		if !ok {
			timer = nil
			return
		}
		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
	}

	var timerC <-chan time.Time

	for {
		if timer != nil {
			timerC = timer.C
		} else {
			timerC = nil
		}

		select {
		case reload, ok := <-s.reloads.Chan():
			if !ok {
				return
			}
			s.rebuild(reload.Config)
			resetTimer()

		case <-timerC:
			s.fireDue()
			resetTimer()

		case _, ok := <-shutdownCh.Chan():
			shutdownCh.Unsubscribe()
			if ok {
				bus.Send(s.bus, events.ShutdownAcknowledged{Component: "scheduler"})
			}
			return
		}
	}
}

// rebuild replaces the entire entry set from cfg, computing each backup's
// first fire relative to now.
func (s *Scheduler) rebuild(cfg *daemoncfg.Config) {
	now := time.Now()
	entries := make(map[string]*entry)
	for _, backup := range cfg.Backups {
		next := daemoncfg.NextSchedule(backup, now)
		if next.IsZero() {
			continue
		}
		repo, err := cfg.RepositoryForBackup(backup)
		if err != nil {
			logger.WarnF("scheduler: skipping backup %q: %v", backup.Name, err)
			continue
		}
		entries[backup.Name] = &entry{backup: backup, repo: repo, next: next}
	}
	s.entries = entries
}

// nextFire returns the earliest next-fire time across all entries, breaking
// ties by backup name for deterministic test behavior.
func (s *Scheduler) nextFire() (time.Time, bool) {
	var names []string
	for name := range s.entries {
		names = append(names, name)
	}
	if len(names) == 0 {
		return time.Time{}, false
	}
	sort.Strings(names)

	var earliest time.Time
	for _, name := range names {
		next := s.entries[name].next
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest, true
}

// fireDue submits every backup whose next-fire time has arrived, in
// backup-name order, then recomputes each one's next fire.
func (s *Scheduler) fireDue() {
	now := time.Now()
	var names []string
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := s.entries[name]
		if e.next.After(now) {
			continue
		}
		s.submit(e)
		e.next = daemoncfg.NextSchedule(e.backup, now)
	}
}

func (s *Scheduler) submit(e *entry) {
	j, err := job.New(&job.BackupSpec{Repository: e.repo, Backup: e.backup})
	if err != nil {
		logger.WarnF("scheduler: failed to allocate job for backup %q: %v", e.backup.Name, err)
		return
	}
	bus.Send(s.bus, job.Submission{Job: j})
}
