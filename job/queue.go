package job

import (
	"sync"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/collections"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

const defaultParallelJobs = 3

// RunnerFunc executes a single job, reading cancel for a cooperative
// cancellation reason. It is responsible for publishing the job's own
// RawStatusChange events; the queue engine only tracks running-set
// membership via the public StatusChange topic.
type RunnerFunc func(job Job, cancel <-chan CancelReason)

type runningEntry struct {
	spec   Spec
	cancel chan CancelReason
}

type repoQueue struct {
	pending      collections.List[Job]
	running      map[string]*runningEntry
	parallelJobs int
}

func newRepoQueue(parallelJobs int) *repoQueue {
	if parallelJobs <= 0 {
		parallelJobs = defaultParallelJobs
	}
	return &repoQueue{
		pending:      collections.NewArrayList[Job](),
		running:      make(map[string]*runningEntry),
		parallelJobs: parallelJobs,
	}
}

func (q *repoQueue) findEquivalent(spec Spec) bool {
	for _, entry := range q.running {
		if entry.spec.Equivalent(spec) {
			return true
		}
	}
	for it := q.pending.Iterator(); it.HasNext(); {
		if it.Next().Spec.Equivalent(spec) {
			return true
		}
	}
	return false
}

// Engine is the per-repository-queue job queue engine: it enforces the
// parallel-jobs cap, dedupes equivalent pending/running jobs, and routes
// cancellation for suspend and shutdown.
type Engine struct {
	*lifecycle.SimpleComponent
	bus    *bus.Bus
	runner RunnerFunc

	mu        sync.Mutex
	queues    map[string]*repoQueue
	suspended bool
	done      chan struct{}

	// parallelJobsFor resolves the configured cap for a repository; supplied
	// by the caller since the engine has no direct dependency on daemoncfg.
	parallelJobsFor func(repositoryName string) int
}

// NewEngine constructs a queue engine. parallelJobsFor is consulted the first
// time a repository's queue is created; runner is invoked once per admitted job.
func NewEngine(b *bus.Bus, runner RunnerFunc, parallelJobsFor func(repositoryName string) int) *Engine {
	e := &Engine{
		bus:             b,
		runner:          runner,
		queues:          make(map[string]*repoQueue),
		done:            make(chan struct{}),
		parallelJobsFor: parallelJobsFor,
	}
	e.SimpleComponent = &lifecycle.SimpleComponent{CompId: "queue-engine"}
	e.StartFunc = e.start
	e.StopFunc = e.stop
	return e
}

func (e *Engine) start() error {
	// Subscribe before returning so that a publication made right after
	// Start is not missed.
	submissions := bus.Subscribe[Submission](e.bus)
	statuses := bus.Subscribe[StatusChange](e.bus)
	suspendCh := bus.Subscribe[events.SuspendState](e.bus)
	shutdownCh := bus.Subscribe[events.ShutdownRequested](e.bus)
	go e.run(submissions, statuses, suspendCh, shutdownCh)
	return nil
}

func (e *Engine) stop() error {
	<-e.done
	return nil
}

func (e *Engine) queueFor(repositoryName string) *repoQueue {
	q, ok := e.queues[repositoryName]
	if !ok {
		parallelJobs := defaultParallelJobs
		if e.parallelJobsFor != nil {
			parallelJobs = e.parallelJobsFor(repositoryName)
		}
		q = newRepoQueue(parallelJobs)
		e.queues[repositoryName] = q
	}
	return q
}

func (e *Engine) run(submissions *bus.Subscription[Submission], statuses *bus.Subscription[StatusChange], suspendCh *bus.Subscription[events.SuspendState], shutdownCh *bus.Subscription[events.ShutdownRequested]) {
	defer close(e.done)

	shuttingDown := false
	acked := false

	for {
		select {
		case sub, ok := <-submissions.Chan():
			if !ok {
				return
			}
			if !shuttingDown {
				e.handleSubmission(sub.Job)
			}

		case sc, ok := <-statuses.Chan():
			if !ok {
				return
			}
			e.handleStatusChange(sc)

		case ss, ok := <-suspendCh.Chan():
			if !ok {
				return
			}
			e.handleSuspend(ss)

		case sr, ok := <-shutdownCh.Chan():
			if !ok {
				return
			}
			_ = sr
			shuttingDown = true
			e.cancelAllRunning(CancelShutdown)
		}

		e.advanceAll(shuttingDown)

		if shuttingDown && !acked && e.allQuiet() {
			acked = true
			bus.Send(e.bus, events.ShutdownAcknowledged{Component: "queue-engine"})
			return
		}
	}
}

func (e *Engine) handleSubmission(j Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queueFor(j.Spec.RepositoryName())
	if q.findEquivalent(j.Spec) {
		logger.InfoF("dropping duplicate submission for repository %s (spec already pending or running)", j.Spec.RepositoryName())
		return
	}
	_ = q.pending.Add(j)
}

func (e *Engine) handleStatusChange(sc StatusChange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[sc.RepositoryName]
	if !ok {
		return
	}
	switch sc.Status {
	case StatusFinishedSuccessfully, StatusFinishedWithError, StatusRetried:
		delete(q.running, sc.JobID)
	case StatusCancelled:
		entry, exists := q.running[sc.JobID]
		delete(q.running, sc.JobID)
		if exists && sc.Reason == CancelSuspend {
			_ = q.pending.AddFirst(Job{ID: sc.JobID, Spec: entry.spec})
		}
	}
}

func (e *Engine) handleSuspend(ss events.SuspendState) {
	e.mu.Lock()
	wasSuspended := e.suspended
	e.suspended = ss == events.Suspended
	becameSuspended := !wasSuspended && e.suspended
	e.mu.Unlock()

	if becameSuspended {
		e.cancelAllRunning(CancelSuspend)
	}
}

func (e *Engine) cancelAllRunning(reason CancelReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.queues {
		for _, entry := range q.running {
			select {
			case entry.cancel <- reason:
			default:
			}
		}
	}
}

func (e *Engine) advanceAll(shuttingDown bool) {
	e.mu.Lock()
	type admission struct {
		job    Job
		cancel chan CancelReason
	}
	var toRun []admission

	if !shuttingDown && !e.suspended {
		for _, q := range e.queues {
			for len(q.running) < q.parallelJobs && !q.pending.IsEmpty() {
				j, err := q.pending.RemoveFirst()
				if err != nil {
					break
				}
				cancel := make(chan CancelReason, 1)
				q.running[j.ID] = &runningEntry{spec: j.Spec, cancel: cancel}
				toRun = append(toRun, admission{job: j, cancel: cancel})
			}
		}
	}
	e.mu.Unlock()

	for _, a := range toRun {
		go e.runner(a.job, a.cancel)
	}
}

func (e *Engine) allQuiet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.queues {
		if len(q.running) > 0 {
			return false
		}
	}
	return true
}
