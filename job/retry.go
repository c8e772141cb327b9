package job

import (
	"sync"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

// attemptState tracks a job-id's remaining retry budget. It is rekeyed by
// job id rather than spec because a retried attempt is resubmitted as a
// brand new Job (fresh id) carrying the same spec; see RetryHandler.handleRaw.
type attemptState struct {
	spec    Spec
	attempt int
}

// RetryHandler is the sole bridge between the runner's ground-truth
// RawStatusChange stream and the public StatusChange topic. It is the only
// component that both subscribes to the raw stream and publishes to the
// public one, so every other subscriber sees one coherent story per job
// attempt rather than the raw failure followed by a resubmission.
type RetryHandler struct {
	*lifecycle.SimpleComponent
	bus  *bus.Bus
	done chan struct{}

	mu       sync.Mutex
	attempts map[string]*attemptState // keyed by the *original* job id of the attempt chain
	chainOf  map[string]string        // job id -> original chain id, so a retry's fresh job id still maps back
}

// NewRetryHandler constructs a retry handler.
func NewRetryHandler(b *bus.Bus) *RetryHandler {
	h := &RetryHandler{
		bus:      b,
		done:     make(chan struct{}),
		attempts: make(map[string]*attemptState),
		chainOf:  make(map[string]string),
	}
	h.SimpleComponent = &lifecycle.SimpleComponent{CompId: "retry-handler"}
	h.StartFunc = h.start
	h.StopFunc = h.stop
	return h
}

func (h *RetryHandler) start() error {
	// Subscribe before returning so that a publication made right after
	// Start is not missed.
	subs := bus.Subscribe[Submission](h.bus)
	raws := bus.Subscribe[RawStatusChange](h.bus)
	shutdownCh := bus.Subscribe[events.ShutdownRequested](h.bus)
	go h.run(subs, raws, shutdownCh)
	return nil
}

func (h *RetryHandler) stop() error {
	<-h.done
	return nil
}

func (h *RetryHandler) run(subs *bus.Subscription[Submission], raws *bus.Subscription[RawStatusChange], shutdownCh *bus.Subscription[events.ShutdownRequested]) {
	defer close(h.done)

	acked := false

	// Unlike most components, the relay must keep running through the
	// drain phase of shutdown: the queue engine waits for cancelled jobs'
	// StatusChange to arrive on the public topic before it considers
	// itself quiet, and those only arrive via this relay. So it
	// acknowledges shutdown immediately (it holds no state that needs
	// draining) but keeps forwarding until the bus itself closes.
	for {
		select {
		case sub, ok := <-subs.Chan():
			if !ok {
				return
			}
			h.Track(sub.Job.ID, sub.Job.Spec)

		case rc, ok := <-raws.Chan():
			if !ok {
				return
			}
			h.handleRaw(rc)

		case _, ok := <-shutdownCh.Chan():
			if !ok {
				return
			}
			if !acked {
				acked = true
				bus.Send(h.bus, events.ShutdownAcknowledged{Component: "retry-handler"})
			}
		}
	}
}

func (h *RetryHandler) handleRaw(rc RawStatusChange) {
	switch rc.Status {
	case StatusFinishedWithError:
		h.handleFailure(rc)
	case StatusFinishedSuccessfully:
		h.forgetChain(rc.JobID)
		h.forward(rc, 0, 0)
	default:
		h.forward(rc, 0, 0)
	}
}

// handleFailure decides, using the originating spec's own MaxAttempts
// policy, whether to resubmit the job or let the failure stand.
func (h *RetryHandler) handleFailure(rc RawStatusChange) {
	h.mu.Lock()
	chainID := h.chainIDFor(rc.JobID)
	state, ok := h.attempts[chainID]
	h.mu.Unlock()

	if !ok || state.spec == nil {
		// No spec on file for this job (e.g. handler started after the job was
		// submitted); nothing to retry against, forward the raw failure.
		h.forward(rc, 0, 0)
		return
	}

	max := state.spec.MaxAttempts()
	h.mu.Lock()
	state.attempt++
	attempt := state.attempt
	attemptsLeft := max - attempt
	h.mu.Unlock()

	if attemptsLeft <= 0 {
		h.forgetChain(chainID)
		h.forward(rc, attempt, 0)
		return
	}

	retried, err := New(state.spec)
	if err != nil {
		h.forgetChain(chainID)
		h.forward(rc, attempt, 0)
		return
	}

	h.mu.Lock()
	h.chainOf[retried.ID] = chainID
	h.mu.Unlock()

	bus.Send(h.bus, Submission{Job: retried})

	rc.Status = StatusRetried
	h.forward(rc, attempt, attemptsLeft)
}

// forward republishes rc onto the public topic, carrying attempt bookkeeping.
func (h *RetryHandler) forward(rc RawStatusChange, attempt, attemptsLeft int) {
	bus.Send(h.bus, StatusChange{
		JobID:          rc.JobID,
		RepositoryName: rc.RepositoryName,
		BackupName:     rc.BackupName,
		Status:         rc.Status,
		Reason:         rc.Reason,
		Err:            rc.Err,
		Attempt:        attempt,
		AttemptsLeft:   attemptsLeft,
		Timestamp:      rc.Timestamp,
	})
}

func (h *RetryHandler) chainIDFor(jobID string) string {
	if chainID, ok := h.chainOf[jobID]; ok {
		return chainID
	}
	return jobID
}

func (h *RetryHandler) forgetChain(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chainID := jobID
	if c, ok := h.chainOf[jobID]; ok {
		chainID = c
	}
	delete(h.attempts, chainID)
	delete(h.chainOf, jobID)
}

// Track registers the spec a job id was submitted with, so a subsequent
// failure can be evaluated against that spec's MaxAttempts policy. Called
// from run() for every Submission observed on the bus.
func (h *RetryHandler) Track(jobID string, spec Spec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.attempts[jobID]; !exists {
		h.attempts[jobID] = &attemptState{spec: spec}
	}
}
