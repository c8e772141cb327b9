// Package suspend persists the daemon-wide suspend flag: any component may
// publish a new events.SuspendState, and this service holds the latest value
// for query (by the CLI's "suspend"/"resume"/"status" paths). It is
// deliberately passive: the job queue engine, not this package, decides what
// cancelling running jobs on a transition actually means.
package suspend

import (
	"sync/atomic"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

// Service holds the current suspend state and keeps it current by
// subscribing to every events.SuspendState publication.
type Service struct {
	*lifecycle.SimpleComponent
	bus     *bus.Bus
	current atomic.Int32
	done    chan struct{}
}

// NewService constructs a suspend service, initially not-suspended.
func NewService(b *bus.Bus) *Service {
	s := &Service{bus: b, done: make(chan struct{})}
	s.SimpleComponent = &lifecycle.SimpleComponent{CompId: "suspend-service"}
	s.StartFunc = s.start
	s.StopFunc = s.stop
	return s
}

// Current returns the last observed suspend state.
func (s *Service) Current() events.SuspendState {
	return events.SuspendState(s.current.Load())
}

func (s *Service) start() error {
	// Subscribe before returning so that a publication made right after
	// Start is not missed.
	states := bus.Subscribe[events.SuspendState](s.bus)
	shutdownCh := bus.Subscribe[events.ShutdownRequested](s.bus)
	go s.run(states, shutdownCh)
	return nil
}

func (s *Service) stop() error {
	<-s.done
	return nil
}

func (s *Service) run(states *bus.Subscription[events.SuspendState], shutdownCh *bus.Subscription[events.ShutdownRequested]) {
	defer close(s.done)

	for {
		select {
		case st, ok := <-states.Chan():
			if !ok {
				return
			}
			prev := events.SuspendState(s.current.Swap(int32(st)))
			if prev != st {
				logger.InfoF("suspend state transitioned from %s to %s", prev, st)
			}

		case _, ok := <-shutdownCh.Chan():
			shutdownCh.Unsubscribe()
			if ok {
				bus.Send(s.bus, events.ShutdownAcknowledged{Component: "suspend-service"})
			}
			return
		}
	}
}
