// Package signalhandler waits for an OS termination/interrupt signal and
// turns the first one it sees into a single events.RequestShutdown
// publication, then gets out of the way.
package signalhandler

import (
	"os"
	"os/signal"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

// Handler waits for a termination signal and requests shutdown.
type Handler struct {
	*lifecycle.SimpleComponent
	bus    *bus.Bus
	sigs   chan os.Signal
	stopCh chan struct{}
	done   chan struct{}
}

// New constructs a signal handler. The actual signal set registered is
// platform-dependent; see signals_unix.go and signals_windows.go.
func New(b *bus.Bus) *Handler {
	h := &Handler{bus: b, sigs: make(chan os.Signal, 1), stopCh: make(chan struct{}), done: make(chan struct{})}
	h.SimpleComponent = &lifecycle.SimpleComponent{CompId: "signal-handler"}
	h.StartFunc = h.start
	h.StopFunc = h.stop
	return h
}

func (h *Handler) start() error {
	signal.Notify(h.sigs, terminationSignals()...)
	go h.run()
	return nil
}

func (h *Handler) stop() error {
	signal.Stop(h.sigs)
	close(h.stopCh)
	<-h.done
	return nil
}

func (h *Handler) run() {
	defer close(h.done)
	select {
	case sig := <-h.sigs:
		logger.InfoF("received signal %s, requesting shutdown", sig)
		bus.Send(h.bus, events.RequestShutdown{})
	case <-h.stopCh:
	}
}
