// Package shutdown implements the graceful-shutdown protocol: on a
// RequestShutdown it publishes ShutdownRequested with a grace deadline,
// counts down subscriber acknowledgments, and exits the process when either
// every acknowledgment has arrived or the deadline passes, whichever is
// first.
package shutdown

import (
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/l3"
	"oss.nandlabs.io/cirrusd/lifecycle"
)

var logger = l3.Get()

// DefaultGracePeriod is how long the coordinator waits for acknowledgments
// before exiting anyway.
const DefaultGracePeriod = 5 * time.Second

// ExitFunc terminates the process. Injected so tests can substitute
// something observable instead of actually exiting.
type ExitFunc func(code int)

// Coordinator runs the shutdown protocol.
type Coordinator struct {
	*lifecycle.SimpleComponent
	bus         *bus.Bus
	gracePeriod time.Duration
	exit        ExitFunc
	done        chan struct{}
}

// New constructs a Coordinator. exit is called to end the process; this
// package does not default it to os.Exit (the daemon's wiring passes a
// function that calls os.Exit), so tests never exit the test binary.
func New(b *bus.Bus, gracePeriod time.Duration, exit ExitFunc) *Coordinator {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	c := &Coordinator{bus: b, gracePeriod: gracePeriod, exit: exit, done: make(chan struct{})}
	c.SimpleComponent = &lifecycle.SimpleComponent{CompId: "shutdown-coordinator"}
	c.StartFunc = c.start
	c.StopFunc = c.stop
	return c
}

func (c *Coordinator) start() error {
	// Subscribe before returning so that a request or acknowledgment
	// published right after Start is not missed.
	requests := bus.Subscribe[events.RequestShutdown](c.bus)
	acks := bus.Subscribe[events.ShutdownAcknowledged](c.bus)
	go c.run(requests, acks)
	return nil
}

func (c *Coordinator) stop() error {
	<-c.done
	return nil
}

func (c *Coordinator) run(requests *bus.Subscription[events.RequestShutdown], acks *bus.Subscription[events.ShutdownAcknowledged]) {
	defer close(c.done)

	_, _, err := requests.Recv()
	if err != nil {
		return
	}

	// The coordinator's own acks subscription is not counted.
	required := bus.SubscriberCount[events.ShutdownAcknowledged](c.bus) - 1
	deadline := time.Now().Add(c.gracePeriod)

	bus.Send(c.bus, events.ShutdownRequested{GraceDeadline: deadline})

	if required == 0 {
		c.exit(0)
		return
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	remaining := required
	for remaining > 0 {
		select {
		case _, ok := <-acks.Chan():
			if !ok {
				c.exit(0)
				return
			}
			remaining--
		case <-timer.C:
			logger.WarnF("shutdown grace period elapsed with %d/%d component(s) unacknowledged", remaining, required)
			c.exit(0)
			return
		}
	}
	c.exit(0)
}
