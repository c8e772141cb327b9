package shutdown

import (
	"sync/atomic"
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/testing/assert"
)

func TestCoordinatorExitsOnceAllAcknowledge(t *testing.T) {
	b := bus.New()

	var exitCode atomic.Int32
	exited := make(chan struct{})
	exit := func(code int) {
		exitCode.Store(int32(code))
		close(exited)
	}

	// Two components that the coordinator must wait for before exiting.
	ackSubA := bus.Subscribe[events.ShutdownAcknowledged](b)
	ackSubB := bus.Subscribe[events.ShutdownAcknowledged](b)

	c := New(b, 2*time.Second, exit)
	assert.NoError(t, c.Start())

	bus.Send(b, events.RequestShutdown{})

	go func() {
		bus.Send(b, events.ShutdownAcknowledged{Component: "a"})
		bus.Send(b, events.ShutdownAcknowledged{Component: "b"})
	}()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not exit after all acknowledgments")
	}
	assert.Equal(t, int32(0), exitCode.Load())

	_, _, _ = ackSubA.Recv()
	_, _, _ = ackSubB.Recv()
}

func TestCoordinatorExitsOnGraceDeadline(t *testing.T) {
	b := bus.New()
	bus.Subscribe[events.ShutdownAcknowledged](b) // one required ack that never arrives

	exited := make(chan struct{})
	exit := func(code int) { close(exited) }

	c := New(b, 30*time.Millisecond, exit)
	assert.NoError(t, c.Start())

	bus.Send(b, events.RequestShutdown{})

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not exit after grace deadline")
	}
}

func TestCoordinatorExitsImmediatelyWithNoSubscribers(t *testing.T) {
	b := bus.New()
	exited := make(chan struct{})
	exit := func(code int) { close(exited) }

	c := New(b, time.Second, exit)
	assert.NoError(t, c.Start())

	bus.Send(b, events.RequestShutdown{})

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not exit immediately")
	}
}
