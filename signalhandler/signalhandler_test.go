package signalhandler

import (
	"os"
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/bus"
	"oss.nandlabs.io/cirrusd/events"
	"oss.nandlabs.io/cirrusd/testing/assert"
)

func TestHandlerRequestsShutdownOnSignal(t *testing.T) {
	b := bus.New()
	requests := bus.Subscribe[events.RequestShutdown](b)

	h := New(b)
	assert.NoError(t, h.Start())

	h.sigs <- os.Interrupt

	select {
	case <-requests.Chan():
	case <-time.After(time.Second):
		t.Fatal("RequestShutdown was not published")
	}

	assert.NoError(t, h.Stop())
}

func TestHandlerStopWithoutSignalReturns(t *testing.T) {
	b := bus.New()
	h := New(b)
	assert.NoError(t, h.Start())
	assert.NoError(t, h.Stop())
}
