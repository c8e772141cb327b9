// Package bus implements a process-wide, type-keyed publish/subscribe
// registry. Publishing a value of type T delivers an owned copy to every
// subscriber of T that existed at the moment of publication; subscribing
// later never backfills history. It is the one way the daemon's long-lived
// services talk to each other, so that no service needs a reference to any
// other and the shutdown/reload protocols stay well defined.
package bus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"oss.nandlabs.io/cirrusd/l3"
)

var logger = l3.Get()

// ErrSenderClosed is returned by Recv once the bus has been closed and the
// subscriber's buffered backlog has been fully drained.
var ErrSenderClosed = errors.New("bus: sender closed")

// DefaultCapacity is the per-subscriber channel capacity used when a Bus is
// constructed without WithCapacity.
const DefaultCapacity = 128

// subscription is the untyped, per-type registration record held in the
// Bus's registry. The typed value channel lives behind the closures below so
// a single map can hold subscribers of arbitrarily many message types.
type subscription struct {
	typ     reflect.Type
	deliver func(v any) // non-blocking, drops oldest on backpressure
	close   func()
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithCapacity sets the per-subscriber channel capacity. The default is
// DefaultCapacity.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// Bus is the publish/subscribe registry. The zero value is not usable; build
// one with New. A *Bus is safe for concurrent use and doubles as the
// "sender" handle described in the package docs — there is no separate
// sender type, since a *Bus already is one, cheaply shared across goroutines.
type Bus struct {
	mu       sync.RWMutex
	subs     map[reflect.Type][]*subscription
	capacity int
	closed   bool
}

// New creates a Bus ready to accept subscriptions and publications.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:     make(map[reflect.Type][]*subscription),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close closes every subscriber channel. Subsequent Recv calls return
// ErrSenderClosed once each subscriber's buffered backlog drains, and Send
// becomes a no-op. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			s.close()
		}
	}
}

// Subscription is a typed receive handle for messages of type T.
type Subscription[T any] struct {
	raw     *subscription
	bus     *Bus
	ch      chan T
	dropped *uint64
}

// Subscribe registers a new subscriber for messages of type T. Only
// publications made after this call are delivered to it.
func Subscribe[T any](b *Bus) *Subscription[T] {
	var zero T
	typ := reflect.TypeOf(zero)

	ch := make(chan T, b.capacity)
	var dropped uint64
	var mu sync.Mutex

	s := &subscription{typ: typ}
	s.deliver = func(v any) {
		mu.Lock()
		defer mu.Unlock()
		tv := v.(T)
		select {
		case ch <- tv:
			return
		default:
		}
		// Full: drop the oldest buffered value to make room, then retry once.
		select {
		case <-ch:
			atomic.AddUint64(&dropped, 1)
		default:
		}
		select {
		case ch <- tv:
		default:
			// A concurrent Recv refilled the slot we just freed; extremely rare.
			atomic.AddUint64(&dropped, 1)
		}
	}
	s.close = func() { close(ch) }

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
	} else {
		b.subs[typ] = append(b.subs[typ], s)
	}
	return &Subscription[T]{raw: s, bus: b, ch: ch, dropped: &dropped}
}

// Recv awaits the next published value, or returns ErrSenderClosed once the
// bus has been closed and nothing further is buffered. If the subscriber had
// fallen behind and lost messages before this one, lag reports how many.
func (s *Subscription[T]) Recv() (v T, lag uint64, err error) {
	var ok bool
	v, ok = <-s.ch
	if !ok {
		err = ErrSenderClosed
		return
	}
	lag = atomic.SwapUint64(s.dropped, 0)
	if lag > 0 {
		logger.WarnF("subscriber of %s lagging, dropped %d message(s); resync from authoritative state", s.raw.typ, lag)
	}
	return
}

// Chan exposes the subscriber's channel for use in a select statement
// alongside timers and other subscriptions. A value received this way has
// already been delivered; check Lagged() afterward if resync matters to the
// caller.
func (s *Subscription[T]) Chan() <-chan T {
	return s.ch
}

// Lagged returns and resets the number of values dropped since the last
// call. Callers that read via Chan() in a select (rather than Recv) should
// poll this after each receive to detect and react to backpressure.
func (s *Subscription[T]) Lagged() uint64 {
	return atomic.SwapUint64(s.dropped, 0)
}

// Unsubscribe detaches the subscription from the bus. Already-buffered
// values are discarded; the channel is left open (not closed) since the bus
// itself is not closing, only this one subscriber is leaving.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	list := s.bus.subs[s.raw.typ]
	for i, entry := range list {
		if entry == s.raw {
			s.bus.subs[s.raw.typ] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Send publishes v to every current subscriber of T and returns the number
// of subscribers it was delivered (or queued) to. Send never blocks: a
// subscriber that has fallen behind loses its oldest buffered value instead
// of stalling the publisher.
func Send[T any](b *Bus, v T) int {
	var zero T
	typ := reflect.TypeOf(zero)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	list := b.subs[typ]
	for _, s := range list {
		s.deliver(v)
	}
	return len(list)
}

// SubscriberCount returns the number of current subscribers of T. The
// shutdown coordinator uses this to compute how many acknowledgments it
// must collect.
func SubscriberCount[T any](b *Bus) int {
	var zero T
	typ := reflect.TypeOf(zero)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[typ])
}
