// Package bus implements the Broadcast Bus: a bounded, multi-subscriber
// publish/subscribe queue of byte buffers with per-subscriber lag
// detection. A slow subscriber degrades only itself — it never blocks the
// publisher or other subscribers.
package bus

import (
	"errors"
	"sync"
)

// ErrCapacity is returned by New for a non-positive capacity.
var ErrCapacity = errors.New("bus: capacity must be positive")

// Item is one value delivered to a Subscriber's channel. Exactly one of
// the two cases applies:
//   - Lagged == 0: Buf holds a published buffer, in publish order.
//   - Lagged  > 0: the bus dropped Lagged buffer(s) for this subscriber
//     before it could keep up; Buf is nil. The subscriber should treat
//     this as a soft event and continue.
type Item struct {
	Buf    []byte
	Lagged uint64
}

// Bus is a bounded multi-subscriber publish/subscribe queue. The zero
// value is not usable; construct with New.
type Bus struct {
	capacity int

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// New creates a Bus with a fixed per-subscriber capacity, fixed for the
// lifetime of the Bus.
func New(capacity int) (*Bus, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscriber]struct{}),
	}, nil
}

// Subscribe produces a new, independent Subscriber. A Subscriber created
// after a Publish call never observes that publish; this holds here
// because Subscribe and Publish both take the same mutex, and a new
// Subscriber's channel starts empty.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscriber{ch: make(chan Item, b.capacity)}
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes a Subscriber from the bus and closes its channel,
// so any pending Recv observes the closed signal. Safe to call more than
// once.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish delivers buf to every current subscriber, non-blocking. A
// subscriber whose channel is full does not receive buf: its oldest queued
// item is evicted and a lag marker counting both buf and the evicted item
// is queued instead, rather than blocking the publisher. Publish is only
// ever called by a single
// producer (the Ingress Reader — at most one exists per engine instance),
// so the evict-then-insert sequence below cannot race with another
// publisher.
func (b *Bus) Publish(buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- Item{Buf: buf}:
		default:
			// Slow subscriber: evict the oldest item to make room, then
			// record how many messages were lost: buf itself, plus the
			// evicted item (or the count it carried, if it was a lag
			// marker).
			missed := uint64(1)
			select {
			case old := <-s.ch:
				if old.Lagged > 0 {
					missed += old.Lagged
				} else {
					missed++
				}
			default:
			}
			select {
			case s.ch <- Item{Lagged: missed}:
			default:
				// Not reached: a slot is free at this point, and only this
				// publisher adds items, under b.mu.
			}
		}
	}
}

// Close tears down the bus: every current subscriber's channel is closed,
// so a pending or future Recv observes the closed signal. Subsequent
// Publish/Subscribe calls are no-ops / return closed channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	b.subs = make(map[*Subscriber]struct{})
}

// Subscriber is an independent receiver of a Bus. Per-subscriber ordering
// is FIFO modulo lag gaps; across subscribers, order is not synchronized.
type Subscriber struct {
	ch chan Item
}

// C returns the channel to select/receive on. A closed channel (ok ==
// false on receive) signals the bus was closed.
func (s *Subscriber) C() <-chan Item {
	return s.ch
}

// Recv blocks until the next Item, or the bus closes. ok is false iff the
// bus closed with nothing left queued for this subscriber.
func (s *Subscriber) Recv() (Item, bool) {
	item, ok := <-s.ch
	return item, ok
}
