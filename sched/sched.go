// Package sched hides the dual scheduling model of spec.md §5 (dedicated
// OS threads vs. cooperative tasks) behind a single Spawn call, per the
// design note in spec.md §9 ("hide the choice behind a single 'spawn route
// worker' abstraction"). Go's goroutine scheduler already multiplexes
// goroutines cooperatively across OS threads, so "cooperative" here is
// just a plain goroutine; "dedicated" additionally pins that goroutine to
// an exclusive OS thread for its lifetime with runtime.LockOSThread, the
// only primitive Go exposes for that distinction (DESIGN.md).
package sched

import "runtime"

// Mode selects how Spawn runs a worker.
type Mode int

const (
	// Cooperative runs fn as an ordinary goroutine, scheduled onto
	// whichever OS thread the Go runtime picks.
	Cooperative Mode = iota
	// Dedicated runs fn on a goroutine locked to its own OS thread for
	// its entire lifetime.
	Dedicated
)

// Handle lets a caller wait for a spawned worker to exit. It does not
// provide cancellation: workers are cancelled via their own shutdown
// channel argument (spec.md §5's "Cancellation" — ShutdownAll is the
// single cancellation primitive, not a scheduler-level abort).
type Handle struct {
	done chan struct{}
}

// Wait blocks until fn has returned.
func (h *Handle) Wait() {
	<-h.done
}

// Spawn runs fn under the selected Mode and returns a Handle to await its
// completion.
func Spawn(mode Mode, fn func()) *Handle {
	h := &Handle{done: make(chan struct{})}
	switch mode {
	case Dedicated:
		go func() {
			defer close(h.done)
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			fn()
		}()
	default:
		go func() {
			defer close(h.done)
			fn()
		}()
	}
	return h
}
