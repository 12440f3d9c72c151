// Package router implements the Router Supervisor: it builds the routing
// graph, multiplexes ShutdownAll into per-worker shutdown signals, and
// coordinates teardown (spec.md §4.5). The startup sequence is taken
// step-for-step from original_source/routing.rs::route_main.
package router

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SutekhVRC/VOR/bus"
	"github.com/SutekhVRC/VOR/config"
	"github.com/SutekhVRC/VOR/debugtap"
	"github.com/SutekhVRC/VOR/egress"
	"github.com/SutekhVRC/VOR/filter"
	"github.com/SutekhVRC/VOR/ingress"
	"github.com/SutekhVRC/VOR/sched"
	"github.com/SutekhVRC/VOR/status"
)

// StatusBuffer bounds the status channel handed back to the caller, so a
// burst of route transitions (e.g. every route reporting Running at once)
// never blocks a worker (spec.md §7: "Status is push-only to the
// consumer").
const StatusBuffer = 256

// Control is the supervisor's control handle. The only control message
// required is ShutdownAll (spec.md §4.5).
type Control struct {
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stoppedCh    chan struct{}
}

// ShutdownAll signals the supervisor to tear down. A second call is a
// no-op (spec.md §8 "Idempotence of ShutdownAll").
func (c *Control) ShutdownAll() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
	})
}

// Wait blocks until the supervisor has finished tearing down every
// worker.
func (c *Control) Wait() {
	<-c.stoppedCh
}

// schedModeFor translates RouterSpec.AsyncMode into the sched package's
// Mode: async_mode true selects cooperative tasks, false selects
// dedicated threads (spec.md §5/§6).
func schedModeFor(rs config.RouterSpec) sched.Mode {
	if rs.AsyncMode {
		return sched.Cooperative
	}
	return sched.Dedicated
}

// Start brings up the routing graph and returns a Control handle plus a
// status channel (spec.md §6's `start` control-surface entry point).
// Start never spawns any worker if the RouterSpec or an enabled RouteSpec
// fails validation, or the queue capacity is non-positive, or the
// listening socket fails to
// bind; in the bind-failure case a single engine-level Error status
// (index status.EngineIndex) is delivered on the returned channel instead
// (spec.md §4.5 step 1, §7 "Engine bind failure").
func Start(rs config.RouterSpec, routes []config.RouteSpec, fs config.FilterSpec, tap *debugtap.Tap, log zerolog.Logger) (*Control, <-chan status.Update, error) {
	if err := rs.Validate(); err != nil {
		return nil, nil, fmt.Errorf("router: invalid router spec: %w", err)
	}
	capacity, err := rs.QueueCapacity()
	if err != nil {
		return nil, nil, fmt.Errorf("router: invalid router spec: %w", err)
	}
	for _, r := range routes {
		if !r.Enabled {
			continue
		}
		if err := r.Validate(); err != nil {
			return nil, nil, fmt.Errorf("router: invalid route spec %q: %w", r.AppName, err)
		}
	}

	statusCh := make(chan status.Update, StatusBuffer)

	// Step 1-2: bind the listening socket with a 1s receive deadline
	// applied inside ingress.Run itself.
	conn, bindErr := ingress.Bind(rs.ListenAddr())
	if bindErr != nil {
		statusCh <- status.Update{
			Index:  status.EngineIndex,
			Status: status.ErrorStatus(status.ErrBindListener, "failed to bind listening socket: %v", bindErr),
		}
		close(statusCh)
		log.Error().Err(bindErr).Msg("failed to bind listening socket, no workers spawned")
		return nil, statusCh, nil
	}

	// Step 3: the Broadcast Bus, at the configured capacity. Unlike
	// tokio::sync::broadcast::channel, bus.New does not implicitly
	// allocate a receiver, so there is nothing for the supervisor to
	// drop (spec.md §4.5 step 5; original_source/routing.rs drops
	// `_bcst_rx` explicitly).
	b, err := bus.New(capacity)
	if err != nil {
		// Unreachable given the QueueCapacity validation above, but kept
		// for defense in depth rather than a bare panic.
		conn.Close()
		return nil, nil, fmt.Errorf("router: %w", err)
	}

	f := filter.New(fs, tap)
	mode := schedModeFor(rs)

	c := &Control{
		shutdownCh: make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}

	// Step 4: one shutdown channel + bus subscription + worker per
	// enabled route.
	type spawnedRoute struct {
		shutdown chan struct{}
		handle   *sched.Handle
	}
	var spawned []spawnedRoute
	for _, rSpec := range routes {
		if !rSpec.Enabled {
			statusCh <- status.Update{Index: rSpec.Index, Status: status.Disabled()}
			continue
		}
		routeShutdown := make(chan struct{})
		sub := b.Subscribe()
		rt := egress.New(rSpec, sub, statusCh, tap, log)
		handle := sched.Spawn(mode, func() { rt.Run(routeShutdown) })
		spawned = append(spawned, spawnedRoute{shutdown: routeShutdown, handle: handle})
	}

	// Step 6: the Ingress Reader always runs on a dedicated OS thread,
	// since it performs blocking (timed) socket I/O (spec.md §4.5/§5).
	ingressShutdown := make(chan struct{})
	reader := ingress.New(conn, f, b, log)
	ingressHandle := sched.Spawn(sched.Dedicated, func() { reader.Run(ingressShutdown) })

	log.Info().Int("routes", len(spawned)).Str("mode", modeName(mode)).Msg("router started")

	// Step 7: the control loop, run on its own goroutine so Start can
	// return immediately with the Control handle (spec.md §6's `start`
	// returns a handle, not a blocking call).
	go func() {
		defer close(c.stoppedCh)
		<-c.shutdownCh

		// Control loop step 1: signal the Ingress Reader first; within
		// one receive-timeout interval the reader exits.
		close(ingressShutdown)
		ingressHandle.Wait()

		// Control loop step 2: signal every Egress Route.
		for _, sr := range spawned {
			close(sr.shutdown)
		}
		for _, sr := range spawned {
			sr.handle.Wait()
		}

		b.Close()
		log.Info().Msg("router shutdown complete")
	}()

	return c, statusCh, nil
}

func modeName(m sched.Mode) string {
	if m == sched.Cooperative {
		return "cooperative"
	}
	return "dedicated"
}
