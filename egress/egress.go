// Package egress implements the Egress Route: one worker per enabled
// RouteSpec, binding an ephemeral send socket and forwarding buffers
// consumed from the Broadcast Bus to the route's destination (spec.md
// §4.4). The state machine (bind failure -> Error+exit; send failure ->
// Error, stay in loop; shutdown/closed -> Stopped+exit; lagged ->
// continue) is taken directly from original_source/routing.rs::route_app.
package egress

import (
	"net"

	"github.com/rs/zerolog"

	"github.com/SutekhVRC/VOR/bus"
	"github.com/SutekhVRC/VOR/config"
	"github.com/SutekhVRC/VOR/debugtap"
	"github.com/SutekhVRC/VOR/oscutil"
	"github.com/SutekhVRC/VOR/status"
)

// Route is one downstream application's egress worker.
type Route struct {
	spec   config.RouteSpec
	sub    *bus.Subscriber
	status chan<- status.Update
	tap    *debugtap.Tap // nil when no debug tap is attached
	log    zerolog.Logger
}

// New constructs a Route. sub must already be subscribed to the bus
// before Run starts, matching spec.md §4.5's startup ordering ("subscribe
// the route to the bus, and spawn the Egress Route worker").
func New(spec config.RouteSpec, sub *bus.Subscriber, statusCh chan<- status.Update, tap *debugtap.Tap, log zerolog.Logger) *Route {
	return &Route{
		spec:   spec,
		sub:    sub,
		status: statusCh,
		tap:    tap,
		log:    log.With().Str("component", "egress").Str("route", spec.AppName).Int("index", spec.Index).Logger(),
	}
}

// Run binds the send socket and loops until shutdown, bus-closed, or a
// fatal condition. It never returns early on a send failure (spec.md
// §4.4: "this permits transient network errors ... to self-heal").
func (rt *Route) Run(shutdown <-chan struct{}) {
	raddr, err := net.ResolveUDPAddr("udp4", rt.spec.DestAddr())
	var conn *net.UDPConn
	if err == nil {
		conn, err = net.DialUDP("udp4", nil, raddr)
	}
	if err != nil {
		rt.emit(status.ErrorStatus(status.ErrBindRoute, "failed to bind egress socket for %s: %v", rt.spec.AppName, err))
		rt.log.Error().Err(err).Msg("failed to bind egress socket")
		return
	}
	defer conn.Close()

	rt.emit(status.Running())
	rt.log.Info().Msg("route started")

	for {
		select {
		case <-shutdown:
			rt.emit(status.Stopped())
			rt.log.Info().Msg("route shutdown")
			return
		case item, ok := <-rt.sub.C():
			if !ok {
				rt.emit(status.Stopped())
				rt.log.Info().Msg("route stopped: bus closed")
				return
			}
			if item.Lagged > 0 {
				rt.log.Warn().Uint64("lagged", item.Lagged).Msg("route lagged behind broadcast")
				continue
			}
			rt.send(conn, item.Buf)
		}
	}
}

func (rt *Route) send(conn *net.UDPConn, buf []byte) {
	if _, err := conn.Write(buf); err != nil {
		rt.emit(status.ErrorStatus(status.ErrSendRoute, "failed to send to %s: %v", rt.spec.AppName, err))
		rt.log.Error().Err(err).Msg("send failed")
		return
	}
	if rt.tap != nil {
		var parsed *oscutil.Packet
		if p, err := oscutil.Decode(buf); err == nil {
			parsed = &p
		}
		rt.tap.Outgoing(debugtap.OutgoingRecord{
			Buffer: append([]byte(nil), buf...),
			Packet: parsed,
			Route:  rt.spec.AppName,
			ToAddr: rt.spec.DestAddr(),
		})
	}
}

func (rt *Route) emit(s status.AppStatus) {
	select {
	case rt.status <- status.Update{Index: rt.spec.Index, Status: s}:
	default:
		// Status is push-only and best-effort (spec.md §7: "the consumer
		// is free to discard or aggregate"); never block the route loop
		// on a slow/absent status consumer.
	}
}
