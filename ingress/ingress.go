// Package ingress implements the Ingress Reader: the single component
// that owns the listening UDP socket (spec.md §4.2). Its read loop uses a
// bounded receive deadline rather than a non-blocking poll (spec.md §4.2
// explicitly allows this substitution for the original's try_recv
// polling), following derp_client.go's recvTimeout idiom of
// SetReadDeadline + loop-and-continue-on-timeout.
package ingress

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/SutekhVRC/VOR/bus"
	"github.com/SutekhVRC/VOR/filter"
)

// MTU is the maximum datagram size read into a single buffer, canonical
// for OSC-over-UDP in this domain (spec.md glossary).
const MTU = 1536

// ReceiveTimeout bounds how long a single ReadFromUDP call may block,
// interleaving the shutdown check with receive (spec.md §4.2/§5).
const ReceiveTimeout = 1 * time.Second

// Bind opens the listening UDP socket. A bind failure here is an
// engine-level error (spec.md §7); the caller is expected to report it
// with status.EngineIndex and never call Run.
func Bind(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("ingress: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("ingress: bind %s: %w", addr, err)
	}
	return conn, nil
}

// Reader owns the listening socket for the lifetime of the engine.
type Reader struct {
	conn   *net.UDPConn
	filter *filter.Filter
	bus    *bus.Bus
	log    zerolog.Logger
}

// New constructs a Reader around an already-bound socket.
func New(conn *net.UDPConn, filt *filter.Filter, b *bus.Bus, log zerolog.Logger) *Reader {
	return &Reader{conn: conn, filter: filt, bus: b, log: log.With().Str("component", "ingress").Logger()}
}

// Run is the read loop. It owns conn and closes it on exit. shutdown is
// checked at least once per iteration, including immediately after a
// receive timeout (spec.md §4.2 "Termination").
func (r *Reader) Run(shutdown <-chan struct{}) {
	defer r.conn.Close()

	buf := make([]byte, MTU)
	r.log.Info().Msg("ingress reader started")
	for {
		select {
		case <-shutdown:
			r.log.Info().Msg("ingress reader shutdown")
			return
		default:
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(ReceiveTimeout)); err != nil {
			// Cannot meaningfully recover from a deadline-set failure;
			// treat the same as any other transient receive error.
			continue
		}

		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// Transient receive error (e.g. a spurious ICMP-triggered
			// WOULDBLOCK on some platforms): ignored, loop continues
			// (spec.md §4.2).
			continue
		}
		if n <= 0 {
			continue
		}

		decision, payload := r.filter.Evaluate(buf[:n], addr.String())
		if decision == filter.Allow {
			r.bus.Publish(payload)
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
