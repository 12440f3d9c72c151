// Package debugtap implements the optional in-process debug tap: a
// non-blocking producer side used by PacketFilter and Egress Route, and a
// bounded, newest-first ring of at most 8,192 records an external
// observer can poll.
package debugtap

import (
	"sync"

	"github.com/SutekhVRC/VOR/oscutil"
)

// Decision tags an Incoming record as allowed or dropped by the filter.
type Decision int

const (
	Allowed Decision = iota
	Dropped
)

func (d Decision) String() string {
	if d == Allowed {
		return "ALLOWED"
	}
	return "DROPPED"
}

// IncomingRecord is produced by the PacketFilter for every evaluated
// datagram.
type IncomingRecord struct {
	Buffer   []byte
	Packet   *oscutil.Packet // nil when decoding failed
	Decision Decision
	FromAddr string
}

// OutgoingRecord is produced by an Egress Route on every successful send.
type OutgoingRecord struct {
	Buffer  []byte
	Packet  *oscutil.Packet // nil: best-effort decode failed
	Route   string
	ToAddr  string
}

// Record is the tagged union enqueued on the tap's internal channel.
type Record struct {
	Incoming *IncomingRecord
	Outgoing *OutgoingRecord
}

// MaxRecords is the ring's capacity.
const MaxRecords = 8192

// channelDepth bounds how many records may be in flight between producers
// and the drain loop before Send starts silently discarding.
const channelDepth = 1024

// drainBatch is the maximum number of records drained per Poll call.
const drainBatch = 256

// Tap collects DebugRecords from producers and exposes them to an
// observer via Poll. The zero value is not usable; construct with New.
type Tap struct {
	ch chan Record

	mu   sync.Mutex
	ring []Record // newest-first; ring[0] is the most recent record
}

// New constructs a Tap. There is no runtime on/off switch: callers that
// don't want the overhead simply don't wire a Tap into the filter/egress
// producers at all — attaching or not attaching is the switch.
func New() *Tap {
	return &Tap{
		ch:   make(chan Record, channelDepth),
		ring: make([]Record, 0, MaxRecords),
	}
}

// Incoming enqueues an Incoming record, non-blocking and drop-silent on a
// full channel.
func (t *Tap) Incoming(r IncomingRecord) {
	t.send(Record{Incoming: &r})
}

// Outgoing enqueues an Outgoing record, non-blocking and drop-silent.
func (t *Tap) Outgoing(r OutgoingRecord) {
	t.send(Record{Outgoing: &r})
}

func (t *Tap) send(r Record) {
	select {
	case t.ch <- r:
	default:
		// Channel full: drop. Producers never block on the tap.
	}
}

// Poll drains up to drainBatch pending records into the ring (newest
// first), truncating to MaxRecords, and reports how many were drained.
// Poll is the tap's only non-channel-send suspension point and is meant
// to be called periodically by an observer goroutine; it never blocks.
func (t *Tap) Poll() int {
	var drained []Record
drain:
	for len(drained) < drainBatch {
		select {
		case r := <-t.ch:
			drained = append(drained, r)
		default:
			break drain
		}
	}
	if len(drained) == 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Newest-first: prepend the batch in reverse arrival order, then the
	// existing ring, then truncate.
	merged := make([]Record, 0, len(drained)+len(t.ring))
	for i := len(drained) - 1; i >= 0; i-- {
		merged = append(merged, drained[i])
	}
	merged = append(merged, t.ring...)
	if len(merged) > MaxRecords {
		merged = merged[:MaxRecords]
	}
	t.ring = merged
	return len(drained)
}

// Records returns a snapshot of the current ring, newest first.
func (t *Tap) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.ring))
	copy(out, t.ring)
	return out
}

// Len reports the current number of buffered records.
func (t *Tap) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ring)
}
