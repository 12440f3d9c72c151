// Package filter implements the PacketFilter admission stage: given a raw
// datagram it decides ALLOW/DROP and, on ALLOW, produces the payload to
// publish on the bus.
package filter

import (
	"github.com/SutekhVRC/VOR/config"
	"github.com/SutekhVRC/VOR/debugtap"
	"github.com/SutekhVRC/VOR/oscutil"
)

// Decision is the outcome of evaluating one datagram.
type Decision int

const (
	Drop Decision = iota
	Allow
)

// Filter evaluates datagrams against a FilterSpec. It is constructed once
// per engine run with an owned, immutable copy of the spec, handed to
// Ingress for the lifetime of the engine.
type Filter struct {
	spec      config.FilterSpec
	mode      config.FilterMode
	addresses map[string]struct{}
	tap       *debugtap.Tap // nil when no debug tap is attached
}

// New builds a Filter from a FilterSpec, optionally wired to a DebugTap.
func New(spec config.FilterSpec, tap *debugtap.Tap) *Filter {
	addrs := make(map[string]struct{}, len(spec.Addresses()))
	for _, a := range spec.Addresses() {
		addrs[a] = struct{}{}
	}
	return &Filter{
		spec:      spec,
		mode:      spec.Mode(),
		addresses: addrs,
		tap:       tap,
	}
}

// Evaluate runs one datagram through the filter. On Allow, payload is the
// bytes to publish to the bus (either the re-encoded canonical form, or
// the raw datagram when it failed to decode and FilterBadPackets is off).
func (f *Filter) Evaluate(buf []byte, fromAddr string) (decision Decision, payload []byte) {
	pkt, decodeErr := oscutil.Decode(buf)
	malformed := decodeErr != nil

	switch f.mode {
	case config.FilterWhitelist:
		decision, payload = f.evaluateWhitelist(pkt, malformed, buf)
	case config.FilterBlacklist:
		decision, payload = f.evaluateBlacklist(pkt, malformed, buf)
	default:
		decision, payload = f.evaluateNone(pkt, malformed, buf)
	}

	if f.tap != nil {
		var parsed *oscutil.Packet
		if !malformed {
			p := pkt
			parsed = &p
		}
		f.tap.Incoming(debugtap.IncomingRecord{
			Buffer:   append([]byte(nil), buf...),
			Packet:   parsed,
			Decision: decisionTag(decision),
			FromAddr: fromAddr,
		})
	}

	return decision, payload
}

func decisionTag(d Decision) debugtap.Decision {
	if d == Allow {
		return debugtap.Allowed
	}
	return debugtap.Dropped
}

// inList reports whether the decoded packet's address is in the active
// list. Bundles are never "in the list" for either mode: a bundle has no
// single address to match against.
func (f *Filter) inList(pkt oscutil.Packet) bool {
	if pkt.IsBundle {
		return false
	}
	_, ok := f.addresses[pkt.Address]
	return ok
}

func (f *Filter) evaluateWhitelist(pkt oscutil.Packet, malformed bool, raw []byte) (Decision, []byte) {
	if malformed {
		return f.malformedOutcome(raw)
	}
	if f.inList(pkt) {
		enc, err := pkt.Encode()
		if err != nil {
			// Encoding a packet we just decoded should not fail; treat as
			// malformed defensively.
			return f.malformedOutcome(raw)
		}
		return Allow, enc
	}
	return Drop, nil
}

func (f *Filter) evaluateBlacklist(pkt oscutil.Packet, malformed bool, raw []byte) (Decision, []byte) {
	if malformed {
		return f.malformedOutcome(raw)
	}
	if f.inList(pkt) {
		return Drop, nil
	}
	enc, err := pkt.Encode()
	if err != nil {
		return f.malformedOutcome(raw)
	}
	return Allow, enc
}

func (f *Filter) evaluateNone(pkt oscutil.Packet, malformed bool, raw []byte) (Decision, []byte) {
	if malformed {
		return f.malformedOutcome(raw)
	}
	enc, err := pkt.Encode()
	if err != nil {
		return f.malformedOutcome(raw)
	}
	return Allow, enc
}

// malformedOutcome applies FilterSpec.FilterBadPackets to a datagram that
// failed to decode (or, defensively, failed to re-encode).
func (f *Filter) malformedOutcome(raw []byte) (Decision, []byte) {
	if f.spec.FilterBadPackets {
		return Drop, nil
	}
	return Allow, append([]byte(nil), raw...)
}
