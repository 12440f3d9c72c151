// Package oscutil wraps github.com/hypebeast/go-osc so the rest of the
// engine never imports OSC wire-format types directly.
package oscutil

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// Packet is a decoded OSC packet: either a single message or a bundle of
// messages. The engine never interprets arguments; it only needs the
// address of a Message for filter matching and the ability to re-encode
// whatever it decoded.
type Packet struct {
	raw      osc.Packet
	IsBundle bool
	// Address is the message address when !IsBundle; empty for bundles,
	// since a bundle has no single address (spec.md §4.1).
	Address string
}

// Decode parses raw UDP bytes into a Packet. A decode failure means the
// datagram was not valid OSC (malformed).
func Decode(buf []byte) (Packet, error) {
	p, err := osc.ParsePacket(string(buf))
	if err != nil {
		return Packet{}, fmt.Errorf("oscutil: decode: %w", err)
	}
	switch v := p.(type) {
	case *osc.Message:
		return Packet{raw: v, IsBundle: false, Address: v.Address}, nil
	case *osc.Bundle:
		return Packet{raw: v, IsBundle: true}, nil
	default:
		return Packet{}, fmt.Errorf("oscutil: decode: unrecognized packet type %T", p)
	}
}

// Encode re-serializes a decoded Packet to its canonical byte form. This
// normalizes away transport-layer NUL padding.
func (p Packet) Encode() ([]byte, error) {
	b, err := p.raw.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("oscutil: encode: %w", err)
	}
	return b, nil
}
