// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package assembler converts application messages to and from ordered
// sequences of fragment packets, and constructs flood discovery
// packets.  It is stateless.
package assembler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/wire"
)

// ErrMalformedPayload is returned when reassembled bytes do not decode
// to a message.
var ErrMalformedPayload = errors.New("assembler: malformed message payload")

// fragments chunks b into fixed-capacity fragments.  An empty input
// still produces a single empty fragment so that every message owns at
// least one packet.
func fragments(b []byte) []wire.Fragment {
	n := (len(b) + wire.FragmentCapacity - 1) / wire.FragmentCapacity
	if n == 0 {
		n = 1
	}

	frags := make([]wire.Fragment, n)
	for i := range frags {
		chunk := b[i*wire.FragmentCapacity:]
		if len(chunk) > wire.FragmentCapacity {
			chunk = chunk[:wire.FragmentCapacity]
		}
		frags[i].Index = uint64(i)
		frags[i].Total = uint64(n)
		frags[i].Length = uint8(len(chunk))
		copy(frags[i].Data[:], chunk)
	}
	return frags
}

// Split serializes m and wraps each fragment in a packet carrying the
// given route and m's session id.  The route cursor starts at the first
// forwarding hop.
func Split(m *message.Message, hops []wire.NodeID) ([]wire.Packet, error) {
	b, err := m.Encode()
	if err != nil {
		return nil, fmt.Errorf("assembler: encode: %v", err)
	}

	frags := fragments(b)
	pkts := make([]wire.Packet, len(frags))
	for i := range frags {
		route := append([]wire.NodeID(nil), hops...)
		pkts[i] = wire.Packet{
			Header:  wire.NewSourceRoutingHeader(route, 1),
			Session: m.SessionID,
			Payload: &frags[i],
		}
	}
	return pkts, nil
}

// Reassemble rebuilds a message from fragment packets.  Packets of any
// other kind are ignored.  Fragments are ordered by index before
// concatenation; the caller need not sort.
func Reassemble(pkts []wire.Packet) (*message.Message, error) {
	frags := make([]*wire.Fragment, 0, len(pkts))
	for i := range pkts {
		if f, ok := pkts[i].Payload.(*wire.Fragment); ok {
			frags = append(frags, f)
		}
	}
	sort.Slice(frags, func(i, j int) bool { return frags[i].Index < frags[j].Index })

	var b []byte
	for _, f := range frags {
		b = append(b, f.Bytes()...)
	}

	m, err := message.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return m, nil
}

// NewFloodRequest builds a flood request packet with an empty route and
// a path trace seeded with the initiator as a client.
func NewFloodRequest(session uint64, initiator wire.NodeID) wire.Packet {
	return wire.Packet{
		Header:  wire.NewSourceRoutingHeader(nil, 0),
		Session: session,
		Payload: &wire.FloodRequest{
			FloodID:   session,
			Initiator: initiator,
			PathTrace: []wire.Vertex{{ID: initiator, Kind: wire.Client}},
		},
	}
}
