// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import "fmt"

// FragmentCapacity is the fixed payload capacity of a single fragment.
const FragmentCapacity = 128

// PacketKind enumerates the payload variants a Packet can carry.
type PacketKind uint8

const (
	KindFragment PacketKind = iota
	KindAck
	KindNack
	KindFloodRequest
	KindFloodResponse
)

// String returns a string representation of the PacketKind.
func (k PacketKind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindFloodRequest:
		return "flood request"
	case KindFloodResponse:
		return "flood response"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Payload is the tagged union of packet payloads.
type Payload interface {
	// Kind returns the payload variant.
	Kind() PacketKind
}

// Packet is the unit of transfer between nodes.
type Packet struct {
	Header  SourceRoutingHeader
	Session uint64
	Payload Payload
}

// String returns a string representation of the Packet.
func (p *Packet) String() string {
	return fmt.Sprintf("%v session %d via %v", p.Payload, p.Session, p.Header)
}

// Fragment is one bounded slice of a serialized application message.
// Data is a fixed-capacity buffer of which the first Length bytes are
// valid.
type Fragment struct {
	Index  uint64
	Total  uint64
	Length uint8
	Data   [FragmentCapacity]byte
}

// Kind implements Payload.
func (f *Fragment) Kind() PacketKind { return KindFragment }

// Bytes returns the valid prefix of the fragment buffer.
func (f *Fragment) Bytes() []byte { return f.Data[:f.Length] }

// String returns a string representation of the Fragment.
func (f *Fragment) String() string {
	return fmt.Sprintf("fragment %d/%d (%d bytes)", f.Index, f.Total, f.Length)
}

// Ack acknowledges receipt of one fragment of a session.
type Ack struct {
	FragmentIndex uint64
}

// Kind implements Payload.
func (a *Ack) Kind() PacketKind { return KindAck }

// String returns a string representation of the Ack.
func (a *Ack) String() string {
	return fmt.Sprintf("ack %d", a.FragmentIndex)
}

// NackReason is the reason code carried by a Nack.
type NackReason uint8

const (
	// RoutingError reports that Node could not forward to the next hop.
	RoutingError NackReason = iota

	// Dropped reports a fragment lost in transit with no routing fault.
	Dropped

	// DestinationNotRoutable reports a destination that cannot terminate
	// a message (a relay).
	DestinationNotRoutable

	// UnexpectedRecipient reports that the packet arrived at Node while
	// routed to somebody else.
	UnexpectedRecipient
)

// String returns a string representation of the NackReason.
func (r NackReason) String() string {
	switch r {
	case RoutingError:
		return "routing error"
	case Dropped:
		return "dropped"
	case DestinationNotRoutable:
		return "destination not routable"
	case UnexpectedRecipient:
		return "unexpected recipient"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Nack reports a delivery failure for one fragment.  Node identifies
// the reporting or offending hop for the reasons that carry one.
type Nack struct {
	FragmentIndex uint64
	Reason        NackReason
	Node          NodeID
}

// Kind implements Payload.
func (n *Nack) Kind() PacketKind { return KindNack }

// String returns a string representation of the Nack.
func (n *Nack) String() string {
	switch n.Reason {
	case RoutingError, UnexpectedRecipient:
		return fmt.Sprintf("nack %d: %v at %d", n.FragmentIndex, n.Reason, n.Node)
	default:
		return fmt.Sprintf("nack %d: %v", n.FragmentIndex, n.Reason)
	}
}

// FloodRequest is the broadcast discovery packet.  Every node that
// forwards it appends itself to PathTrace.
type FloodRequest struct {
	FloodID   uint64
	Initiator NodeID
	PathTrace []Vertex
}

// Kind implements Payload.
func (r *FloodRequest) Kind() PacketKind { return KindFloodRequest }

// String returns a string representation of the FloodRequest.
func (r *FloodRequest) String() string {
	return fmt.Sprintf("flood request %d from %d", r.FloodID, r.Initiator)
}

// Response converts the request into a flood response packet addressed
// back along the accumulated trace.  The trace is copied in request
// order; the route runs in reverse with the cursor on the first return
// hop.  The caller supplies the response packet's session id.
func (r *FloodRequest) Response(session uint64) Packet {
	trace := append([]Vertex(nil), r.PathTrace...)
	hops := make([]NodeID, 0, len(trace))
	for i := len(trace) - 1; i >= 0; i-- {
		hops = append(hops, trace[i].ID)
	}
	return Packet{
		Header:  NewSourceRoutingHeader(hops, 1),
		Session: session,
		Payload: &FloodResponse{FloodID: r.FloodID, PathTrace: trace},
	}
}

// FloodResponse carries a completed path trace back to the initiator.
type FloodResponse struct {
	FloodID   uint64
	PathTrace []Vertex
}

// Kind implements Payload.
func (r *FloodResponse) Kind() PacketKind { return KindFloodResponse }

// String returns a string representation of the FloodResponse.
func (r *FloodResponse) String() string {
	return fmt.Sprintf("flood response %d trace %v", r.FloodID, r.PathTrace)
}
