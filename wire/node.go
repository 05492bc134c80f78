// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package wire defines the packet shapes exchanged between nodes of the
// simulated network: source routed fragments, acknowledgements, and the
// flood discovery packets.  Packets travel between nodes over Go
// channels supplied by the simulation harness.
package wire

import "fmt"

// NodeID identifies a network participant.
type NodeID uint8

// NodeKind is the role a node plays in the network.
type NodeKind uint8

const (
	// Client originates and consumes application messages.
	Client NodeKind = iota

	// Relay forwards packets and does nothing else.
	Relay

	// Server terminates application messages.
	Server
)

// String returns a string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case Client:
		return "client"
	case Relay:
		return "relay"
	case Server:
		return "server"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Vertex is a node identity as it appears in flood path traces and in
// the topology graph: the same id under two kinds is two distinct
// vertices.
type Vertex struct {
	ID   NodeID
	Kind NodeKind
}

// String returns a string representation of the Vertex.
func (v Vertex) String() string {
	return fmt.Sprintf("%d/%v", v.ID, v.Kind)
}
