// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import "fmt"

// SourceRoutingHeader carries the full precomputed hop sequence of a
// packet plus a cursor marking forwarding progress.  Hops[0] is the
// originating node, Hops[len-1] the destination, and Hops[HopIndex] the
// node currently holding (or about to receive) the packet.
type SourceRoutingHeader struct {
	HopIndex int
	Hops     []NodeID
}

// NewSourceRoutingHeader builds a header over hops with the cursor at
// hopIndex.
func NewSourceRoutingHeader(hops []NodeID, hopIndex int) SourceRoutingHeader {
	return SourceRoutingHeader{HopIndex: hopIndex, Hops: hops}
}

// Source returns the first hop of the route, if any.
func (h SourceRoutingHeader) Source() (NodeID, bool) {
	if len(h.Hops) == 0 {
		return 0, false
	}
	return h.Hops[0], true
}

// Destination returns the final hop of the route, if any.
func (h SourceRoutingHeader) Destination() (NodeID, bool) {
	if len(h.Hops) == 0 {
		return 0, false
	}
	return h.Hops[len(h.Hops)-1], true
}

// CurrentHop returns the hop under the cursor, if the cursor is within
// the route.
func (h SourceRoutingHeader) CurrentHop() (NodeID, bool) {
	if h.HopIndex < 0 || h.HopIndex >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex], true
}

// String returns a string representation of the header.
func (h SourceRoutingHeader) String() string {
	return fmt.Sprintf("%v@%d", h.Hops, h.HopIndex)
}
