// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package controller defines the command and event vocabulary spoken
// between a node and the simulation controller: commands flow from the
// controller into the node, events flow back out on the observer
// channel.
package controller

import (
	"fmt"

	"github.com/jarkko793/backend/wire"
)

// Command is the generic command sent over a node's control channel.
type Command interface {
	// String returns a string representation of the Command.
	String() string
}

// AddNeighbor attaches a direct neighbor and the channel used to hand
// packets to it.
type AddNeighbor struct {
	// ID is the neighbor's node id.
	ID wire.NodeID

	// Ch is the neighbor's inbound packet channel.
	Ch chan<- wire.Packet
}

// String returns a string representation of the AddNeighbor command.
func (c *AddNeighbor) String() string {
	return fmt.Sprintf("AddNeighbor: %d", c.ID)
}

// RemoveNeighbor detaches a direct neighbor.
type RemoveNeighbor struct {
	// ID is the neighbor's node id.
	ID wire.NodeID
}

// String returns a string representation of the RemoveNeighbor command.
func (c *RemoveNeighbor) String() string {
	return fmt.Sprintf("RemoveNeighbor: %d", c.ID)
}

// SetPacketDropRate adjusts a relay's simulated loss rate.  Client and
// server nodes accept it and do nothing.
type SetPacketDropRate struct {
	Rate float64
}

// String returns a string representation of the SetPacketDropRate command.
func (c *SetPacketDropRate) String() string {
	return fmt.Sprintf("SetPacketDropRate: %v", c.Rate)
}

// Crash tells a relay to stop forwarding.  Client and server nodes
// accept it and do nothing.
type Crash struct{}

// String returns a string representation of the Crash command.
func (c *Crash) String() string {
	return "Crash"
}
