// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"fmt"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/wire"
)

// Command is the generic command sent over the application API channel.
type Command interface {
	// String returns a string representation of the Command.
	String() string
}

// InitializeFlood triggers a topology discovery flood.
type InitializeFlood struct{}

// String returns a string representation of the InitializeFlood command.
func (c *InitializeFlood) String() string {
	return "InitializeFlood"
}

// GetEdgeNodes asks for the client and server nodes discovered so far.
// The result arrives on the edge nodes response channel; nothing is
// sent when no edge nodes are known.
type GetEdgeNodes struct{}

// String returns a string representation of the GetEdgeNodes command.
func (c *GetEdgeNodes) String() string {
	return "GetEdgeNodes"
}

// GetUnreadMessages drains the messages received since the previous
// drain onto the unread response channel.  Nothing is sent when there
// is nothing unread.
type GetUnreadMessages struct{}

// String returns a string representation of the GetUnreadMessages command.
func (c *GetUnreadMessages) String() string {
	return "GetUnreadMessages"
}

// GetClientsFromServer asks a server for its registered clients.
// Accepted and currently ignored.
type GetClientsFromServer struct {
	// Server is the server to interrogate.
	Server wire.NodeID
}

// String returns a string representation of the GetClientsFromServer command.
func (c *GetClientsFromServer) String() string {
	return fmt.Sprintf("GetClientsFromServer: %d", c.Server)
}

// SendMessage fragments a message and sends it towards its destination.
// The engine assigns Message.SessionID.
type SendMessage struct {
	// Message is the message to deliver.
	Message *message.Message
}

// String returns a string representation of the SendMessage command.
func (c *SendMessage) String() string {
	return fmt.Sprintf("SendMessage: %v", c.Message)
}
