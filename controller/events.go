// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import (
	"fmt"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/netgraph"
	"github.com/jarkko793/backend/wire"
)

// Event is the generic event sent over the observer channel.
type Event interface {
	// String returns a string representation of the Event.
	String() string
}

// PacketSentEvent is the event mirrored to the observer every time a
// packet is handed to a neighbor channel.
type PacketSentEvent struct {
	// Packet is the packet that was sent.
	Packet wire.Packet
}

// String returns a string representation of the PacketSentEvent.
func (e *PacketSentEvent) String() string {
	return fmt.Sprintf("PacketSent: %v", e.Packet)
}

// KnownNetworkGraphEvent is the event sent when a flood response has
// taught the node something about the topology.  It carries the node's
// complete current view, not a delta.
type KnownNetworkGraphEvent struct {
	// Graph is the node's current topology view.
	Graph netgraph.Snapshot
}

// String returns a string representation of the KnownNetworkGraphEvent.
func (e *KnownNetworkGraphEvent) String() string {
	return fmt.Sprintf("KnownNetworkGraph: %v", e.Graph)
}

// StartingMessageTransmissionEvent is the event sent when a node begins
// fragmenting and sending a new outbound message.
type StartingMessageTransmissionEvent struct {
	// Message is the outbound message.
	Message *message.Message
}

// String returns a string representation of the StartingMessageTransmissionEvent.
func (e *StartingMessageTransmissionEvent) String() string {
	return fmt.Sprintf("StartingMessageTransmission: %v", e.Message)
}

// MessageReceivedEvent is the event sent when an inbound session has
// been fully reassembled into a message.
type MessageReceivedEvent struct {
	// Message is the reassembled message.
	Message *message.Message
}

// String returns a string representation of the MessageReceivedEvent.
func (e *MessageReceivedEvent) String() string {
	return fmt.Sprintf("MessageReceived: %v", e.Message)
}

// MessageSentSuccessfullyEvent is the event sent when every fragment of
// an outbound message has been acknowledged.
type MessageSentSuccessfullyEvent struct {
	// Message is the fully acknowledged message.
	Message *message.Message
}

// String returns a string representation of the MessageSentSuccessfullyEvent.
func (e *MessageSentSuccessfullyEvent) String() string {
	return fmt.Sprintf("MessageSentSuccessfully: %v", e.Message)
}

// MessageTransmissionFailedEvent is the event sent when a node gives up
// resending a fragment after repeated negative acknowledgements.
type MessageTransmissionFailedEvent struct {
	// Message is the outbound message whose delivery was abandoned.
	Message *message.Message

	// Reason is the reason carried by the final negative acknowledgement.
	Reason wire.NackReason
}

// String returns a string representation of the MessageTransmissionFailedEvent.
func (e *MessageTransmissionFailedEvent) String() string {
	return fmt.Sprintf("MessageTransmissionFailed: %v (%v)", e.Message, e.Reason)
}
