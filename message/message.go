// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package message defines the application message exchanged between
// clients and servers, and its byte codec.
package message

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jarkko793/backend/wire"
)

// Message is one application payload.  SessionID is assigned by the
// sending node's routing engine when the message is transmitted.
type Message struct {
	SessionID   uint64      `cbor:"session_id"`
	Source      wire.NodeID `cbor:"source"`
	Destination wire.NodeID `cbor:"destination"`
	Body        []byte      `cbor:"body"`
}

// Encode serializes the message for fragmentation.
func (m *Message) Encode() ([]byte, error) {
	return cbor.Marshal(m)
}

// Decode parses a message from bytes produced by Encode.
func Decode(b []byte) (*Message, error) {
	m := new(Message)
	if err := cbor.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

// String returns a string representation of the Message.
func (m *Message) String() string {
	return fmt.Sprintf("message session %d from %d to %d (%d bytes)",
		m.SessionID, m.Source, m.Destination, len(m.Body))
}
