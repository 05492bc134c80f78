// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package spool

import (
	"fmt"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/wire"
)

// Archive is the persistent mirror of the in memory store.  The
// routing engine writes through to an Archive so a node's traffic can
// be inspected after it halts; nothing on the hot path reads it back.
type Archive interface {
	// StoreMessage persists a message under its id, overwriting any
	// prior entry.
	StoreMessage(id MessageID, m *message.Message) error

	// StorePacket persists a fragment packet under its id, overwriting
	// any prior entry.
	StorePacket(id PacketID, pkt wire.Packet) error

	// MarkPacketAcked flags the stored fragment as acknowledged.
	MarkPacketAcked(id PacketID) error

	// LoadMessage returns the message stored under id.
	LoadMessage(id MessageID) (*message.Message, error)

	// PacketAcked reports whether the stored fragment was acknowledged.
	PacketAcked(id PacketID) (bool, error)

	// Close flushes and closes the archive.
	Close()
}

type nopArchive struct{}

func (nopArchive) StoreMessage(MessageID, *message.Message) error { return nil }

func (nopArchive) StorePacket(PacketID, wire.Packet) error { return nil }

func (nopArchive) MarkPacketAcked(PacketID) error { return nil }

func (nopArchive) LoadMessage(id MessageID) (*message.Message, error) {
	return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, id)
}

func (nopArchive) PacketAcked(id PacketID) (bool, error) {
	return false, fmt.Errorf("%w: %v", ErrUnknownPacket, id)
}

func (nopArchive) Close() {}

// NewNopArchive returns an Archive that discards all writes, for use
// when archiving is disabled.
func NewNopArchive() Archive {
	return nopArchive{}
}
