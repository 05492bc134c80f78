// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package spool tracks per session fragment accumulation and message
// delivery status for the routing engine.  All state is in memory and
// lives for the lifetime of the engine; the simulated session space is
// bounded by run duration, so nothing is ever evicted.
//
// The store performs no locking.  The routing engine goroutine is its
// only owner.
package spool

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/wire"
)

var (
	// ErrWrongPacketKind is returned when an operation expecting a
	// fragment packet is handed any other kind.
	ErrWrongPacketKind = errors.New("spool: packet is not a fragment")

	// ErrUnknownMessage is returned when no message is stored under the
	// given id.
	ErrUnknownMessage = errors.New("spool: unknown message")

	// ErrUnknownPacket is returned when no fragment is stored under the
	// given id.
	ErrUnknownPacket = errors.New("spool: unknown packet")
)

// MessageID identifies a reassembled or outbound message.  Sender is
// the originating node of the session: for inbound fragments it is the
// first hop of the route that delivered them, for outbound messages
// the local node.
type MessageID struct {
	Session uint64
	Sender  wire.NodeID
}

// String returns a string representation of the MessageID.
func (id MessageID) String() string {
	return fmt.Sprintf("%d:%d", id.Session, id.Sender)
}

// PacketID identifies one fragment packet of a session.
type PacketID struct {
	MessageID
	Fragment uint64
}

// String returns a string representation of the PacketID.
func (id PacketID) String() string {
	return fmt.Sprintf("%d:%d:%d", id.Session, id.Sender, id.Fragment)
}

// fragmentGroup accumulates the fragments of one session.  A duplicate
// index overwrites the stored packet but never advances the received
// counter, so received can never exceed total.
type fragmentGroup struct {
	packets  map[uint64]wire.Packet
	total    uint64
	received uint64
}

// Store is the session and fragment store.
type Store struct {
	messages map[MessageID]*message.Message
	groups   map[MessageID]*fragmentGroup

	packetsReported  map[PacketID]struct{}
	messagesReported map[MessageID]struct{}
	messagesRead     map[MessageID]struct{}
	acked            map[PacketID]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		messages:         make(map[MessageID]*message.Message),
		groups:           make(map[MessageID]*fragmentGroup),
		packetsReported:  make(map[PacketID]struct{}),
		messagesReported: make(map[MessageID]struct{}),
		messagesRead:     make(map[MessageID]struct{}),
		acked:            make(map[PacketID]struct{}),
	}
}

// StoreMessage indexes m by its session and source, overwriting any
// prior entry under the same key.
func (s *Store) StoreMessage(m *message.Message) {
	s.messages[MessageID{Session: m.SessionID, Sender: m.Source}] = m
}

// Message returns the message stored under id.
func (s *Store) Message(id MessageID) (*message.Message, bool) {
	m, ok := s.messages[id]
	return m, ok
}

// StoreFragment files a fragment packet under the session derived from
// the packet's session id and the first hop of its route.
func (s *Store) StoreFragment(pkt wire.Packet) error {
	frag, ok := pkt.Payload.(*wire.Fragment)
	if !ok {
		return fmt.Errorf("%w: %v", ErrWrongPacketKind, pkt.Payload)
	}
	sender, ok := pkt.Header.Source()
	if !ok {
		return fmt.Errorf("spool: fragment %d of session %d has no source hop", frag.Index, pkt.Session)
	}

	id := MessageID{Session: pkt.Session, Sender: sender}
	group, ok := s.groups[id]
	if !ok {
		group = &fragmentGroup{
			packets: make(map[uint64]wire.Packet),
			total:   frag.Total,
		}
		s.groups[id] = group
	}

	if _, dup := group.packets[frag.Index]; !dup {
		group.received++
	}
	group.packets[frag.Index] = pkt
	return nil
}

// Packet returns the fragment packet stored under id.
func (s *Store) Packet(id PacketID) (wire.Packet, bool) {
	group, ok := s.groups[id.MessageID]
	if !ok {
		return wire.Packet{}, false
	}
	pkt, ok := group.packets[id.Fragment]
	return pkt, ok
}

// FragmentCount returns how many distinct fragments of the session have
// been stored.
func (s *Store) FragmentCount(id MessageID) (uint64, bool) {
	group, ok := s.groups[id]
	if !ok {
		return 0, false
	}
	return group.received, true
}

// SessionComplete reports whether every declared fragment of the
// session has been stored.
func (s *Store) SessionComplete(id MessageID) bool {
	group, ok := s.groups[id]
	return ok && group.received == group.total
}

// Fragments returns the stored fragment packets of the session, in no
// particular order.
func (s *Store) Fragments(id MessageID) ([]wire.Packet, bool) {
	group, ok := s.groups[id]
	if !ok {
		return nil, false
	}
	pkts := make([]wire.Packet, 0, len(group.packets))
	for _, pkt := range group.packets {
		pkts = append(pkts, pkt)
	}
	return pkts, true
}

// AllFragmentsAcked reports whether every fragment stored for the
// session has an acknowledgement.  The second result is false when the
// session is unknown.
func (s *Store) AllFragmentsAcked(id MessageID) (bool, bool) {
	group, ok := s.groups[id]
	if !ok {
		return false, false
	}
	for idx := range group.packets {
		if _, acked := s.acked[PacketID{MessageID: id, Fragment: idx}]; !acked {
			return false, true
		}
	}
	return true, true
}

// MarkAckReceived records an acknowledgement for the fragment stored
// under id.
func (s *Store) MarkAckReceived(id PacketID) error {
	if _, ok := s.Packet(id); !ok {
		return fmt.Errorf("%w: %v", ErrUnknownPacket, id)
	}
	s.acked[id] = struct{}{}
	return nil
}

// MarkMessageReported records that the message was reported to the
// observer.
func (s *Store) MarkMessageReported(id MessageID) error {
	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownMessage, id)
	}
	s.messagesReported[id] = struct{}{}
	return nil
}

// MessageReported reports whether the message was already reported to
// the observer.
func (s *Store) MessageReported(id MessageID) bool {
	_, ok := s.messagesReported[id]
	return ok
}

// MarkPacketReported records that the fragment was mirrored to the
// observer as sent.
func (s *Store) MarkPacketReported(id PacketID) error {
	if _, ok := s.Packet(id); !ok {
		return fmt.Errorf("%w: %v", ErrUnknownPacket, id)
	}
	s.packetsReported[id] = struct{}{}
	return nil
}

// PacketReported reports whether the fragment was mirrored to the
// observer.
func (s *Store) PacketReported(id PacketID) bool {
	_, ok := s.packetsReported[id]
	return ok
}

// UnreadMessageIDs returns every stored message id not yet marked read
// and not authored by excluding, sorted by session then sender, and
// marks each returned id read.  Repeated calls therefore drain: a
// message is returned at most once.  An empty result means nothing was
// unread.
func (s *Store) UnreadMessageIDs(excluding wire.NodeID) []MessageID {
	var ids []MessageID
	for id := range s.messages {
		if id.Sender == excluding {
			continue
		}
		if _, read := s.messagesRead[id]; read {
			continue
		}
		ids = append(ids, id)
		s.messagesRead[id] = struct{}{}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Session != ids[j].Session {
			return ids[i].Session < ids[j].Session
		}
		return ids[i].Sender < ids[j].Sender
	})
	return ids
}
