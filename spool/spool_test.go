// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package spool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/wire"
)

func fragPacket(session uint64, hops []wire.NodeID, index, total uint64) wire.Packet {
	frag := &wire.Fragment{Index: index, Total: total, Length: 1}
	frag.Data[0] = byte(index)
	return wire.Packet{
		Header:  wire.NewSourceRoutingHeader(hops, 1),
		Session: session,
		Payload: frag,
	}
}

func TestStoreFragmentLifecycle(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	hops := []wire.NodeID{7, 2, 3}
	id := MessageID{Session: 11, Sender: 7}

	require.False(s.SessionComplete(id))
	_, ok := s.FragmentCount(id)
	require.False(ok)

	require.NoError(s.StoreFragment(fragPacket(11, hops, 0, 2)))
	n, ok := s.FragmentCount(id)
	require.True(ok)
	require.Equal(uint64(1), n)
	require.False(s.SessionComplete(id))

	require.NoError(s.StoreFragment(fragPacket(11, hops, 1, 2)))
	require.True(s.SessionComplete(id))

	pkts, ok := s.Fragments(id)
	require.True(ok)
	require.Len(pkts, 2)
}

func TestStoreFragmentDuplicate(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	hops := []wire.NodeID{7, 2, 3}
	id := MessageID{Session: 5, Sender: 7}

	require.NoError(s.StoreFragment(fragPacket(5, hops, 0, 2)))
	require.NoError(s.StoreFragment(fragPacket(5, hops, 0, 2)))

	n, ok := s.FragmentCount(id)
	require.True(ok)
	require.Equal(uint64(1), n)
	require.False(s.SessionComplete(id))
}

func TestStoreFragmentWrongKind(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	pkt := wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{1, 2}, 1),
		Session: 9,
		Payload: &wire.Ack{FragmentIndex: 0},
	}
	require.ErrorIs(s.StoreFragment(pkt), ErrWrongPacketKind)
}

func TestStoreFragmentNoSource(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	require.Error(s.StoreFragment(fragPacket(9, nil, 0, 1)))
}

func TestAckTransitions(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	hops := []wire.NodeID{1, 2, 3}
	id := MessageID{Session: 4, Sender: 1}

	require.NoError(s.StoreFragment(fragPacket(4, hops, 0, 2)))
	require.NoError(s.StoreFragment(fragPacket(4, hops, 1, 2)))

	done, known := s.AllFragmentsAcked(id)
	require.True(known)
	require.False(done)

	require.NoError(s.MarkAckReceived(PacketID{MessageID: id, Fragment: 0}))
	done, known = s.AllFragmentsAcked(id)
	require.True(known)
	require.False(done)

	require.NoError(s.MarkAckReceived(PacketID{MessageID: id, Fragment: 1}))
	done, known = s.AllFragmentsAcked(id)
	require.True(known)
	require.True(done)

	err := s.MarkAckReceived(PacketID{MessageID: id, Fragment: 7})
	require.ErrorIs(err, ErrUnknownPacket)

	_, known = s.AllFragmentsAcked(MessageID{Session: 99, Sender: 1})
	require.False(known)
}

func TestMessageReporting(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	m := &message.Message{SessionID: 3, Source: 8, Destination: 1, Body: []byte("hi")}
	id := MessageID{Session: 3, Sender: 8}

	require.ErrorIs(s.MarkMessageReported(id), ErrUnknownMessage)

	s.StoreMessage(m)
	got, ok := s.Message(id)
	require.True(ok)
	require.Equal(m, got)

	require.False(s.MessageReported(id))
	require.NoError(s.MarkMessageReported(id))
	require.True(s.MessageReported(id))
}

func TestPacketReporting(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	hops := []wire.NodeID{6, 2}
	pid := PacketID{MessageID: MessageID{Session: 2, Sender: 6}, Fragment: 0}

	require.ErrorIs(s.MarkPacketReported(pid), ErrUnknownPacket)

	require.NoError(s.StoreFragment(fragPacket(2, hops, 0, 1)))
	require.False(s.PacketReported(pid))
	require.NoError(s.MarkPacketReported(pid))
	require.True(s.PacketReported(pid))
}

func TestUnreadMessageIDs(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := New()
	const self = wire.NodeID(9)

	s.StoreMessage(&message.Message{SessionID: 2, Source: 4, Destination: self, Body: []byte("b")})
	s.StoreMessage(&message.Message{SessionID: 1, Source: 5, Destination: self, Body: []byte("a")})
	s.StoreMessage(&message.Message{SessionID: 3, Source: self, Destination: 4, Body: []byte("mine")})

	ids := s.UnreadMessageIDs(self)
	require.Equal([]MessageID{
		{Session: 1, Sender: 5},
		{Session: 2, Sender: 4},
	}, ids)

	// Drained: nothing comes back a second time.
	require.Empty(s.UnreadMessageIDs(self))

	s.StoreMessage(&message.Message{SessionID: 7, Source: 4, Destination: self, Body: []byte("c")})
	ids = s.UnreadMessageIDs(self)
	require.Equal([]MessageID{{Session: 7, Sender: 4}}, ids)
}
