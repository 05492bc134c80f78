// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jarkko793/backend/assembler"
	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/core/log"
	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/netgraph"
	"github.com/jarkko793/backend/wire"
)

const testTimeout = 5 * time.Second

// harness wires a router with node id 1 to a scripted neighbor with
// node id 2 whose inbound channel the test drains directly.
type harness struct {
	ingress chan wire.Packet
	control chan controller.Command
	api     chan Command
	events  chan controller.Event
	edges   chan []wire.Vertex
	unread  chan []message.Message
	peer    chan wire.Packet
}

func newHarness(t *testing.T, maxResendAttempts int) (*Router, *harness) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	h := &harness{
		ingress: make(chan wire.Packet),
		control: make(chan controller.Command),
		api:     make(chan Command),
		events:  make(chan controller.Event, 64),
		edges:   make(chan []wire.Vertex, 1),
		unread:  make(chan []message.Message, 1),
		peer:    make(chan wire.Packet, 64),
	}
	r, err := New(&Config{
		LogBackend:        logBackend,
		NodeID:            1,
		Ingress:           h.ingress,
		Control:           h.control,
		API:               h.api,
		Neighbors:         map[wire.NodeID]chan<- wire.Packet{2: h.peer},
		Events:            h.events,
		EdgeNodes:         h.edges,
		Unread:            h.unread,
		MaxResendAttempts: maxResendAttempts,
	})
	require.NoError(err)
	t.Cleanup(r.Halt)
	return r, h
}

func waitEvent(t *testing.T, ch <-chan controller.Event) controller.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for an observer event")
		return nil
	}
}

func waitPacket(t *testing.T, ch <-chan wire.Packet) wire.Packet {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a packet")
		return wire.Packet{}
	}
}

// learnTopology injects a flood response teaching the router the line
// 1 (client) - 2 (relay) - 3 (server) and drains the topology event.
func learnTopology(t *testing.T, h *harness) {
	t.Helper()
	h.ingress <- wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{2, 1}, 1),
		Session: 1,
		Payload: &wire.FloodResponse{
			FloodID: 1,
			PathTrace: []wire.Vertex{
				{ID: 1, Kind: wire.Client},
				{ID: 2, Kind: wire.Relay},
				{ID: 3, Kind: wire.Server},
			},
		},
	}
	e := waitEvent(t, h.events)
	require.IsType(t, &controller.KnownNetworkGraphEvent{}, e)
}

// barrier forces the engine through one full command cycle so every
// previously injected input has been processed when it returns.
func barrier(t *testing.T, h *harness) {
	t.Helper()
	h.api <- &GetEdgeNodes{}
	select {
	case <-h.edges:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the edge nodes response")
	}
}

func requireNoEvent(t *testing.T, h *harness) {
	t.Helper()
	select {
	case e := <-h.events:
		t.Fatalf("unexpected observer event: %v", e)
	default:
	}
}

func requireNoPacket(t *testing.T, ch <-chan wire.Packet) {
	t.Helper()
	select {
	case pkt := <-ch:
		t.Fatalf("unexpected packet: %v", pkt)
	default:
	}
}

func TestRouterEndToEnd(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 0)

	// Discover the topology.
	h.api <- &InitializeFlood{}
	pkt := waitPacket(t, h.peer)
	req, ok := pkt.Payload.(*wire.FloodRequest)
	require.True(ok, "flooding must put a flood request on the neighbor channel")
	require.Equal(uint64(1), pkt.Session)
	require.Equal(wire.NodeID(1), req.Initiator)
	require.Equal([]wire.Vertex{{ID: 1, Kind: wire.Client}}, req.PathTrace)
	e := waitEvent(t, h.events)
	require.IsType(&controller.PacketSentEvent{}, e)

	h.ingress <- wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{2, 1}, 1),
		Session: 1,
		Payload: &wire.FloodResponse{
			FloodID: 1,
			PathTrace: []wire.Vertex{
				{ID: 1, Kind: wire.Client},
				{ID: 2, Kind: wire.Relay},
				{ID: 3, Kind: wire.Server},
			},
		},
	}
	e = waitEvent(t, h.events)
	graphEvent, ok := e.(*controller.KnownNetworkGraphEvent)
	require.True(ok, "a flood response must refresh the observer's topology view")
	require.Equal(wire.NodeID(1), graphEvent.Graph.Source)
	require.Equal([]netgraph.Node{
		{ID: 1, Kind: wire.Client, Neighbors: []wire.NodeID{2}},
		{ID: 2, Kind: wire.Relay, Neighbors: []wire.NodeID{1, 3}},
		{ID: 3, Kind: wire.Server, Neighbors: []wire.NodeID{2}},
	}, graphEvent.Graph.Nodes)

	h.api <- &GetEdgeNodes{}
	select {
	case edges := <-h.edges:
		require.Equal([]wire.Vertex{
			{ID: 1, Kind: wire.Client},
			{ID: 3, Kind: wire.Server},
		}, edges)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the edge nodes response")
	}

	// Send a message and watch it become a fragment on the wire.
	m := &message.Message{Source: 1, Destination: 3, Body: []byte("hello across the wire")}
	h.api <- &SendMessage{Message: m}

	e = waitEvent(t, h.events)
	starting, ok := e.(*controller.StartingMessageTransmissionEvent)
	require.True(ok, "sending must announce the transmission first")
	require.Equal(uint64(2), starting.Message.SessionID)

	pkt = waitPacket(t, h.peer)
	frag, ok := pkt.Payload.(*wire.Fragment)
	require.True(ok)
	require.Equal(uint64(2), pkt.Session)
	require.Equal([]wire.NodeID{1, 2, 3}, pkt.Header.Hops)
	require.Equal(1, pkt.Header.HopIndex)
	require.Equal(uint64(0), frag.Index)
	require.Equal(uint64(1), frag.Total)
	e = waitEvent(t, h.events)
	require.IsType(&controller.PacketSentEvent{}, e)

	// Acknowledge it.
	ack := wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{3, 2, 1}, 2),
		Session: 2,
		Payload: &wire.Ack{FragmentIndex: 0},
	}
	h.ingress <- ack
	e = waitEvent(t, h.events)
	sent, ok := e.(*controller.MessageSentSuccessfullyEvent)
	require.True(ok, "the final ack must complete the transmission")
	require.Equal(m, sent.Message)

	// A duplicate ack must not complete it twice.
	h.ingress <- ack
	barrier(t, h)
	requireNoEvent(t, h)

	// Receive a message from the server, in several fragments.
	inbound := &message.Message{
		SessionID:   7,
		Source:      3,
		Destination: 1,
		Body:        bytes.Repeat([]byte("payload "), 40),
	}
	pkts, err := assembler.Split(inbound, []wire.NodeID{3, 2, 1})
	require.NoError(err)
	require.Greater(len(pkts), 1, "the test body must span several fragments")
	for _, p := range pkts {
		p.Header.HopIndex = 2
		h.ingress <- p
	}
	e = waitEvent(t, h.events)
	received, ok := e.(*controller.MessageReceivedEvent)
	require.True(ok, "the last fragment must complete the message")
	require.Equal(inbound, received.Message)

	// A replayed fragment after completion must not re-emit it.
	replay := pkts[0]
	replay.Header.HopIndex = 2
	h.ingress <- replay
	barrier(t, h)
	requireNoEvent(t, h)

	// Drain it exactly once.
	h.api <- &GetUnreadMessages{}
	select {
	case msgs := <-h.unread:
		require.Len(msgs, 1)
		require.Equal(*inbound, msgs[0])
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the unread messages response")
	}
	h.api <- &GetUnreadMessages{}
	barrier(t, h)
	select {
	case msgs := <-h.unread:
		t.Fatalf("drained messages came back: %v", msgs)
	default:
	}
}

func TestRouterSendMessageNoRoute(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 0)

	// No topology yet: sending must be dropped without announcing a
	// transmission.
	h.api <- &SendMessage{Message: &message.Message{Source: 1, Destination: 3, Body: []byte("nope")}}

	h.api <- &InitializeFlood{}
	pkt := waitPacket(t, h.peer)
	require.IsType(&wire.FloodRequest{}, pkt.Payload)
	e := waitEvent(t, h.events)
	require.IsType(&controller.PacketSentEvent{}, e)
	requireNoEvent(t, h)
}

func TestRouterNackDroppedResend(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 1)

	learnTopology(t, h)

	m := &message.Message{Source: 1, Destination: 3, Body: []byte("fragile")}
	h.api <- &SendMessage{Message: m}
	waitEvent(t, h.events) // StartingMessageTransmission
	waitEvent(t, h.events) // PacketSent
	waitPacket(t, h.peer)

	nack := wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{2, 1}, 1),
		Session: 1,
		Payload: &wire.Nack{FragmentIndex: 0, Reason: wire.Dropped, Node: 2},
	}

	// First nack: within budget, the fragment is rerouted and resent.
	h.ingress <- nack
	pkt := waitPacket(t, h.peer)
	frag, ok := pkt.Payload.(*wire.Fragment)
	require.True(ok, "a dropped fragment must be resent")
	require.Equal(uint64(0), frag.Index)
	require.Equal([]wire.NodeID{1, 2, 3}, pkt.Header.Hops)
	e := waitEvent(t, h.events)
	require.IsType(&controller.PacketSentEvent{}, e)

	// Second nack: the budget of one is exhausted; the delivery is
	// abandoned and reported exactly once.
	h.ingress <- nack
	e = waitEvent(t, h.events)
	failed, ok := e.(*controller.MessageTransmissionFailedEvent)
	require.True(ok, "exhausting the retry budget must report a failure")
	require.Equal(m, failed.Message)
	require.Equal(wire.Dropped, failed.Reason)

	// Third nack: inert.
	h.ingress <- nack
	barrier(t, h)
	requireNoEvent(t, h)
	requireNoPacket(t, h.peer)
}

func TestRouterNackRoutingError(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 0)

	learnTopology(t, h)

	h.api <- &SendMessage{Message: &message.Message{Source: 1, Destination: 3, Body: []byte("detour")}}
	waitEvent(t, h.events) // StartingMessageTransmission
	waitEvent(t, h.events) // PacketSent
	waitPacket(t, h.peer)

	h.ingress <- wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{2, 1}, 1),
		Session: 1,
		Payload: &wire.Nack{FragmentIndex: 0, Reason: wire.RoutingError, Node: 2},
	}

	// A routing error floods before resending.
	pkt := waitPacket(t, h.peer)
	require.IsType(&wire.FloodRequest{}, pkt.Payload)
	pkt = waitPacket(t, h.peer)
	require.IsType(&wire.Fragment{}, pkt.Payload)
	waitEvent(t, h.events) // PacketSent for the flood request
	waitEvent(t, h.events) // PacketSent for the resend
	requireNoEvent(t, h)
}

func TestRouterNackDestinationNotRoutable(t *testing.T) {
	_, h := newHarness(t, 0)

	learnTopology(t, h)

	h.api <- &SendMessage{Message: &message.Message{Source: 1, Destination: 3, Body: []byte("void")}}
	waitEvent(t, h.events) // StartingMessageTransmission
	waitEvent(t, h.events) // PacketSent
	waitPacket(t, h.peer)

	h.ingress <- wire.Packet{
		Header:  wire.NewSourceRoutingHeader([]wire.NodeID{2, 1}, 1),
		Session: 1,
		Payload: &wire.Nack{FragmentIndex: 0, Reason: wire.DestinationNotRoutable, Node: 3},
	}

	// Nothing can be done; the fragment is neither resent nor failed.
	barrier(t, h)
	requireNoEvent(t, h)
	requireNoPacket(t, h.peer)
}

func TestRouterFloodRequestResponse(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 0)

	h.ingress <- wire.Packet{
		Header:  wire.NewSourceRoutingHeader(nil, 0),
		Session: 5,
		Payload: &wire.FloodRequest{
			FloodID:   5,
			Initiator: 2,
			PathTrace: []wire.Vertex{{ID: 2, Kind: wire.Client}},
		},
	}

	pkt := waitPacket(t, h.peer)
	resp, ok := pkt.Payload.(*wire.FloodResponse)
	require.True(ok, "a flood request must be answered with a flood response")
	require.Equal(uint64(5), resp.FloodID)
	require.Equal([]wire.Vertex{
		{ID: 2, Kind: wire.Client},
		{ID: 1, Kind: wire.Client},
	}, resp.PathTrace)
	require.Equal([]wire.NodeID{1, 2}, pkt.Header.Hops)
	require.Equal(1, pkt.Header.HopIndex)
	require.Equal(uint64(1), pkt.Session)

	e := waitEvent(t, h.events)
	require.IsType(&controller.PacketSentEvent{}, e)
}

func TestRouterNeighborCommands(t *testing.T) {
	require := require.New(t)
	_, h := newHarness(t, 0)

	learnTopology(t, h)

	// Adding a neighbor floods through every channel, old and new.
	otherPeer := make(chan wire.Packet, 8)
	h.control <- &controller.AddNeighbor{ID: 5, Ch: otherPeer}
	pkt := waitPacket(t, h.peer)
	require.IsType(&wire.FloodRequest{}, pkt.Payload)
	pkt = waitPacket(t, otherPeer)
	require.IsType(&wire.FloodRequest{}, pkt.Payload)
	waitEvent(t, h.events)
	waitEvent(t, h.events)

	// The neighbor change reset the learned topology.
	h.api <- &GetEdgeNodes{}
	h.api <- &InitializeFlood{}
	waitPacket(t, h.peer)
	waitPacket(t, otherPeer)
	waitEvent(t, h.events)
	waitEvent(t, h.events)
	select {
	case edges := <-h.edges:
		t.Fatalf("reset topology still has edge nodes: %v", edges)
	default:
	}

	// Removing the neighbor stops sends to it.
	h.control <- &controller.RemoveNeighbor{ID: 5}
	pkt = waitPacket(t, h.peer)
	require.IsType(&wire.FloodRequest{}, pkt.Payload)
	waitEvent(t, h.events)
	requireNoPacket(t, otherPeer)

	// Relay directed commands are accepted and ignored.  The flood
	// afterwards is only a barrier proving both were processed.
	h.control <- &controller.Crash{}
	h.control <- &controller.SetPacketDropRate{Rate: 0.5}
	h.api <- &InitializeFlood{}
	waitPacket(t, h.peer)
	waitEvent(t, h.events)
	requireNoEvent(t, h)
	requireNoPacket(t, h.peer)
	requireNoPacket(t, otherPeer)
}
