// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"fmt"

	"github.com/jarkko793/backend/assembler"
	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/internal/instrument"
	"github.com/jarkko793/backend/spool"
	"github.com/jarkko793/backend/wire"
)

func (r *Router) onPacket(pkt wire.Packet) error {
	switch payload := pkt.Payload.(type) {
	case *wire.Fragment:
		return r.onFragment(pkt, payload)
	case *wire.Ack:
		return r.onAck(pkt, payload)
	case *wire.Nack:
		return r.onNack(pkt, payload)
	case *wire.FloodRequest:
		return r.onFloodRequest(payload)
	case *wire.FloodResponse:
		return r.onFloodResponse(payload)
	default:
		return fmt.Errorf("router: packet %v has unknown payload kind", pkt)
	}
}

// onFragment files an inbound fragment and, once its session is
// complete, reassembles and reports the message.
func (r *Router) onFragment(pkt wire.Packet, frag *wire.Fragment) error {
	if err := r.store.StoreFragment(pkt); err != nil {
		return err
	}
	sender, ok := pkt.Header.Source()
	if !ok {
		return fmt.Errorf("router: fragment %d of session %d has no source hop", frag.Index, pkt.Session)
	}
	fid := spool.MessageID{Session: pkt.Session, Sender: sender}
	r.archivePacket(spool.PacketID{MessageID: fid, Fragment: frag.Index}, pkt)

	if !r.store.SessionComplete(fid) {
		return nil
	}
	pkts, ok := r.store.Fragments(fid)
	if !ok {
		return fmt.Errorf("router: session %v is complete but its fragments are missing", fid)
	}
	m, err := assembler.Reassemble(pkts)
	if err != nil {
		return err
	}

	mid := spool.MessageID{Session: m.SessionID, Sender: m.Source}
	if r.store.MessageReported(mid) {
		// A duplicate fragment arrived after the session completed.
		return nil
	}
	r.store.StoreMessage(m)
	r.archiveMessage(mid, m)

	instrument.MessagesReceived()
	r.emit(&controller.MessageReceivedEvent{Message: m})
	return r.store.MarkMessageReported(mid)
}

// onAck marks the acknowledged fragment and, once every fragment of the
// session is acknowledged, reports the delivery.  The local node is the
// sender in the fragment's identity since acknowledgements only ever
// come back for fragments this node sent.
func (r *Router) onAck(pkt wire.Packet, ack *wire.Ack) error {
	id := spool.PacketID{
		MessageID: spool.MessageID{Session: pkt.Session, Sender: r.nodeID},
		Fragment:  ack.FragmentIndex,
	}
	if err := r.store.MarkAckReceived(id); err != nil {
		return err
	}
	r.archiveAck(id)

	done, known := r.store.AllFragmentsAcked(id.MessageID)
	if !known {
		return fmt.Errorf("router: acknowledged session %v is unknown", id.MessageID)
	}
	if !done || r.store.MessageReported(id.MessageID) {
		return nil
	}
	m, ok := r.store.Message(id.MessageID)
	if !ok {
		return fmt.Errorf("router: session %v is fully acknowledged but has no stored message", id.MessageID)
	}

	instrument.MessagesSent()
	r.emit(&controller.MessageSentSuccessfullyEvent{Message: m})
	return r.store.MarkMessageReported(id.MessageID)
}

// onNack reacts to a delivery failure for a fragment this node sent.
// Routing errors and misdeliveries trigger a topology rediscovery
// before the fragment is rerouted and resent; a drop is resent over a
// fresh route as is.  Each fragment has a bounded retry budget.
func (r *Router) onNack(pkt wire.Packet, nack *wire.Nack) error {
	id := spool.PacketID{
		MessageID: spool.MessageID{Session: pkt.Session, Sender: r.nodeID},
		Fragment:  nack.FragmentIndex,
	}
	stored, ok := r.store.Packet(id)
	if !ok {
		return fmt.Errorf("router: negative acknowledgement for unknown packet %v", id)
	}
	if !r.store.PacketReported(id) {
		return fmt.Errorf("router: negative acknowledgement for packet %v that was never sent", id)
	}

	if r.attempts[id] >= r.maxAttempts {
		// Retry budget exhausted; report the abandonment once and stay
		// inert for this fragment.
		return r.abandon(id, nack.Reason)
	}

	switch nack.Reason {
	case wire.DestinationNotRoutable:
		// The network says the destination cannot terminate fragments;
		// resending cannot change that.
		r.log.Warningf("Not resending packet %v: %v at node %d", id, nack.Reason, nack.Node)
		return nil
	case wire.RoutingError, wire.UnexpectedRecipient:
		// The topology that produced the route is stale; rediscover it
		// before trying again.
		if err := r.floodNetwork(); err != nil {
			return err
		}
	case wire.Dropped:
		// A lossy relay ate the fragment; a fresh route and a resend
		// suffice.
	default:
		return fmt.Errorf("router: negative acknowledgement for %v has unknown reason %d", id, nack.Reason)
	}

	r.attempts[id]++
	return r.resend(id, stored)
}

// abandon reports a terminal delivery failure for the fragment's
// message, once.
func (r *Router) abandon(id spool.PacketID, reason wire.NackReason) error {
	if r.store.MessageReported(id.MessageID) {
		return nil
	}
	m, ok := r.store.Message(id.MessageID)
	if !ok {
		return fmt.Errorf("router: abandoned session %v has no stored message", id.MessageID)
	}
	instrument.MessagesFailed()
	r.emit(&controller.MessageTransmissionFailedEvent{Message: m, Reason: reason})
	return r.store.MarkMessageReported(id.MessageID)
}

// resend reroutes the stored fragment and puts it back on the wire.
// The stored copy keeps its original route; only the outgoing packet
// carries the fresh one.
func (r *Router) resend(id spool.PacketID, pkt wire.Packet) error {
	dest, ok := pkt.Header.Destination()
	if !ok {
		return fmt.Errorf("router: stored packet %v has an empty route", id)
	}
	hops, err := r.routeTo(dest)
	if err != nil {
		return fmt.Errorf("router: failed to reroute packet %v to destination %d: %w", id, dest, err)
	}
	pkt.Header.Hops = hops

	instrument.Retransmissions()
	if err := r.sendPacket(pkt); err != nil {
		return err
	}
	return r.store.MarkPacketReported(id)
}

// onFloodRequest joins the flood by recording this node in the trace
// and answering back along the reversed trace.
func (r *Router) onFloodRequest(req *wire.FloodRequest) error {
	req.PathTrace = append(req.PathTrace, wire.Vertex{ID: r.nodeID, Kind: wire.Client})
	resp := req.Response(r.nextSessionID())
	if err := r.sendPacket(resp); err != nil {
		return fmt.Errorf("router: failed to answer flood request %d: %w", req.FloodID, err)
	}
	return nil
}

// onFloodResponse teaches the graph the trace carried by the response
// and mirrors the node's refreshed topology view to the observer.
func (r *Router) onFloodResponse(resp *wire.FloodResponse) error {
	snapshot := r.graph.AddPath(resp.PathTrace)
	r.emit(&controller.KnownNetworkGraphEvent{Graph: snapshot})
	return nil
}
