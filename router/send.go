// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"fmt"

	"github.com/jarkko793/backend/assembler"
	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/internal/instrument"
	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/spool"
	"github.com/jarkko793/backend/wire"
)

// sendPacket hands pkt to the neighbor under the routing cursor and
// mirrors the send to the observer.
func (r *Router) sendPacket(pkt wire.Packet) error {
	next, ok := pkt.Header.CurrentHop()
	if !ok {
		return fmt.Errorf("router: packet %v has no hop under its cursor", pkt)
	}
	ch, ok := r.neighbors[next]
	if !ok {
		return fmt.Errorf("router: no neighbor with id %d for packet %v", next, pkt)
	}
	select {
	case ch <- pkt:
	case <-r.HaltCh():
		return nil
	}
	instrument.PacketsSent()
	r.emit(&controller.PacketSentEvent{Packet: pkt})
	return nil
}

// sendMessage allocates a session, routes, fragments and sends m.  The
// message and every fragment are persisted before hitting the wire so
// acknowledgements and negative acknowledgements can be matched later.
func (r *Router) sendMessage(m *message.Message) error {
	m.SessionID = r.nextSessionID()

	hops, err := r.routeTo(m.Destination)
	if err != nil {
		return fmt.Errorf("router: failed to route message to destination %d: %w", m.Destination, err)
	}
	pkts, err := assembler.Split(m, hops)
	if err != nil {
		return err
	}

	r.emit(&controller.StartingMessageTransmissionEvent{Message: m})
	r.store.StoreMessage(m)
	r.archiveMessage(spool.MessageID{Session: m.SessionID, Sender: m.Source}, m)

	for _, pkt := range pkts {
		frag := pkt.Payload.(*wire.Fragment)
		if err := r.store.StoreFragment(pkt); err != nil {
			return err
		}
		id := spool.PacketID{
			MessageID: spool.MessageID{Session: pkt.Session, Sender: hops[0]},
			Fragment:  frag.Index,
		}
		r.archivePacket(id, pkt)
		if err := r.sendPacket(pkt); err != nil {
			return err
		}
		if err := r.store.MarkPacketReported(id); err != nil {
			return err
		}
	}
	return nil
}

// floodNetwork broadcasts a fresh flood request to every neighbor.
// Each neighbor gets its own packet so the traces accumulated along
// different branches never share state.
func (r *Router) floodNetwork() error {
	session := r.nextSessionID()
	instrument.FloodsInitiated()
	for id, ch := range r.neighbors {
		pkt := assembler.NewFloodRequest(session, r.nodeID)
		select {
		case ch <- pkt:
		case <-r.HaltCh():
			return nil
		}
		instrument.PacketsSent()
		r.log.Debugf("Sent flood request %d to neighbor %d.", session, id)
		r.emit(&controller.PacketSentEvent{Packet: pkt})
	}
	return nil
}

// routeTo resolves a random route from the local node to dest.
func (r *Router) routeTo(dest wire.NodeID) ([]wire.NodeID, error) {
	kind, err := r.graph.KindOf(dest)
	if err != nil {
		return nil, err
	}
	from := wire.Vertex{ID: r.nodeID, Kind: wire.Client}
	return r.graph.Route(from, wire.Vertex{ID: dest, Kind: kind})
}
