// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package router implements the node's routing engine: a single
// goroutine reactor that owns the topology graph and the session store
// and drives the delivery protocol from three inbound channels, namely
// transport packets, supervisor commands and application API commands.
package router

import (
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/core/log"
	"github.com/jarkko793/backend/core/worker"
	"github.com/jarkko793/backend/internal/instrument"
	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/netgraph"
	"github.com/jarkko793/backend/spool"
	"github.com/jarkko793/backend/wire"
)

const defaultMaxResendAttempts = 3

// Config bundles everything a Router needs at construction time.
type Config struct {
	// LogBackend is the node's logging backend.
	LogBackend *log.Backend

	// NodeID is the local node id.
	NodeID wire.NodeID

	// Ingress is the node's inbound packet channel.
	Ingress <-chan wire.Packet

	// Control is the supervisor command channel.
	Control <-chan controller.Command

	// API is the application command channel.
	API <-chan Command

	// Neighbors maps each initial direct neighbor to its inbound
	// packet channel.
	Neighbors map[wire.NodeID]chan<- wire.Packet

	// Events is the observer event channel.
	Events chan<- controller.Event

	// EdgeNodes receives GetEdgeNodes results.
	EdgeNodes chan<- []wire.Vertex

	// Unread receives GetUnreadMessages results.
	Unread chan<- []message.Message

	// Archive mirrors delivery state to durable storage.  Nil disables
	// archiving.
	Archive spool.Archive

	// MaxResendAttempts caps NACK driven retransmissions per fragment.
	// Zero or negative selects the default of 3.
	MaxResendAttempts int
}

// Router is the routing engine.  All of its state is owned by the
// worker goroutine; external code interacts with it over the channels
// given at construction time.
type Router struct {
	worker.Worker

	log *logging.Logger

	nodeID  wire.NodeID
	graph   *netgraph.Graph
	store   *spool.Store
	archive spool.Archive

	session uint64

	ingressCh <-chan wire.Packet
	controlCh <-chan controller.Command
	apiCh     <-chan Command

	neighbors map[wire.NodeID]chan<- wire.Packet

	eventCh     chan<- controller.Event
	edgeNodesCh chan<- []wire.Vertex
	unreadCh    chan<- []message.Message

	attempts    map[spool.PacketID]int
	maxAttempts int
}

// New constructs a Router from cfg and starts its worker.
func New(cfg *Config) (*Router, error) {
	if cfg.LogBackend == nil {
		return nil, errors.New("router: no logging backend provided")
	}

	neighbors := make(map[wire.NodeID]chan<- wire.Packet, len(cfg.Neighbors))
	for id, ch := range cfg.Neighbors {
		neighbors[id] = ch
	}

	archive := cfg.Archive
	if archive == nil {
		archive = spool.NewNopArchive()
	}
	maxAttempts := cfg.MaxResendAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxResendAttempts
	}

	r := &Router{
		log:         cfg.LogBackend.GetLogger(fmt.Sprintf("router:%d", cfg.NodeID)),
		nodeID:      cfg.NodeID,
		graph:       netgraph.New(cfg.NodeID),
		store:       spool.New(),
		archive:     archive,
		ingressCh:   cfg.Ingress,
		controlCh:   cfg.Control,
		apiCh:       cfg.API,
		neighbors:   neighbors,
		eventCh:     cfg.Events,
		edgeNodesCh: cfg.EdgeNodes,
		unreadCh:    cfg.Unread,
		attempts:    make(map[spool.PacketID]int),
		maxAttempts: maxAttempts,
	}
	r.Go(r.worker)
	return r, nil
}

func (r *Router) worker() {
	for {
		// The engine is idle until one of the three inbound sources has
		// something for it.  Processing an event runs to completion
		// before the next select, so graph and store mutations never
		// interleave.
		select {
		case <-r.HaltCh():
			r.log.Debugf("Terminating gracefully.")
			return
		case pkt := <-r.ingressCh:
			instrument.PacketsReceived()
			if err := r.onPacket(pkt); err != nil {
				r.log.Errorf("Failed to process packet %v: %v", pkt, err)
				instrument.PacketsDropped()
			}
		case cmd := <-r.controlCh:
			if err := r.onControlCommand(cmd); err != nil {
				r.log.Errorf("Failed to process supervisor command %v: %v", cmd, err)
			}
		case cmd := <-r.apiCh:
			if err := r.onAPICommand(cmd); err != nil {
				r.log.Errorf("Failed to process api command %v: %v", cmd, err)
			}
		}
	}
}

// nextSessionID allocates a fresh session id.  Message sessions and
// flood ids share the counter.
func (r *Router) nextSessionID() uint64 {
	r.session++
	return r.session
}

// emit hands an event to the observer.  A send during shutdown is
// silently abandoned.
func (r *Router) emit(e controller.Event) {
	select {
	case r.eventCh <- e:
	case <-r.HaltCh():
	}
}

func (r *Router) archiveMessage(id spool.MessageID, m *message.Message) {
	if err := r.archive.StoreMessage(id, m); err != nil {
		r.log.Warningf("Failed to archive message %v: %v", id, err)
	}
}

func (r *Router) archivePacket(id spool.PacketID, pkt wire.Packet) {
	if err := r.archive.StorePacket(id, pkt); err != nil {
		r.log.Warningf("Failed to archive packet %v: %v", id, err)
	}
}

func (r *Router) archiveAck(id spool.PacketID) {
	if err := r.archive.MarkPacketAcked(id); err != nil {
		r.log.Warningf("Failed to archive acknowledgement of %v: %v", id, err)
	}
}
