// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"fmt"

	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/message"
)

// onControlCommand applies a supervisor command.  Any change to the
// neighbor set invalidates previously learned routes, so the graph is
// reset and rediscovered.
func (r *Router) onControlCommand(cmd controller.Command) error {
	switch c := cmd.(type) {
	case *controller.AddNeighbor:
		r.log.Noticef("Adding %d to neighbors.", c.ID)
		r.neighbors[c.ID] = c.Ch
		r.graph.Reset()
		return r.floodNetwork()
	case *controller.RemoveNeighbor:
		r.log.Noticef("Removing %d from neighbors.", c.ID)
		delete(r.neighbors, c.ID)
		r.graph.Reset()
		return r.floodNetwork()
	default:
		// SetPacketDropRate, Crash and friends address relays.
		r.log.Debugf("Ignoring supervisor command %v.", cmd)
		return nil
	}
}

func (r *Router) onAPICommand(cmd Command) error {
	switch c := cmd.(type) {
	case *InitializeFlood:
		return r.floodNetwork()
	case *GetEdgeNodes:
		edges := r.graph.EdgeNodes()
		if len(edges) == 0 {
			return nil
		}
		select {
		case r.edgeNodesCh <- edges:
		case <-r.HaltCh():
		}
		return nil
	case *GetUnreadMessages:
		ids := r.store.UnreadMessageIDs(r.nodeID)
		if len(ids) == 0 {
			return nil
		}
		msgs := make([]message.Message, 0, len(ids))
		for _, id := range ids {
			m, ok := r.store.Message(id)
			if !ok {
				r.log.Errorf("Unread message %v disappeared from the store.", id)
				continue
			}
			msgs = append(msgs, *m)
		}
		select {
		case r.unreadCh <- msgs:
		case <-r.HaltCh():
		}
		return nil
	case *GetClientsFromServer:
		// Accepted for API symmetry; servers do not answer it yet.
		r.log.Debugf("Ignoring api command %v.", c)
		return nil
	case *SendMessage:
		return r.sendMessage(c.Message)
	default:
		return fmt.Errorf("router: unknown api command %v", cmd)
	}
}
