// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package netgraph maintains the network topology learned from flood
// path traces.  The graph is undirected: every inserted edge is
// mirrored.  Vertices are (id, kind) pairs, so a malformed trace that
// reuses an id under another kind yields a distinct vertex instead of
// corrupting the known one.
package netgraph

import (
	"errors"
	"fmt"
	mRand "math/rand"
	"sort"

	"github.com/katzenpost/hpqc/rand"

	"github.com/jarkko793/backend/wire"
)

var (
	// ErrNotFound is returned when a node id is unknown to the graph.
	ErrNotFound = errors.New("netgraph: unknown node")

	// ErrNoRoute is returned when no simple path joins two vertices.
	ErrNoRoute = errors.New("netgraph: no route")
)

// Node is one vertex of a topology snapshot together with its neighbor
// ids.
type Node struct {
	ID        wire.NodeID
	Kind      wire.NodeKind
	Neighbors []wire.NodeID
}

// Snapshot is a full topology report.  Source is the id of the node
// owning the graph.
type Snapshot struct {
	Source wire.NodeID
	Nodes  []Node
}

// String returns a string representation of the Snapshot.
func (s Snapshot) String() string {
	return fmt.Sprintf("topology of %d: %d nodes", s.Source, len(s.Nodes))
}

// Graph is the topology known to one node.  It is not safe for
// concurrent use; the routing engine is its only owner.
type Graph struct {
	self wire.NodeID
	adj  map[wire.Vertex]map[wire.Vertex]struct{}
	rng  *mRand.Rand
}

// New creates an empty graph owned by the node self.
func New(self wire.NodeID) *Graph {
	return &Graph{
		self: self,
		adj:  make(map[wire.Vertex]map[wire.Vertex]struct{}),
		rng:  rand.NewMath(),
	}
}

func (g *Graph) addVertex(v wire.Vertex) {
	if _, ok := g.adj[v]; !ok {
		g.adj[v] = make(map[wire.Vertex]struct{})
	}
}

func (g *Graph) addEdge(a, b wire.Vertex) {
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

// AddPath walks consecutive pairs of a flood path trace and inserts
// vertices and bidirectional edges, idempotently.  A non-relay node
// that is not the final element of the trace is either a terminal
// point or a malformed trace, never a through-route: the walk stops
// there and whatever was inserted so far stands.  The returned
// snapshot reports the state after the walk and must be forwarded to
// the observer.
func (g *Graph) AddPath(trace []wire.Vertex) Snapshot {
	for i := 0; i+1 < len(trace); i++ {
		before, after := trace[i], trace[i+1]
		if i+1 != len(trace)-1 && after.Kind != wire.Relay {
			break
		}
		g.addVertex(before)
		g.addVertex(after)
		g.addEdge(before, after)
	}
	return g.Snapshot()
}

// EdgeNodes returns every known vertex whose kind is not Relay, sorted
// by id.  An empty result means no edge nodes are known yet.
func (g *Graph) EdgeNodes() []wire.Vertex {
	var nodes []wire.Vertex
	for v := range g.adj {
		if v.Kind != wire.Relay {
			nodes = append(nodes, v)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ID != nodes[j].ID {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Kind < nodes[j].Kind
	})
	return nodes
}

// KindOf returns the kind under which id is known to the graph.
func (g *Graph) KindOf(id wire.NodeID) (wire.NodeKind, error) {
	for v := range g.adj {
		if v.ID == id {
			return v.Kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Route returns one route from from to to, chosen uniformly at random
// among all simple paths.  No shortest path guarantee is made; fairness
// of selection is the contract.
func (g *Graph) Route(from, to wire.Vertex) ([]wire.NodeID, error) {
	paths := g.simplePaths(from, to)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %v to %v", ErrNoRoute, from, to)
	}
	return paths[g.rng.Intn(len(paths))], nil
}

func (g *Graph) simplePaths(from, to wire.Vertex) [][]wire.NodeID {
	if from == to {
		return nil
	}
	if _, ok := g.adj[from]; !ok {
		return nil
	}
	if _, ok := g.adj[to]; !ok {
		return nil
	}

	var paths [][]wire.NodeID
	visited := map[wire.Vertex]bool{from: true}
	hops := []wire.NodeID{from.ID}

	var walk func(v wire.Vertex)
	walk = func(v wire.Vertex) {
		for n := range g.adj[v] {
			if visited[n] {
				continue
			}
			if n == to {
				path := append([]wire.NodeID(nil), hops...)
				paths = append(paths, append(path, n.ID))
				continue
			}
			visited[n] = true
			hops = append(hops, n.ID)
			walk(n)
			hops = hops[:len(hops)-1]
			visited[n] = false
		}
	}
	walk(from)
	return paths
}

// Reset clears all vertices and edges, for a full re-discovery.
func (g *Graph) Reset() {
	g.adj = make(map[wire.Vertex]map[wire.Vertex]struct{})
}

// Snapshot reports every known vertex with its id, kind and neighbor
// ids.  Nodes and neighbor lists are sorted so successive snapshots of
// the same topology are identical.
func (g *Graph) Snapshot() Snapshot {
	nodes := make([]Node, 0, len(g.adj))
	for v, neighbors := range g.adj {
		n := Node{ID: v.ID, Kind: v.Kind, Neighbors: make([]wire.NodeID, 0, len(neighbors))}
		for nb := range neighbors {
			n.Neighbors = append(n.Neighbors, nb.ID)
		}
		sort.Slice(n.Neighbors, func(i, j int) bool { return n.Neighbors[i] < n.Neighbors[j] })
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ID != nodes[j].ID {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Kind < nodes[j].Kind
	})
	return Snapshot{Source: g.self, Nodes: nodes}
}
