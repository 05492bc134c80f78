// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

package netgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jarkko793/backend/wire"
)

func v(id wire.NodeID, kind wire.NodeKind) wire.Vertex {
	return wire.Vertex{ID: id, Kind: kind}
}

func TestAddPathBidirectional(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	snap := g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay), v(3, wire.Server)})

	require.Equal(wire.NodeID(1), snap.Source)
	require.Equal([]Node{
		{ID: 1, Kind: wire.Client, Neighbors: []wire.NodeID{2}},
		{ID: 2, Kind: wire.Relay, Neighbors: []wire.NodeID{1, 3}},
		{ID: 3, Kind: wire.Server, Neighbors: []wire.NodeID{2}},
	}, snap.Nodes)

	// Idempotent insertion.
	again := g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay), v(3, wire.Server)})
	require.Equal(snap, again)
}

func TestAddPathEarlyStop(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	snap := g.AddPath([]wire.Vertex{v(1, wire.Relay), v(2, wire.Client), v(3, wire.Relay)})

	// A client mid-path is not a through-route: nothing is learned.
	require.Empty(snap.Nodes)
	_, err := g.KindOf(2)
	require.Error(err)
}

func TestAddPathTerminalNonRelay(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	snap := g.AddPath([]wire.Vertex{v(1, wire.Relay), v(2, wire.Relay), v(3, wire.Server)})
	require.Len(snap.Nodes, 3)

	route, err := g.Route(v(1, wire.Relay), v(3, wire.Server))
	require.NoError(err)
	require.Equal([]wire.NodeID{1, 2, 3}, route)
}

func TestEdgeNodes(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(7)
	require.Empty(g.EdgeNodes())

	g.AddPath([]wire.Vertex{v(1, wire.Relay), v(2, wire.Server)})
	require.Equal([]wire.Vertex{v(2, wire.Server)}, g.EdgeNodes())
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay), v(3, wire.Server)})

	kind, err := g.KindOf(3)
	require.NoError(err)
	require.Equal(wire.Server, kind)

	_, err = g.KindOf(9)
	require.True(errors.Is(err, ErrNotFound))
}

func TestRouteUniformChoice(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay), v(4, wire.Server)})
	g.AddPath([]wire.Vertex{v(1, wire.Client), v(3, wire.Relay), v(4, wire.Server)})

	seen := make(map[wire.NodeID]int)
	for i := 0; i < 64; i++ {
		route, err := g.Route(v(1, wire.Client), v(4, wire.Server))
		require.NoError(err)
		require.Len(route, 3)
		require.Equal(wire.NodeID(1), route[0])
		require.Equal(wire.NodeID(4), route[2])
		require.Contains([]wire.NodeID{2, 3}, route[1])
		seen[route[1]]++
	}
	require.Len(seen, 2, "both simple paths should be selected eventually")
}

func TestRouteNoRoute(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	_, err := g.Route(v(1, wire.Client), v(4, wire.Server))
	require.True(errors.Is(err, ErrNoRoute))

	// Two disconnected islands.
	g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay)})
	g.AddPath([]wire.Vertex{v(3, wire.Relay), v(4, wire.Server)})
	_, err = g.Route(v(1, wire.Client), v(4, wire.Server))
	require.True(errors.Is(err, ErrNoRoute))
}

func TestReset(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g := New(1)
	g.AddPath([]wire.Vertex{v(1, wire.Client), v(2, wire.Relay), v(3, wire.Server)})
	require.NotEmpty(g.EdgeNodes())

	g.Reset()
	require.Empty(g.EdgeNodes())
	require.Empty(g.Snapshot().Nodes)
	_, err := g.KindOf(1)
	require.Error(err)
}
