package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(
		[]Node{{ID: "A", Visibility: 1}, {ID: "B", Visibility: 1}, {ID: "C", Visibility: 1}},
		[]Edge{{From: "A", To: "B", Weight: 1}, {From: "B", To: "C", Weight: 1}},
	)
	require.NoError(t, err)
	return g
}

func TestShortestPath_RoutesThroughIntermediateNode(t *testing.T) {
	g := lineGraph(t)

	path, err := g.ShortestPath("A", "C")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"A", "B", "C"}, path.Nodes)
	assert.Equal(t, 2.0, path.Cost)
	assert.Equal(t, 2, path.Hops())
}

func TestShortestPath_PrefersCheaperDetour(t *testing.T) {
	g, err := New(
		[]Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		[]Edge{
			{From: "a", To: "d", Weight: 10},
			{From: "a", To: "b", Weight: 2},
			{From: "b", To: "c", Weight: 2},
			{From: "c", To: "d", Weight: 2},
		},
	)
	require.NoError(t, err)

	path, err := g.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a", "b", "c", "d"}, path.Nodes)
	assert.Equal(t, 6.0, path.Cost)
}

func TestShortestPath_SameNode(t *testing.T) {
	g := lineGraph(t)

	path, err := g.ShortestPath("B", "B")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"B"}, path.Nodes)
	assert.Zero(t, path.Cost)
}

func TestShortestPath_TiesResolveDeterministically(t *testing.T) {
	g, err := New(
		[]Node{{ID: "s"}, {ID: "x"}, {ID: "y"}, {ID: "t"}},
		[]Edge{
			{From: "s", To: "y", Weight: 1},
			{From: "s", To: "x", Weight: 1},
			{From: "y", To: "t", Weight: 1},
			{From: "x", To: "t", Weight: 1},
		},
	)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		path, err := g.ShortestPath("s", "t")
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"s", "x", "t"}, path.Nodes)
	}
}

func TestShortestPath_Errors(t *testing.T) {
	g, err := New(
		[]Node{{ID: "a"}, {ID: "b"}, {ID: "island"}},
		[]Edge{{From: "a", To: "b", Weight: 1}},
	)
	require.NoError(t, err)

	_, err = g.ShortestPath("a", "island")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))

	_, err = g.ShortestPath("a", "nowhere")
	require.Error(t, err)
	assert.False(t, IsUnreachable(err))
}

func TestShortestPath_DirectedEdge(t *testing.T) {
	g, err := New(
		[]Node{{ID: "top"}, {ID: "bottom"}},
		[]Edge{{From: "top", To: "bottom", Weight: 1, Directed: true}},
	)
	require.NoError(t, err)

	_, err = g.ShortestPath("top", "bottom")
	require.NoError(t, err)
	_, err = g.ShortestPath("bottom", "top")
	assert.True(t, IsUnreachable(err))
}

func TestNew_RejectsMalformedTopology(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		edges []Edge
	}{
		{"unknown endpoint", []Node{{ID: "a"}}, []Edge{{From: "a", To: "ghost", Weight: 1}}},
		{"negative weight", []Node{{ID: "a"}, {ID: "b"}}, []Edge{{From: "a", To: "b", Weight: -1}}},
		{"duplicate node", []Node{{ID: "a"}, {ID: "a"}}, nil},
		{"empty id", []Node{{ID: ""}}, nil},
		{"visibility out of range", []Node{{ID: "a", Visibility: 1.5}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes, tt.edges)
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestValidate_DetectsDisconnectedNode(t *testing.T) {
	g, err := New(
		[]Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]Edge{{From: "a", To: "b", Weight: 1}},
	)
	require.NoError(t, err)

	err = g.Validate()
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.NoError(t, lineGraph(t).Validate())
}

func TestValidate_OneWayCycleIsConnected(t *testing.T) {
	g, err := New(
		[]Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]Edge{
			{From: "a", To: "b", Weight: 1, Directed: true},
			{From: "b", To: "c", Weight: 1, Directed: true},
			{From: "c", To: "a", Weight: 1, Directed: true},
		},
	)
	require.NoError(t, err)
	assert.NoError(t, g.Validate())
}

func TestNeighbors(t *testing.T) {
	g := lineGraph(t)

	assert.Equal(t, []Neighbor{{Node: "A", Weight: 1}, {Node: "C", Weight: 1}}, g.Neighbors("B"))
	assert.Empty(t, g.Neighbors("missing"))

	w, ok := g.EdgeWeight("A", "B")
	assert.True(t, ok)
	assert.Equal(t, 1.0, w)
	_, ok = g.EdgeWeight("A", "C")
	assert.False(t, ok)
}

func TestNearestWith(t *testing.T) {
	g, err := New(
		[]Node{
			{ID: "home"},
			{ID: "far-shelter", Tags: []Tag{TagShelter}},
			{ID: "near-shelter", Tags: []Tag{TagShelter}},
			{ID: "field", Tags: []Tag{TagFarm}},
		},
		[]Edge{
			{From: "home", To: "field", Weight: 3},
			{From: "field", To: "near-shelter", Weight: 2},
			{From: "home", To: "far-shelter", Weight: 9},
		},
	)
	require.NoError(t, err)

	id, cost, ok := g.NearestWith("home", func(n *Node) bool { return n.Has(TagShelter) })
	require.True(t, ok)
	assert.Equal(t, NodeID("near-shelter"), id)
	assert.Equal(t, 5.0, cost)

	_, _, ok = g.NearestWith("home", func(n *Node) bool { return n.Has(TagMarket) })
	assert.False(t, ok)
}

func TestNearestNode_SnapsWithinZone(t *testing.T) {
	g, err := New(
		[]Node{
			{ID: "camp", Zone: "hills", Anchor: HexCoord{Q: 10, R: 0}},
			{ID: "gate", Zone: "town", Anchor: HexCoord{Q: 2, R: 0}},
			{ID: "well", Zone: "town", Anchor: HexCoord{Q: 6, R: 0}},
		},
		nil,
	)
	require.NoError(t, err)

	id, ok := g.NearestNode("town", HexCoord{Q: 9, R: 0})
	require.True(t, ok)
	assert.Equal(t, NodeID("well"), id)

	id, ok = g.NearestNode("", HexCoord{Q: 9, R: 0})
	require.True(t, ok)
	assert.Equal(t, NodeID("camp"), id)

	_, ok = g.NearestNode("sea", HexCoord{})
	assert.False(t, ok)
}

func TestHexDistance(t *testing.T) {
	a := HexCoord{Q: 0, R: 0}
	b := HexCoord{Q: 4, R: -4}

	assert.Equal(t, 4, Distance(a, b))
	assert.Equal(t, 4, Distance(b, a))
	assert.Equal(t, 0, Distance(a, a))
	assert.Equal(t, 1, Distance(a, a.Neighbors()[3]))
}
