// Package world provides the abstract location graph that off-screen actors
// move across. Nodes are named places, edges carry travel time in abstract
// minutes. The graph is built once at load and never mutated afterwards.
package world

import (
	"math"
	"sort"

	"github.com/samber/oops"
)

// Error codes raised by this package.
const (
	CodeUnreachable = "UNREACHABLE_NODE"
	CodeMalformed   = "MALFORMED_TOPOLOGY"
	CodeUnknownNode = "UNKNOWN_NODE"
)

// NodeID uniquely identifies a node.
type NodeID string

// Tag is an amenity offered at a node.
type Tag string

const (
	TagFoodSource Tag = "food-source" // Forage, game, orchards
	TagStockpile  Tag = "stockpile"   // Stored food anyone may draw from
	TagShelter    Tag = "shelter"     // Safe place to rest and heal
	TagDanger     Tag = "danger"      // Hostile ground
	TagFarm       Tag = "farm"        // Work site for farmers
	TagMarket     Tag = "market"      // Trading post
)

// Node is an abstract location. Capacity counts the resources present, and
// is the starting store of a stockpile. Anchor is the real-time position used
// on promotion. Visibility runs from 0 (hidden) to 1 (open ground).
type Node struct {
	ID         NodeID   `json:"id" yaml:"id"`
	Label      string   `json:"label" yaml:"label"`
	Zone       string   `json:"zone" yaml:"zone"`
	Tags       []Tag    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Capacity   int      `json:"capacity,omitempty" yaml:"capacity"`
	Anchor     HexCoord `json:"anchor" yaml:"anchor"`
	Visibility float64  `json:"visibility" yaml:"visibility"`
}

// Has reports whether the node offers the given amenity.
func (n *Node) Has(tag Tag) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge connects two nodes. Undirected unless Directed is set.
type Edge struct {
	From     NodeID  `json:"from" yaml:"from"`
	To       NodeID  `json:"to" yaml:"to"`
	Weight   float64 `json:"weight" yaml:"weight"`
	Directed bool    `json:"directed,omitempty" yaml:"directed,omitempty"`
}

// Neighbor is an outgoing connection from a node.
type Neighbor struct {
	Node   NodeID  `json:"node"`
	Weight float64 `json:"weight"`
}

// Graph is the read-only world topology.
type Graph struct {
	nodes map[NodeID]*Node
	ids   []NodeID // sorted
	adj   map[NodeID][]Neighbor
	edges []Edge
}

// New builds a graph, rejecting duplicate nodes, edges with unknown
// endpoints, and negative or non-finite weights.
func New(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make(map[NodeID]*Node, len(nodes)),
		adj:   make(map[NodeID][]Neighbor, len(nodes)),
	}

	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, oops.Code(CodeMalformed).With("index", i).Errorf("node has empty id")
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, oops.Code(CodeMalformed).With("node", n.ID).Errorf("duplicate node %q", n.ID)
		}
		if n.Visibility < 0 || n.Visibility > 1 {
			return nil, oops.Code(CodeMalformed).With("node", n.ID).
				Errorf("visibility %.2f outside [0,1]", n.Visibility)
		}
		n.Tags = append([]Tag(nil), n.Tags...)
		g.nodes[n.ID] = &n
		g.ids = append(g.ids, n.ID)
	}
	sort.Slice(g.ids, func(i, j int) bool { return g.ids[i] < g.ids[j] })

	for i, e := range edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, oops.Code(CodeMalformed).With("edge", i).With("node", e.From).
				Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, oops.Code(CodeMalformed).With("edge", i).With("node", e.To).
				Errorf("edge references unknown node %q", e.To)
		}
		if e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return nil, oops.Code(CodeMalformed).With("edge", i).
				Errorf("edge %s-%s has invalid weight %v", e.From, e.To, e.Weight)
		}
		g.edges = append(g.edges, e)
		g.adj[e.From] = append(g.adj[e.From], Neighbor{Node: e.To, Weight: e.Weight})
		if !e.Directed && e.From != e.To {
			g.adj[e.To] = append(g.adj[e.To], Neighbor{Node: e.From, Weight: e.Weight})
		}
	}

	for id, list := range g.adj {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Node != list[j].Node {
				return list[i].Node < list[j].Node
			}
			return list[i].Weight < list[j].Weight
		})
		g.adj[id] = list
	}

	return g, nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Has reports whether the node exists.
func (g *Graph) Has(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.ids))
	for i, id := range g.ids {
		out[i] = g.nodes[id]
	}
	return out
}

// Edges returns a copy of the edge list as loaded.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.ids)
}

// Neighbors returns the outgoing connections of a node ordered by id.
// Unknown nodes have no neighbors.
func (g *Graph) Neighbors(id NodeID) []Neighbor {
	return append([]Neighbor(nil), g.adj[id]...)
}

// EdgeWeight returns the cheapest direct edge weight from a to b.
func (g *Graph) EdgeWeight(a, b NodeID) (float64, bool) {
	best, found := 0.0, false
	for _, nb := range g.adj[a] {
		if nb.Node == b && (!found || nb.Weight < best) {
			best, found = nb.Weight, true
		}
	}
	return best, found
}

// NearestNode snaps a real-time position to the closest node anchor within
// a zone. An empty zone matches every node. Ties go to the lower id.
func (g *Graph) NearestNode(zone string, pos HexCoord) (NodeID, bool) {
	var best NodeID
	bestDist := -1
	for _, id := range g.ids {
		n := g.nodes[id]
		if zone != "" && n.Zone != zone {
			continue
		}
		d := Distance(n.Anchor, pos)
		if bestDist < 0 || d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, bestDist >= 0
}

// Validate checks that every node can reach every other node. The topology
// is designed to be strongly connected; a gap is a configuration error.
func (g *Graph) Validate() error {
	if len(g.ids) == 0 {
		return oops.Code(CodeMalformed).Errorf("topology has no nodes")
	}
	root := g.ids[0]

	reverse := make(map[NodeID][]Neighbor, len(g.adj))
	for from, list := range g.adj {
		for _, nb := range list {
			reverse[nb.Node] = append(reverse[nb.Node], Neighbor{Node: from, Weight: nb.Weight})
		}
	}

	for _, adj := range []map[NodeID][]Neighbor{g.adj, reverse} {
		seen := reach(root, adj)
		for _, id := range g.ids {
			if !seen[id] {
				return oops.Code(CodeUnreachable).With("node", id).With("root", root).
					Errorf("node %q is disconnected from %q", id, root)
			}
		}
	}
	return nil
}

func reach(root NodeID, adj map[NodeID][]Neighbor) map[NodeID]bool {
	seen := map[NodeID]bool{root: true}
	queue := []NodeID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range adj[cur] {
			if !seen[nb.Node] {
				seen[nb.Node] = true
				queue = append(queue, nb.Node)
			}
		}
	}
	return seen
}

// IsUnreachable reports whether err carries the UNREACHABLE_NODE code.
func IsUnreachable(err error) bool {
	return hasCode(err, CodeUnreachable)
}

// IsMalformed reports whether err carries the MALFORMED_TOPOLOGY code.
func IsMalformed(err error) bool {
	return hasCode(err, CodeMalformed)
}

func hasCode(err error, code string) bool {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code() == code
	}
	return false
}
