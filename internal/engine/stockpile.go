package engine

import (
	"sort"

	"github.com/talgya/offscreen/internal/world"
)

// Stock returns the food held at a stockpile node, or zero for any other node.
func (s *Simulation) Stock(node world.NodeID) int {
	return s.stock[node]
}

// Stockpiles returns every stockpile node and its store, ordered by node.
func (s *Simulation) Stockpiles() []StockLevel {
	out := make([]StockLevel, 0, len(s.stock))
	for id, n := range s.stock {
		out = append(out, StockLevel{Node: id, Food: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// StockLevel is one stockpile's store.
type StockLevel struct {
	Node world.NodeID `json:"node"`
	Food int          `json:"food"`
}

func (s *Simulation) stocked(node world.NodeID) bool {
	return s.stock[node] > 0
}

// draw takes one unit of food from a stockpile.
func (s *Simulation) draw(node world.NodeID) bool {
	if s.stock[node] <= 0 {
		return false
	}
	s.stock[node]--
	return true
}

// deposit adds food to the stockpile nearest to a node. Returns the
// stockpile used, or "" when none is reachable.
func (s *Simulation) deposit(from world.NodeID, n int) world.NodeID {
	depot, _, ok := s.Graph.NearestWith(from, func(node *world.Node) bool {
		return node.Has(world.TagStockpile)
	})
	if !ok {
		return ""
	}
	s.stock[depot] += n
	return depot
}
