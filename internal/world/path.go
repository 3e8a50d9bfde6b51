package world

import (
	"container/heap"

	"github.com/samber/oops"
)

// Path is an ordered route of nodes and its total travel cost.
type Path struct {
	Nodes []NodeID `json:"nodes"`
	Cost  float64  `json:"cost"`
}

// Hops returns the number of edges on the path.
func (p Path) Hops() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

type pathItem struct {
	node  NodeID
	cost  float64
	index int
}

// pathQueue is a min-heap on cost, ties broken by node id so that equal-cost
// routes resolve the same way every run.
type pathQueue []*pathItem

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].node < pq[j].node
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	item := x.(*pathItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// dijkstra runs a single-source search. When target is non-empty the search
// stops as soon as it is settled.
func (g *Graph) dijkstra(from, target NodeID) (map[NodeID]float64, map[NodeID]NodeID) {
	dist := map[NodeID]float64{from: 0}
	prev := make(map[NodeID]NodeID)
	done := make(map[NodeID]bool)

	pq := &pathQueue{}
	heap.Push(pq, &pathItem{node: from, cost: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pathItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		if cur.node == target {
			break
		}
		for _, nb := range g.adj[cur.node] {
			if done[nb.Node] {
				continue
			}
			next := cur.cost + nb.Weight
			old, seen := dist[nb.Node]
			// Equal cost prefers the lexically smaller predecessor.
			if !seen || next < old || (next == old && cur.node < prev[nb.Node]) {
				dist[nb.Node] = next
				prev[nb.Node] = cur.node
				heap.Push(pq, &pathItem{node: nb.Node, cost: next})
			}
		}
	}

	for id := range dist {
		if !done[id] {
			delete(dist, id)
		}
	}
	return dist, prev
}

// ShortestPath returns the minimum-cost route between two nodes.
func (g *Graph) ShortestPath(from, to NodeID) (Path, error) {
	if !g.Has(from) {
		return Path{}, oops.Code(CodeUnknownNode).With("node", from).Errorf("unknown node %q", from)
	}
	if !g.Has(to) {
		return Path{}, oops.Code(CodeUnknownNode).With("node", to).Errorf("unknown node %q", to)
	}
	if from == to {
		return Path{Nodes: []NodeID{from}}, nil
	}

	dist, prev := g.dijkstra(from, to)
	cost, ok := dist[to]
	if !ok {
		return Path{}, oops.Code(CodeUnreachable).With("from", from).With("to", to).
			Errorf("no route from %q to %q", from, to)
	}
	return Path{Nodes: reconstructPath(prev, from, to), Cost: cost}, nil
}

func reconstructPath(prev map[NodeID]NodeID, from, to NodeID) []NodeID {
	var rev []NodeID
	for cur := to; ; cur = prev[cur] {
		rev = append(rev, cur)
		if cur == from {
			break
		}
	}
	path := make([]NodeID, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}

// Distances returns the travel cost from a node to every node reachable from it.
func (g *Graph) Distances(from NodeID) map[NodeID]float64 {
	if !g.Has(from) {
		return nil
	}
	dist, _ := g.dijkstra(from, "")
	return dist
}

// Nearest returns the reachable candidate with the lowest travel cost from a
// node. Ties go to the lower id.
func (g *Graph) Nearest(from NodeID, candidates []NodeID) (NodeID, float64, bool) {
	if len(candidates) == 0 {
		return "", 0, false
	}
	dist := g.Distances(from)
	var best NodeID
	bestCost, found := 0.0, false
	for _, c := range candidates {
		d, ok := dist[c]
		if !ok {
			continue
		}
		if !found || d < bestCost || (d == bestCost && c < best) {
			best, bestCost, found = c, d, true
		}
	}
	return best, bestCost, found
}

// NearestWith returns the cheapest reachable node satisfying pred.
func (g *Graph) NearestWith(from NodeID, pred func(*Node) bool) (NodeID, float64, bool) {
	var candidates []NodeID
	for _, id := range g.ids {
		if pred(g.nodes[id]) {
			candidates = append(candidates, id)
		}
	}
	return g.Nearest(from, candidates)
}
