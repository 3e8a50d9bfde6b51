// Travel: routes become one ARRIVE_NODE per edge. Only the next hop is ever
// queued; the rest of the route waits in the actor's plan.
package engine

import (
	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// Route is a planned journey with the arrival time at each node.
type Route struct {
	Path     world.Path `json:"path"`
	Arrivals []float64  `json:"arrivals"` // Arrivals[i] is when Path.Nodes[i] is reached
}

// PlanRoute computes the cheapest route from an actor's node to dest,
// departing now, without changing anything.
func (s *Simulation) PlanRoute(id agents.ActorID, dest world.NodeID) (Route, error) {
	a, err := s.Actor(id)
	if err != nil {
		return Route{}, err
	}
	from := a.Position.Nearest(s.Now())
	path, err := s.Graph.ShortestPath(from, dest)
	if err != nil {
		return Route{}, err
	}
	return Route{Path: path, Arrivals: s.itinerary(path.Nodes, s.Now())}, nil
}

func (s *Simulation) itinerary(nodes []world.NodeID, depart float64) []float64 {
	out := make([]float64, len(nodes))
	t := depart
	for i := range nodes {
		if i > 0 {
			w, _ := s.Graph.EdgeWeight(nodes[i-1], nodes[i])
			t += w
		}
		out[i] = t
	}
	return out
}

// Redirect sends an actor toward dest from wherever it is now. An actor
// caught mid-edge first snaps to the nearer end of the edge.
func (s *Simulation) Redirect(id agents.ActorID, dest world.NodeID) error {
	a, err := s.Actor(id)
	if err != nil {
		return err
	}
	if !a.Active() || a.Encounter != "" {
		return oops.Code(CodeInvalidState).With("actor", id).Errorf("actor %s cannot be redirected now", id)
	}
	if !s.Graph.Has(dest) {
		return oops.Code(world.CodeUnknownNode).With("node", dest).Errorf("unknown node %q", dest)
	}
	now := s.Now()
	if _, err := s.Graph.ShortestPath(a.Position.Nearest(now), dest); err != nil {
		return err
	}

	s.Sched.CancelActor(id)
	s.snap(a, now)
	in := a.Intent
	in.Target = dest
	in.Activity = agents.ActivityNone
	a.Intent = in
	if !in.Moves(a.Node()) {
		s.scheduleDecision(a, now+s.Tuning.ReactionDelay)
		return nil
	}
	return s.travel(a, in, now)
}

// snap puts an actor in transit onto the nearer node of its edge.
func (s *Simulation) snap(a *agents.Actor, now float64) {
	if !a.Position.InTransit() {
		return
	}
	a.Position = agents.At(a.Position.Nearest(now))
	a.Plan = nil
	s.Sched.CancelKind(a.ID, EventArriveNode)
}

// travel plans a route for an intent and departs on its first hop.
func (s *Simulation) travel(a *agents.Actor, in agents.Intent, now float64) error {
	path, err := s.Graph.ShortestPath(a.Node(), in.Target)
	if err != nil {
		return err
	}
	a.Plan = &agents.TravelPlan{Route: path.Nodes, Purpose: in}
	if !s.departNext(a, now) {
		a.Plan = nil
		return oops.Code(world.CodeUnreachable).With("actor", a.ID).With("target", in.Target).
			Errorf("no edge out of %s toward %s", a.Node(), in.Target)
	}
	s.logEvent(now, a.ID, "travel", "%s sets out for %s (%s)", a.Name, in.Target, in.Kind)
	return nil
}

// departNext puts the actor on the next edge of its plan and queues the
// arrival. Returns false when the plan has no further hop.
func (s *Simulation) departNext(a *agents.Actor, now float64) bool {
	next, ok := a.Plan.Next()
	if !ok {
		return false
	}
	w, ok := s.Graph.EdgeWeight(a.Node(), next)
	if !ok {
		return false
	}
	a.Position = agents.Position{Node: a.Node(), To: next, Depart: now, Arrive: now + w}
	s.Sched.Schedule(now+w, EventArriveNode, a.ID, Payload{Node: next})
	return true
}
