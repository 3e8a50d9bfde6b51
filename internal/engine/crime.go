// Crime: witnesses remember who broke the law, and guards who hear of it
// turn hostile toward the offender.
package engine

import (
	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// RecordCrime records that witness id saw offender commit a crime at node and
// time t. The offender need not be simulated; it may be the player.
func (s *Simulation) RecordCrime(id, offender agents.ActorID, node world.NodeID, t float64, note string) error {
	a, err := s.Actor(id)
	if err != nil {
		return err
	}
	if !s.Graph.Has(node) {
		return oops.Code(world.CodeUnknownNode).With("node", node).Errorf("unknown node %q", node)
	}
	a.Memory.Observe(agents.CrimeKey(offender), s.crimeValue(offender, node, note), t)
	s.logEvent(t, id, "crime", "%s saw %s commit %s at %s", a.Name, offender, note, node)
	return nil
}

// ReportCrime makes everyone at node a witness, plus anyone on an adjacent
// node who spots it through the two nodes' visibility. Returns the witnesses.
func (s *Simulation) ReportCrime(offender agents.ActorID, node world.NodeID, t float64, note string) []agents.ActorID {
	if !s.Graph.Has(node) {
		return nil
	}
	v := s.crimeValue(offender, node, note)
	var seen []agents.ActorID
	witness := func(a *agents.Actor) {
		if a.ID == offender {
			return
		}
		a.Memory.Observe(agents.CrimeKey(offender), v, t)
		seen = append(seen, a.ID)
	}

	for _, a := range s.ActorsAt(node) {
		witness(a)
	}
	here := s.Graph.Node(node)
	for _, nb := range s.Graph.Neighbors(node) {
		p := here.Visibility * s.Graph.Node(nb.Node).Visibility
		for _, a := range s.ActorsAt(nb.Node) {
			if s.Rolls.Chance(p, t, "witness", string(offender), string(a.ID)) {
				witness(a)
			}
		}
	}
	if len(seen) > 0 {
		s.logEvent(t, offender, "crime", "%s committed %s at %s, seen by %d", offender, note, node, len(seen))
	}
	return seen
}

func (s *Simulation) crimeValue(offender agents.ActorID, node world.NodeID, note string) agents.MemoryValue {
	var faction social.FactionID
	if o, ok := s.actors[offender]; ok {
		faction = o.Faction
	}
	return agents.MemoryValue{Node: node, Actor: offender, Faction: faction, Level: 1, Note: note}
}
