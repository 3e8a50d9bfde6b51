// Checkpoint pipeline: what happens each time an actor reaches a node:
// presence, discovery, interrupt, then continue.
package engine

import (
	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// sighting is another actor noticed at a checkpoint.
type sighting struct {
	actor *agents.Actor
	node  world.NodeID
	near  bool // Co-located rather than on an adjacent node
}

func (s *Simulation) onArrive(a *agents.Actor, ev Event) {
	if !a.Position.InTransit() || a.Position.To != ev.Payload.Node {
		s.stale(ev, "arrival does not match the actor's edge")
		return
	}
	node := s.Graph.Node(ev.Payload.Node)
	if node == nil {
		s.stale(ev, "unknown node")
		return
	}
	now := ev.Time
	a.Position = agents.At(node.ID)
	if a.Plan != nil {
		a.Plan.Index++
	}

	seen := s.presence(a, node, now)
	s.discover(a, node, seen, now)
	if s.interrupt(a, node, seen, now) {
		return
	}
	s.proceed(a, now)
}

// presence finds everyone at the node and, weighted by visibility, anyone on
// an adjacent node.
func (s *Simulation) presence(a *agents.Actor, node *world.Node, now float64) []sighting {
	var seen []sighting
	for _, other := range s.ActorsAt(node.ID) {
		if other.ID != a.ID {
			seen = append(seen, sighting{actor: other, node: node.ID, near: true})
		}
	}
	for _, nb := range s.Graph.Neighbors(node.ID) {
		p := node.Visibility * s.Graph.Node(nb.Node).Visibility
		for _, other := range s.ActorsAt(nb.Node) {
			if other.ID == a.ID {
				continue
			}
			if s.Rolls.Chance(p, now, "detect", string(a.ID), string(other.ID)) {
				seen = append(seen, sighting{actor: other, node: nb.Node})
			}
		}
	}
	return seen
}

// discover writes what the actor learned here into its memory and trades
// news with friends standing on the same node.
func (s *Simulation) discover(a *agents.Actor, node *world.Node, seen []sighting, now float64) {
	a.Memory.Observe(agents.LocationKey(node.ID), agents.MemoryValue{
		Node:  node.ID,
		Tags:  node.Tags,
		Level: float64(node.Capacity),
		Note:  node.Label,
	}, now)

	for _, sg := range seen {
		o := sg.actor
		a.Memory.Observe(agents.ActorKey(o.ID), agents.MemoryValue{
			Node: sg.node, Actor: o.ID, Faction: o.Faction, Note: o.Role.String(),
		}, now)
		if s.hostileTo(a, o.ID, o.Faction, now) {
			a.Memory.Observe(agents.ThreatKey(o.ID), agents.MemoryValue{
				Node: sg.node, Actor: o.ID, Faction: o.Faction, Level: o.HPEquivalent(),
			}, now)
		}
		if sg.near && o.Encounter == "" && s.Factions.Friendly(a.Faction, o.Faction) {
			s.exchange(a, o, now)
		}
	}
}

// interrupt checks, in order, for a reason to stop travelling here: a meal,
// a rest at a shelter, a fight, or a hostile on a neighboring node. Returns
// true if the route was abandoned.
func (s *Simulation) interrupt(a *agents.Actor, node *world.Node, seen []sighting, now float64) bool {
	th := s.Tuning.Thresholds

	if a.Needs.Hunger > th.CriticalHunger {
		food := agents.FoodNone
		switch {
		case a.Inventory.Food() > 0:
			food = agents.FoodInventory
		case node.Has(world.TagStockpile) && s.stocked(node.ID):
			food = agents.FoodStockpile
		case node.Has(world.TagFoodSource):
			food = agents.FoodForage
		}
		if food != agents.FoodNone {
			s.stop(a, agents.Intent{Kind: agents.IntentSeekFood, Target: node.ID, Activity: agents.ActivityEat, Food: food})
			s.Sched.Schedule(now+s.Tuning.EatDuration, EventFinishEat, a.ID, Payload{Food: food})
			return true
		}
	}

	if a.Needs.Health < s.Tuning.CheckpointRest && node.Has(world.TagShelter) {
		s.stop(a, agents.Intent{Kind: agents.IntentSeekShelter, Target: node.ID, Activity: agents.ActivityRest})
		d := agents.RestDuration(a.Needs, s.Tuning.RestScale, s.Tuning.RestMin)
		s.Sched.Schedule(now+d, EventRestComplete, a.ID, Payload{Duration: d})
		return true
	}

	if enemy := s.enemyAt(a, node.ID, now); enemy != nil {
		s.stop(a, a.Intent)
		s.startEncounter(a, enemy, node.ID, now)
		return true
	}

	if sg, ok := s.hostileNearby(a, seen, now); ok {
		return s.react(a, sg, now)
	}
	return false
}

// hostileNearby returns the first sighting on a neighboring node of an actor
// that a is hostile toward.
func (s *Simulation) hostileNearby(a *agents.Actor, seen []sighting, now float64) (sighting, bool) {
	for _, sg := range seen {
		if sg.near || sg.actor.Encounter != "" {
			continue
		}
		if s.hostileTo(a, sg.actor.ID, sg.actor.Faction, now) {
			return sg, true
		}
	}
	return sighting{}, false
}

// react turns a hostile sighting into a change of route: a badly hurt actor
// heads away from it, anyone else closes in to fight. Returns false when the
// route is left as it was.
func (s *Simulation) react(a *agents.Actor, sg sighting, now float64) bool {
	if a.Needs.Health < s.Tuning.Thresholds.LowHealth {
		if next, ok := a.Plan.Next(); ok && next != sg.node {
			return false
		}
		dest := s.escape(a, sg.node)
		if dest == "" {
			return false
		}
		s.stop(a, agents.Intent{Kind: agents.IntentSeekShelter, Target: dest, Activity: agents.ActivityRest})
		s.logEvent(now, a.ID, "travel", "%s turns away from %s", a.Name, sg.actor.Name)
		s.setOut(a, now)
		return true
	}

	if a.Plan.Destination() == sg.node {
		return false
	}
	s.stop(a, agents.Intent{Kind: agents.IntentEngage, Target: sg.node})
	s.logEvent(now, a.ID, "combat", "%s moves on %s at %s", a.Name, sg.actor.Name, sg.node)
	s.setOut(a, now)
	return true
}

// setOut starts travel toward the actor's intent, falling back to a decision
// if no route can be taken.
func (s *Simulation) setOut(a *agents.Actor, now float64) {
	if err := s.travel(a, a.Intent, now); err != nil {
		s.scheduleDecision(a, now+s.Tuning.ReactionDelay)
	}
}

func (s *Simulation) stop(a *agents.Actor, in agents.Intent) {
	if a.Plan != nil && a.Plan.Destination() != a.Node() {
		s.logEvent(s.Now(), a.ID, "travel", "%s stops at %s to %s", a.Name, a.Node(), in.Kind)
	}
	a.Plan = nil
	a.Intent = in
}

// proceed takes the next hop, or at the end of the route hands control back
// to the decision cycle.
func (s *Simulation) proceed(a *agents.Actor, now float64) {
	if a.Plan != nil && s.departNext(a, now) {
		return
	}
	a.Plan = nil
	s.scheduleDecision(a, now+s.Tuning.ReactionDelay)
}
