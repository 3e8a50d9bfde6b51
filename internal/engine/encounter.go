// Stat combat: off-screen fights settle from time-to-kill, with periodic
// chances for the losing side to break away.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/combat"
	"github.com/talgya/offscreen/internal/world"
)

// Encounter is a fight in progress between two actors on one node.
type Encounter struct {
	ID         string            `json:"id"`
	Node       world.NodeID      `json:"node"`
	Attacker   agents.ActorID    `json:"attacker"`
	Defender   agents.ActorID    `json:"defender"`
	Start      float64           `json:"start"`
	Fighters   [2]combat.Fighter `json:"fighters"` // Indexed by combat.Side, as they stood at Start
	Projection combat.Projection `json:"projection"`
}

// End returns when the fight concludes if nobody flees.
func (e *Encounter) End() float64 {
	return e.Start + e.Projection.Duration
}

func (e *Encounter) id(side combat.Side) agents.ActorID {
	if side == combat.Attacker {
		return e.Attacker
	}
	return e.Defender
}

// Encounters returns the fights in progress.
func (s *Simulation) Encounters() []*Encounter {
	out := make([]*Encounter, 0, len(s.encounters))
	for _, e := range s.encounters {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fighter(a *agents.Actor) combat.Fighter {
	return combat.Fighter{
		HP:            a.HPEquivalent(),
		MaxHP:         a.Stats.MaxHP,
		DPS:           combat.EffectiveDPS(a.Stats.BaseDamage, a.Stats.WeaponBonus, a.Stats.AttackSpeed),
		MoveSpeed:     a.Stats.MoveSpeed,
		FleeThreshold: a.Stats.FleeThreshold,
	}
}

// startEncounter halts both actors and queues the fight's conclusion and
// its first flee check.
func (s *Simulation) startEncounter(attacker, defender *agents.Actor, node world.NodeID, now float64) *Encounter {
	for _, a := range []*agents.Actor{attacker, defender} {
		s.Sched.CancelActor(a.ID)
		s.snap(a, now)
		a.Plan = nil
	}

	s.nextEncounter++
	enc := &Encounter{
		ID:       fmt.Sprintf("enc-%d", s.nextEncounter),
		Node:     node,
		Attacker: attacker.ID,
		Defender: defender.ID,
		Start:    now,
		Fighters: [2]combat.Fighter{fighter(attacker), fighter(defender)},
	}
	enc.Projection = combat.Project(enc.Fighters[combat.Attacker], enc.Fighters[combat.Defender])
	s.encounters[enc.ID] = enc
	attacker.Encounter = enc.ID
	defender.Encounter = enc.ID

	s.Sched.Schedule(enc.End(), EventCombatResolved, attacker.ID, Payload{Encounter: enc.ID})
	if first := now + s.Tuning.FleeInterval; s.Tuning.FleeInterval > 0 && first < enc.End() {
		s.Sched.Schedule(first, EventCombatFleeCheck, attacker.ID, Payload{Encounter: enc.ID})
	}
	s.logEvent(now, attacker.ID, "combat", "%s attacks %s at %s", attacker.Name, defender.Name, node)
	return enc
}

func (s *Simulation) onCombatEvent(ev Event) {
	enc, ok := s.encounters[ev.Payload.Encounter]
	if !ok {
		s.stale(ev, "encounter already settled")
		return
	}
	att, aok := s.actors[enc.Attacker]
	def, dok := s.actors[enc.Defender]
	if !aok || !dok || !att.Active() || !def.Active() {
		s.stale(ev, "combatant no longer simulated")
		s.abandon(enc, ev.Time)
		return
	}

	starved := false
	for _, a := range []*agents.Actor{att, def} {
		if a.Advance(ev.Time, s.Tuning.Rates) {
			starved = true
		}
	}
	if starved {
		s.abandon(enc, ev.Time)
		for _, a := range []*agents.Actor{att, def} {
			if !a.Alive {
				s.kill(a, ev.Time, "starved")
			}
		}
		return
	}

	switch ev.Kind {
	case EventCombatFleeCheck:
		s.fleeCheck(enc, att, def, ev.Time)
	case EventCombatResolved:
		s.resolve(enc, att, def, ev.Time)
	}
}

// fleeCheck gives the attacker, then the defender, a chance to break off if
// their projected health has fallen to their flee threshold.
func (s *Simulation) fleeCheck(enc *Encounter, att, def *agents.Actor, t float64) {
	elapsed := t - enc.Start
	for _, side := range []combat.Side{combat.Attacker, combat.Defender} {
		f, opp := enc.Fighters[side], enc.Fighters[side.Other()]
		if !f.WantsToFlee(opp.DPS, elapsed) {
			continue
		}
		if s.Rolls.Chance(combat.FleeChance(f.MoveSpeed, opp.MoveSpeed), t, "flee", enc.ID, side.String()) {
			s.flee(enc, att, def, side, t)
			return
		}
	}
	if next := t + s.Tuning.FleeInterval; next < enc.End() {
		s.Sched.Schedule(next, EventCombatFleeCheck, att.ID, Payload{Encounter: enc.ID})
	}
}

// flee ends the fight early: both sides keep the damage taken so far and the
// one fleeing heads for safety.
func (s *Simulation) flee(enc *Encounter, att, def *agents.Actor, side combat.Side, t float64) {
	elapsed := t - enc.Start
	fa, fd := enc.Fighters[combat.Attacker], enc.Fighters[combat.Defender]
	setHP(att, math.Max(1, fa.ProjectedHP(fd.DPS, elapsed)))
	setHP(def, math.Max(1, fd.ProjectedHP(fa.DPS, elapsed)))
	s.finish(enc)

	runner, stayer := att, def
	if side == combat.Defender {
		runner, stayer = def, att
	}
	runner.Memory.Observe(agents.ThreatKey(stayer.ID), agents.MemoryValue{
		Node: enc.Node, Actor: stayer.ID, Faction: stayer.Faction, Level: stayer.HPEquivalent(),
	}, t)
	runner.Memory.Observe(agents.CombatKey(enc.ID), agents.MemoryValue{Node: enc.Node, Actor: stayer.ID, Note: "fled"}, t)
	stayer.Memory.Observe(agents.CombatKey(enc.ID), agents.MemoryValue{Node: enc.Node, Actor: runner.ID, Note: "drove off"}, t)
	s.Metrics.combatFinished("fled")
	s.logEvent(t, runner.ID, "combat", "%s flees from %s", runner.Name, stayer.Name)

	s.scheduleDecision(stayer, t+s.Tuning.ReactionDelay)
	if dest := s.escape(runner, ""); dest != "" {
		in := agents.Intent{Kind: agents.IntentSeekShelter, Target: dest, Activity: agents.ActivityRest}
		runner.Intent = in
		if err := s.travel(runner, in, t); err == nil {
			return
		}
	}
	s.scheduleDecision(runner, t+s.Tuning.ReactionDelay)
}

// refuge returns the nearest remembered shelter, or home.
func (s *Simulation) refuge(a *agents.Actor) world.NodeID {
	if id := agents.NearestKnown(a, s.Graph, a.Node(), world.TagShelter, nil); id != "" {
		return id
	}
	return a.Home
}

// escape picks where a threatened actor runs: its refuge when that lies
// elsewhere and the way there does not lead through avoid, otherwise the
// cheapest adjacent node other than avoid. Returns "" when there is nowhere
// to go.
func (s *Simulation) escape(a *agents.Actor, avoid world.NodeID) world.NodeID {
	here := a.Node()
	if r := s.refuge(a); r != "" && r != here && r != avoid {
		if path, err := s.Graph.ShortestPath(here, r); err == nil && len(path.Nodes) > 1 && path.Nodes[1] != avoid {
			return r
		}
	}
	adjacent := make(map[world.NodeID]bool)
	for _, nb := range s.Graph.Neighbors(here) {
		if nb.Node != avoid && nb.Node != here {
			adjacent[nb.Node] = true
		}
	}
	id, _, ok := s.Graph.NearestWith(here, func(n *world.Node) bool { return adjacent[n.ID] })
	if !ok {
		return ""
	}
	return id
}

// resolve runs the fight to its end: the winner takes the damage dealt over
// the whole fight and the loser's belongings; the loser dies.
func (s *Simulation) resolve(enc *Encounter, att, def *agents.Actor, t float64) {
	p := enc.Projection
	winner, loser := att, def
	if p.Winner == combat.Defender {
		winner, loser = def, att
	}
	setHP(winner, combat.WinnerHP(p, enc.Fighters[combat.Attacker], enc.Fighters[combat.Defender]))
	s.finish(enc)

	looted := loser.Inventory.Total()
	loser.Inventory.MergeInto(winner.Inventory)
	winner.Memory.Observe(agents.CombatKey(enc.ID), agents.MemoryValue{
		Node: enc.Node, Actor: loser.ID, Faction: loser.Faction, Level: float64(looted), Note: "won",
	}, t)
	loser.Memory.Observe(agents.CombatKey(enc.ID), agents.MemoryValue{
		Node: enc.Node, Actor: winner.ID, Faction: winner.Faction, Note: "lost",
	}, t)
	s.Metrics.combatFinished("killed")
	s.logEvent(t, winner.ID, "combat", "%s defeats %s at %s", winner.Name, loser.Name, enc.Node)

	s.kill(loser, t, "killed by "+winner.Name)
	s.scheduleDecision(winner, t+s.Tuning.ReactionDelay)
}

// ForceResolve settles a fight immediately with the outcome it would reach
// if left to run.
func (s *Simulation) ForceResolve(id string) error {
	enc, ok := s.encounters[id]
	if !ok {
		return oops.Code(CodeInvalidState).With("encounter", id).Errorf("no encounter %s", id)
	}
	att, aok := s.actors[enc.Attacker]
	def, dok := s.actors[enc.Defender]
	if !aok || !dok {
		s.abandon(enc, s.Now())
		return nil
	}
	now := s.Now()
	att.Advance(now, s.Tuning.Rates)
	def.Advance(now, s.Tuning.Rates)
	s.resolve(enc, att, def, now)
	return nil
}

// finish removes a fight and its pending events.
func (s *Simulation) finish(enc *Encounter) {
	delete(s.encounters, enc.ID)
	for _, id := range []agents.ActorID{enc.Attacker, enc.Defender} {
		s.Sched.CancelActor(id)
		if a, ok := s.actors[id]; ok && a.Encounter == enc.ID {
			a.Encounter = ""
		}
	}
}

// abandon drops a fight that can no longer conclude and sends any surviving
// participant back to its decision cycle.
func (s *Simulation) abandon(enc *Encounter, t float64) {
	s.finish(enc)
	for _, side := range []combat.Side{combat.Attacker, combat.Defender} {
		if a, ok := s.actors[enc.id(side)]; ok && a.Active() {
			s.scheduleDecision(a, t+s.Tuning.ReactionDelay)
		}
	}
}

func setHP(a *agents.Actor, hp float64) {
	if a.Stats.MaxHP <= 0 {
		return
	}
	a.Needs.Health = math.Max(0, math.Min(1, hp/a.Stats.MaxHP))
}
