package engine

import (
	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// onDecision runs one decision cycle for a located actor.
func (s *Simulation) onDecision(a *agents.Actor, now float64) {
	if a.Encounter != "" || a.Position.InTransit() {
		return
	}
	if s.meet(a, now) {
		return
	}

	in := agents.Decide(a, agents.DecisionContext{
		Graph:      s.Graph,
		Now:        now,
		Thresholds: s.Tuning.Thresholds,
		Roll: func(salt string) float64 {
			return s.roll(now, "decide", string(a.ID), salt)
		},
		Stocked: s.stocked,
	})
	a.Intent = in
	if a.Role == agents.RoleGuard && in.Kind == agents.IntentPerformDuty {
		a.PatrolIndex = in.Patrol
	}

	if in.Moves(a.Node()) {
		if err := s.travel(a, in, now); err != nil {
			s.Logger.Debug("route failed", "actor", a.ID, "target", in.Target, "error", err)
			a.Intent = agents.Intent{Kind: agents.IntentIdle, Target: a.Node()}
			s.scheduleDecision(a, now+s.Tuning.IdleMax)
		}
		return
	}
	s.begin(a, in, now)
}

// begin starts an intent's activity at the actor's current node.
func (s *Simulation) begin(a *agents.Actor, in agents.Intent, now float64) {
	switch in.Activity {
	case agents.ActivityEat:
		s.Sched.Schedule(now+s.Tuning.EatDuration, EventFinishEat, a.ID, Payload{Food: in.Food})
	case agents.ActivityRest:
		d := agents.RestDuration(a.Needs, s.Tuning.RestScale, s.Tuning.RestMin)
		s.Sched.Schedule(now+d, EventRestComplete, a.ID, Payload{Duration: d})
	case agents.ActivityWork:
		s.Sched.Schedule(now+s.Tuning.WorkDuration, EventFinishWork, a.ID,
			Payload{Node: a.Node(), Duration: s.Tuning.WorkDuration})
	default:
		wait := s.Rolls.Between(s.Tuning.IdleMin, s.Tuning.IdleMax, now, "idle", string(a.ID))
		s.scheduleDecision(a, now+wait)
	}
}

func (s *Simulation) onFinishEat(a *agents.Actor, ev Event) {
	node := s.Graph.Node(a.Node())
	ate := false
	switch ev.Payload.Food {
	case agents.FoodInventory:
		ate = a.Inventory.TakeFood()
	case agents.FoodStockpile:
		ate = node != nil && s.draw(node.ID)
	case agents.FoodForage:
		ate = node != nil && node.Has(world.TagFoodSource)
	}
	if ate {
		a.Eat()
	} else {
		s.logEvent(ev.Time, a.ID, "needs", "%s found nothing to eat at %s", a.Name, a.Node())
	}
	s.scheduleDecision(a, ev.Time+s.Tuning.ReactionDelay)
}

func (s *Simulation) onRestComplete(a *agents.Actor, ev Event) {
	a.Rest(ev.Payload.Duration, s.Tuning.Rates)
	s.scheduleDecision(a, ev.Time+s.Tuning.ReactionDelay)
}

// onFinishWork pays out a finished shift. Farm yield goes to the nearest
// stockpile. Raiders working a node rob it, and everyone who sees it
// remembers the crime.
func (s *Simulation) onFinishWork(a *agents.Actor, ev Event) {
	a.LastWorked = ev.Time
	if ev.Payload.Node != "" && ev.Payload.Node == a.Node() {
		switch a.Role {
		case agents.RoleFarmer:
			if depot := s.deposit(a.Node(), s.Tuning.FarmYield); depot != "" {
				s.Logger.Debug("harvest stored", "actor", a.ID, "stockpile", depot, "food", s.stock[depot])
			} else {
				a.Inventory["grain"]++
			}
		case agents.RoleTrader:
			a.Inventory["goods"]++
		case agents.RoleRaider:
			s.draw(a.Node())
			a.Inventory["food"]++
			s.ReportCrime(a.ID, a.Node(), ev.Time, "raid")
		case agents.RoleGuard, agents.RoleWanderer:
		default:
			panic("engine: unhandled role " + a.Role.String())
		}
	}
	s.scheduleDecision(a, ev.Time+s.Tuning.ReactionDelay)
}

// meet handles co-located actors when a decision cycle starts: friends trade
// news, and an enemy present starts a fight. Returns true if a fight began.
func (s *Simulation) meet(a *agents.Actor, now float64) bool {
	for _, other := range s.ActorsAt(a.Node()) {
		if other.ID == a.ID || other.Encounter != "" {
			continue
		}
		if s.Factions.Friendly(a.Faction, other.Faction) {
			s.exchange(a, other, now)
		}
	}
	if enemy := s.enemyAt(a, a.Node(), now); enemy != nil {
		s.startEncounter(a, enemy, a.Node(), now)
		return true
	}
	return false
}

// enemyAt returns the first co-located actor, by id, that a or they would
// fight, or nil.
func (s *Simulation) enemyAt(a *agents.Actor, node world.NodeID, now float64) *agents.Actor {
	for _, other := range s.ActorsAt(node) {
		if other.ID == a.ID || other.Encounter != "" {
			continue
		}
		if s.hostile(a, other, now) {
			return other
		}
	}
	return nil
}

// exchange shares news both ways between two actors.
func (s *Simulation) exchange(a, b *agents.Actor, now float64) {
	ab := a.Memory.Share(b.Memory, now, s.ttl)
	ba := b.Memory.Share(a.Memory, now, s.ttl)
	s.Metrics.shared(len(ab) + len(ba))
	s.noteCrimes(b, ab, now)
	s.noteCrimes(a, ba, now)
}

// noteCrimes logs a guard learning of a crime second hand.
func (s *Simulation) noteCrimes(receiver *agents.Actor, keys []string, now float64) {
	if receiver.Role != agents.RoleGuard {
		return
	}
	for _, k := range keys {
		if agents.Namespace(k) == agents.NSCrime {
			s.logEvent(now, receiver.ID, "memory", "%s hears of a crime by %s", receiver.Name, agents.Subject(k))
		}
	}
}
