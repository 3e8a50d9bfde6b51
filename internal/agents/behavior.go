// Off-screen actor behavior: a strict five-level priority stack.
// Each decision cycle evaluates survival, critical needs, duty, discretion and
// default in that order and returns the first intent that applies.
package agents

import (
	"github.com/talgya/offscreen/internal/world"
)

// IntentKind enumerates what an actor has decided to do.
type IntentKind uint8

const (
	IntentIdle        IntentKind = iota // Stay at the current node
	IntentSeekShelter                   // Head for a safe node and rest
	IntentSeekFood                      // Eat from inventory or head for food
	IntentPerformDuty                   // Role-specific work or patrol
	IntentExplore                       // Visit an unmapped neighbor
	IntentGoHome                        // Return to the home node
	IntentEngage                        // Close on a hostile seen nearby
)

var intentNames = [...]string{"idle-wander", "seek-shelter", "seek-food", "perform-duty", "explore", "go-home", "engage"}

func (k IntentKind) String() string {
	if int(k) < len(intentNames) {
		return intentNames[k]
	}
	return "unknown"
}

// Activity is what an actor does once it is where its intent wants it.
type Activity uint8

const (
	ActivityNone Activity = iota
	ActivityEat           // Schedules FINISH_EAT
	ActivityRest          // Schedules REST_COMPLETE
	ActivityWork          // Schedules FINISH_WORK
)

// FoodSource is where a seek-food intent gets its meal.
type FoodSource uint8

const (
	FoodNone FoodSource = iota
	FoodInventory
	FoodStockpile
	FoodForage
)

// Intent is the single outcome of a decision cycle. An intent whose Target
// differs from the actor's node is handed to the travel planner; otherwise
// Activity runs in place.
type Intent struct {
	Kind     IntentKind   `json:"kind"`
	Target   world.NodeID `json:"target,omitempty"`
	Activity Activity     `json:"activity,omitempty"`
	Food     FoodSource   `json:"food,omitempty"`
	Patrol   int          `json:"patrol,omitempty"` // Patrol index after this leg (guards)
}

// Moves reports whether the intent needs travel from node.
func (i Intent) Moves(from world.NodeID) bool {
	return i.Target != "" && i.Target != from
}

// Thresholds tune the decision stack.
type Thresholds struct {
	LowHealth       float64 `koanf:"low_health"`       // Health below this: seek shelter
	CriticalHunger  float64 `koanf:"critical_hunger"`  // Hunger above this: seek food
	CriticalFatigue float64 `koanf:"critical_fatigue"` // Fatigue above this: rest
	ExploreChance   float64 `koanf:"explore_chance"`   // Per-cycle chance to explore
	WorkCooldown    float64 `koanf:"work_cooldown"`    // Minutes between shifts at the work node
}

// DefaultThresholds returns the stock decision tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowHealth:       0.3,
		CriticalHunger:  0.6,
		CriticalFatigue: 0.85,
		ExploreChance:   0.3,
		WorkCooldown:    240,
	}
}

// DecisionContext is the read-only world an actor decides against.
type DecisionContext struct {
	Graph      *world.Graph
	Now        float64
	Thresholds Thresholds
	// Roll returns a value in [0,1) for a named draw. Nil disables discretion.
	Roll func(salt string) float64
	// Stocked reports whether a stockpile has food left. Nil treats every
	// stockpile as stocked.
	Stocked func(world.NodeID) bool
}

// Decide runs the priority stack for an actor located at a node.
func Decide(a *Actor, ctx DecisionContext) Intent {
	here := a.Node()

	if in, ok := decideSurvival(a, ctx, here); ok {
		return in
	}
	if in, ok := decideNeeds(a, ctx, here); ok {
		return in
	}
	if in, ok := decideDuty(a, ctx, here); ok {
		return in
	}
	if in, ok := decideExplore(a, ctx, here); ok {
		return in
	}
	return decideDefault(a, here)
}

func decideSurvival(a *Actor, ctx DecisionContext, here world.NodeID) (Intent, bool) {
	if a.Needs.Health >= ctx.Thresholds.LowHealth {
		return Intent{}, false
	}
	target := NearestKnown(a, ctx.Graph, here, world.TagShelter, nil)
	if target == "" {
		target = a.Home
	}
	if target == "" || target == here {
		return Intent{Kind: IntentSeekShelter, Target: here, Activity: ActivityRest}, true
	}
	return Intent{Kind: IntentSeekShelter, Target: target, Activity: ActivityRest}, true
}

func decideNeeds(a *Actor, ctx DecisionContext, here world.NodeID) (Intent, bool) {
	if a.Needs.Hunger > ctx.Thresholds.CriticalHunger {
		if a.Inventory.Food() > 0 {
			return Intent{Kind: IntentSeekFood, Target: here, Activity: ActivityEat, Food: FoodInventory}, true
		}
		if target := NearestKnown(a, ctx.Graph, here, world.TagStockpile, ctx.Stocked); target != "" {
			return Intent{Kind: IntentSeekFood, Target: target, Activity: ActivityEat, Food: FoodStockpile}, true
		}
		if target := NearestKnown(a, ctx.Graph, here, world.TagFoodSource, nil); target != "" {
			return Intent{Kind: IntentSeekFood, Target: target, Activity: ActivityEat, Food: FoodForage}, true
		}
		// No known food: keep going and hope to find some.
	}
	if a.Needs.Fatigue > ctx.Thresholds.CriticalFatigue {
		target := NearestKnown(a, ctx.Graph, here, world.TagShelter, nil)
		if target == "" {
			target = here
		}
		return Intent{Kind: IntentSeekShelter, Target: target, Activity: ActivityRest}, true
	}
	return Intent{}, false
}

func decideDuty(a *Actor, ctx DecisionContext, here world.NodeID) (Intent, bool) {
	switch a.Role {
	case RoleFarmer, RoleRaider, RoleTrader:
		if a.Work == "" || (a.LastWorked > 0 && ctx.Now-a.LastWorked < ctx.Thresholds.WorkCooldown) {
			return Intent{}, false
		}
		return Intent{Kind: IntentPerformDuty, Target: a.Work, Activity: ActivityWork}, true
	case RoleGuard:
		if len(a.Patrol) == 0 {
			return Intent{}, false
		}
		// Walk to the next patrol post that is not where we stand.
		idx := a.PatrolIndex % len(a.Patrol)
		for i := 0; i < len(a.Patrol); i++ {
			post := a.Patrol[idx]
			idx = (idx + 1) % len(a.Patrol)
			if post != here {
				return Intent{Kind: IntentPerformDuty, Target: post, Patrol: idx}, true
			}
		}
		return Intent{Kind: IntentPerformDuty, Target: here, Patrol: idx}, true
	case RoleWanderer:
		return Intent{}, false
	default:
		panic("agents: unhandled role " + a.Role.String())
	}
}

func decideExplore(a *Actor, ctx DecisionContext, here world.NodeID) (Intent, bool) {
	if ctx.Roll == nil || ctx.Graph == nil || ctx.Roll("explore") >= ctx.Thresholds.ExploreChance {
		return Intent{}, false
	}
	var best world.Neighbor
	found := false
	for _, nb := range ctx.Graph.Neighbors(here) {
		if a.Memory != nil && a.Memory.Knows(LocationKey(nb.Node)) {
			continue
		}
		if !found || nb.Weight < best.Weight {
			best, found = nb, true
		}
	}
	if !found {
		return Intent{}, false
	}
	return Intent{Kind: IntentExplore, Target: best.Node}, true
}

func decideDefault(a *Actor, here world.NodeID) Intent {
	if a.Home != "" && here != a.Home {
		return Intent{Kind: IntentGoHome, Target: a.Home}
	}
	return Intent{Kind: IntentIdle, Target: here}
}

// NearestKnown returns the cheapest node to reach that the actor remembers as
// offering tag and that usable accepts, or "" when none is known or
// reachable. A nil usable accepts every node.
func NearestKnown(a *Actor, g *world.Graph, here world.NodeID, tag world.Tag, usable func(world.NodeID) bool) world.NodeID {
	if g == nil || a.Memory == nil {
		return ""
	}
	known := make(map[world.NodeID]bool)
	for _, e := range a.Memory.Prefix(NSLocation) {
		if e.Value.HasTag(tag) {
			known[world.NodeID(Subject(e.Key))] = true
		}
	}
	id, _, ok := g.NearestWith(here, func(n *world.Node) bool {
		return known[n.ID] && (usable == nil || usable(n.ID))
	})
	if !ok {
		return ""
	}
	return id
}
