// LOD bridge: the single crossing point between the real-time world and the
// off-screen simulation. Each actor is driven by exactly one Behavior.
package engine

import (
	"errors"

	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// LOD is an actor's level of detail.
type LOD uint8

const (
	LODSimulated LOD = iota // Off-screen, event-driven
	LODActive               // On-screen, frame-driven
)

func (l LOD) String() string {
	if l == LODActive {
		return "active"
	}
	return "simulated"
}

// Behavior is whatever currently drives an actor.
type Behavior interface {
	LOD() LOD
	// Decides reports whether decision-driven behavior may run at now.
	Decides(now float64) bool
}

// ActiveBehavior drives a promoted actor in real time. Decisions are held
// back until the grace window closes.
type ActiveBehavior struct {
	Entity     Entity
	GraceUntil float64
}

func (ActiveBehavior) LOD() LOD { return LODActive }

func (b ActiveBehavior) Decides(now float64) bool { return now >= b.GraceUntil }

// SimulatedBehavior leaves an actor to the event scheduler.
type SimulatedBehavior struct{}

func (SimulatedBehavior) LOD() LOD { return LODSimulated }

func (SimulatedBehavior) Decides(float64) bool { return true }

// Entity is the real-time view of an actor handed across the bridge.
type Entity struct {
	ID       agents.ActorID `json:"id"`
	Zone     string         `json:"zone"`
	Position world.HexCoord `json:"position"`
	Heading  world.NodeID   `json:"heading,omitempty"` // Node it was walking toward
	State    *agents.Actor  `json:"state"`
}

// Embodiment is the real-time side: it owns rendering and physics for
// promoted actors.
type Embodiment interface {
	Attach(e Entity) error
	Detach(id agents.ActorID) error
}

// Bridge converts actors between Active and Simulated.
type Bridge struct {
	sim       *Simulation
	body      Embodiment
	behaviors map[agents.ActorID]Behavior
}

// NewBridge creates a bridge. Actors already in the simulation start out
// Simulated. A nil embodiment is allowed for headless runs.
func NewBridge(sim *Simulation, body Embodiment) *Bridge {
	b := &Bridge{sim: sim, body: body, behaviors: make(map[agents.ActorID]Behavior)}
	for _, a := range sim.Actors() {
		b.behaviors[a.ID] = SimulatedBehavior{}
	}
	return b
}

// Behavior returns what drives an actor, or nil if the bridge has never
// seen it.
func (b *Bridge) Behavior(id agents.ActorID) Behavior {
	return b.behaviors[id]
}

// MayDecide reports whether an actor's decision logic may run at now.
func (b *Bridge) MayDecide(id agents.ActorID, now float64) bool {
	bh, ok := b.behaviors[id]
	return ok && bh.Decides(now)
}

// Demote hands a real-time entity to the simulation. Its position snaps to
// the nearest node of its zone; an entity that had just set out toward an
// adjacent node resumes that edge part-way along.
func (b *Bridge) Demote(e Entity) (*agents.Actor, error) {
	if e.State == nil {
		return nil, oops.Code(CodeInvalidState).With("actor", e.ID).Errorf("entity %s carries no actor state", e.ID)
	}
	if bh, ok := b.behaviors[e.ID]; ok && bh.LOD() == LODSimulated {
		return nil, oops.Code(CodeActorExists).With("actor", e.ID).Errorf("actor %s is already simulated", e.ID)
	}
	node, ok := b.sim.Graph.NearestNode(e.Zone, e.Position)
	if !ok {
		return nil, oops.Code(world.CodeUnknownNode).With("zone", e.Zone).Errorf("no node in zone %q", e.Zone)
	}

	now := b.sim.Now()
	a := e.State
	a.ID = e.ID
	a.Plan = nil
	a.Encounter = ""
	a.Position = b.approximate(node, e, now)
	if a.Position.InTransit() {
		a.Plan = &agents.TravelPlan{
			Route:   []world.NodeID{a.Position.Node, a.Position.To},
			Purpose: agents.Intent{Kind: a.Intent.Kind, Target: a.Position.To},
		}
	}

	delay := b.sim.Rolls.Between(b.sim.Tuning.DemoteDelayMin, b.sim.Tuning.DemoteDelayMax, now, "demote", string(e.ID))
	if err := b.sim.AddActor(a, now+delay); err != nil {
		return nil, err
	}
	if b.body != nil {
		if err := b.body.Detach(e.ID); err != nil {
			_, _ = b.sim.RemoveActor(e.ID)
			return nil, oops.Code(CodeInvalidState).With("actor", e.ID).Wrapf(err, "detach embodiment")
		}
	}
	b.behaviors[e.ID] = SimulatedBehavior{}
	b.sim.logEvent(now, e.ID, "lod", "%s leaves view at %s", a.Name, a.Position.Node)
	return a, nil
}

// approximate places an entity on the graph: at node, or on the edge toward
// its heading when it stands between the two anchors.
func (b *Bridge) approximate(node world.NodeID, e Entity, now float64) agents.Position {
	if e.Heading == "" || e.Heading == node {
		return agents.At(node)
	}
	w, ok := b.sim.Graph.EdgeWeight(node, e.Heading)
	if !ok {
		return agents.At(node)
	}
	from, to := b.sim.Graph.Node(node).Anchor, b.sim.Graph.Node(e.Heading).Anchor
	total := world.Distance(from, to)
	if total == 0 {
		return agents.At(node)
	}
	progress := float64(world.Distance(from, e.Position)) / float64(total)
	if progress <= 0 || progress >= 1 {
		return agents.At(node)
	}
	return agents.Position{
		Node:   node,
		To:     e.Heading,
		Depart: now - progress*w,
		Arrive: now + (1-progress)*w,
	}
}

// Promote takes an actor out of the simulation and materializes it at its
// node's anchor, heading for the next node of any route it was on. A fight in
// progress is settled first; an actor that dies in it is not promoted.
func (b *Bridge) Promote(id agents.ActorID) (Entity, error) {
	if _, err := b.sim.Actor(id); err != nil {
		return Entity{}, err
	}
	now := b.sim.Now()
	a, err := b.sim.RemoveActor(id)
	if err != nil {
		return Entity{}, err
	}
	if !a.Alive && !a.PlayerOwned {
		delete(b.behaviors, id)
		return Entity{}, oops.Code(CodeInvalidState).With("actor", id).Errorf("actor %s died before promotion", id)
	}

	route := a.Plan.Remaining()
	a.Position = agents.At(a.Position.Nearest(now))
	a.Plan = nil
	node := b.sim.Graph.Node(a.Position.Node)
	e := Entity{ID: id, Zone: node.Zone, Position: node.Anchor, State: a}
	for _, n := range route {
		if n != node.ID {
			e.Heading = n
			break
		}
	}
	if b.body != nil {
		if err := b.body.Attach(e); err != nil {
			attachErr := oops.Code(CodeInvalidState).With("actor", id).Wrapf(err, "attach embodiment")
			if rerr := b.sim.AddActor(a, now); rerr != nil {
				delete(b.behaviors, id)
				return Entity{}, oops.Code(CodeInvalidState).With("actor", id).
					Wrapf(errors.Join(attachErr, rerr), "actor %s lost: attach failed and it could not be re-simulated", id)
			}
			return Entity{}, attachErr
		}
	}
	b.behaviors[id] = ActiveBehavior{Entity: e, GraceUntil: now + b.sim.Tuning.GraceWindow}
	b.sim.logEvent(now, id, "lod", "%s comes into view at %s", a.Name, node.ID)
	return e, nil
}
