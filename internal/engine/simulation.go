// Package engine runs the off-screen world: an event-driven simulation of
// actors on a node graph, with no fixed tick.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/entropy"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// Error codes.
const (
	CodeUnknownActor = "UNKNOWN_ACTOR"
	CodeActorExists  = "ACTOR_EXISTS"
	CodeStaleEvent   = "STALE_EVENT_REFERENCE"
	CodeInvalidState = "INVALID_STATE"
)

// Simulation holds the off-screen world state and dispatches scheduled
// events. It is not safe for concurrent use; Runner serializes access.
type Simulation struct {
	Graph    *world.Graph
	Factions *social.Registry
	Tuning   Tuning
	Sched    *Scheduler
	Rolls    entropy.Source
	Metrics  *Metrics
	Logger   *slog.Logger
	Events   []LogEntry // Recent notable occurrences, oldest first

	actors        map[agents.ActorID]*agents.Actor
	encounters    map[string]*Encounter
	nextEncounter int
	nextLog       int64
	stock         map[world.NodeID]int // Food held by each stockpile node
	ttl           agents.TTL
}

// LogEntry is a notable occurrence in the off-screen world.
type LogEntry struct {
	Seq         int64          `json:"seq"`
	Time        float64        `json:"time"`
	Actor       agents.ActorID `json:"actor,omitempty"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "travel", "combat", "death", "memory", "crime", ...
}

// Options configure a new simulation.
type Options struct {
	Tuning  Tuning
	Seed    int64
	Start   float64
	Logger  *slog.Logger
	Metrics *Metrics
}

// New creates an empty simulation over a validated graph.
func New(g *world.Graph, factions *social.Registry, opts Options) (*Simulation, error) {
	if g == nil {
		return nil, oops.Code(CodeInvalidState).Errorf("simulation needs a topology")
	}
	if factions == nil {
		factions, _ = social.NewRegistry(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stock := make(map[world.NodeID]int)
	for _, n := range g.Nodes() {
		if !n.Has(world.TagStockpile) {
			continue
		}
		stock[n.ID] = opts.Tuning.StockpileStart
		if n.Capacity > 0 {
			stock[n.ID] = n.Capacity
		}
	}
	return &Simulation{
		Graph:      g,
		Factions:   factions,
		Tuning:     opts.Tuning,
		Sched:      NewScheduler(opts.Start),
		Rolls:      entropy.New(opts.Seed),
		Metrics:    opts.Metrics,
		Logger:     logger,
		actors:     make(map[agents.ActorID]*agents.Actor),
		encounters: make(map[string]*Encounter),
		stock:      stock,
		ttl:        opts.Tuning.TTL.Map(),
	}, nil
}

// Now returns the simulation clock.
func (s *Simulation) Now() float64 {
	return s.Sched.Now()
}

// AddActor places an actor under simulation. A located actor gets its first
// DECISION_CYCLE at firstDecision; an actor in transit resumes with an
// ARRIVE_NODE at its arrival time.
func (s *Simulation) AddActor(a *agents.Actor, firstDecision float64) error {
	if a == nil || a.ID == "" {
		return oops.Code(CodeInvalidState).Errorf("actor has no id")
	}
	if _, ok := s.actors[a.ID]; ok {
		return oops.Code(CodeActorExists).With("actor", a.ID).Errorf("actor %s is already simulated", a.ID)
	}
	for _, n := range []world.NodeID{a.Position.Node, a.Position.To} {
		if n != "" && !s.Graph.Has(n) {
			return oops.Code(world.CodeUnknownNode).With("actor", a.ID).With("node", n).
				Errorf("actor %s is at unknown node %q", a.ID, n)
		}
	}
	if a.Position.Node == "" {
		return oops.Code(CodeInvalidState).With("actor", a.ID).Errorf("actor %s has no position", a.ID)
	}
	if a.Memory == nil {
		a.Memory = agents.NewMemoryStore(s.Tuning.MemoryCapacity)
	}
	if a.Inventory == nil {
		a.Inventory = agents.Inventory{}
	}
	if a.LastUpdate < s.Now() {
		a.LastUpdate = s.Now()
	}
	a.Encounter = ""
	s.actors[a.ID] = a

	if a.Position.InTransit() {
		s.Sched.Schedule(a.Position.Arrive, EventArriveNode, a.ID, Payload{Node: a.Position.To})
	} else {
		s.scheduleDecision(a, firstDecision)
	}
	s.Metrics.observe(len(s.actors), s.Sched.Len())
	return nil
}

// RemoveActor takes an actor out of the simulation, settling any fight it is
// in and cancelling all of its pending events.
func (s *Simulation) RemoveActor(id agents.ActorID) (*agents.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return nil, oops.Code(CodeUnknownActor).With("actor", id).Errorf("unknown actor %s", id)
	}
	if a.Encounter != "" {
		if err := s.ForceResolve(a.Encounter); err != nil {
			return nil, err
		}
	}
	s.Sched.CancelActor(id)
	delete(s.actors, id)
	s.Metrics.observe(len(s.actors), s.Sched.Len())
	return a, nil
}

// Actor returns a simulated actor.
func (s *Simulation) Actor(id agents.ActorID) (*agents.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return nil, oops.Code(CodeUnknownActor).With("actor", id).Errorf("unknown actor %s", id)
	}
	return a, nil
}

// Actors returns every simulated actor ordered by id.
func (s *Simulation) Actors() []*agents.Actor {
	out := make([]*agents.Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActorsAt returns active actors located at a node, ordered by id. Actors in
// transit are on no node.
func (s *Simulation) ActorsAt(node world.NodeID) []*agents.Actor {
	var out []*agents.Actor
	for _, a := range s.actors {
		if a.Active() && !a.Position.InTransit() && a.Position.Node == node {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemoryOf returns an actor's memory entries ordered by key.
func (s *Simulation) MemoryOf(id agents.ActorID) ([]agents.MemoryEntry, error) {
	a, err := s.Actor(id)
	if err != nil {
		return nil, err
	}
	return a.Memory.Entries(), nil
}

// HostileToward reports whether actor id currently treats target as an
// enemy: by faction stance, or for guards by a live memory of target's crime.
// target need not be simulated.
func (s *Simulation) HostileToward(id, target agents.ActorID) bool {
	a, ok := s.actors[id]
	if !ok {
		return false
	}
	var faction social.FactionID
	if b, ok := s.actors[target]; ok {
		faction = b.Faction
	}
	return s.hostileTo(a, target, faction, s.Now())
}

func (s *Simulation) hostileTo(a *agents.Actor, target agents.ActorID, faction social.FactionID, now float64) bool {
	if a.ID == target {
		return false
	}
	if faction != "" && s.Factions.Hostile(a.Faction, faction) {
		return true
	}
	if a.Role != agents.RoleGuard {
		return false
	}
	e, ok := a.Memory.Recall(agents.CrimeKey(target))
	return ok && !s.ttl.Expired(&e, now)
}

// hostile reports whether either actor would start a fight with the other.
func (s *Simulation) hostile(a, b *agents.Actor, now float64) bool {
	return s.hostileTo(a, b.ID, b.Faction, now) || s.hostileTo(b, a.ID, a.Faction, now)
}

// AdvanceTo processes every event due up to t in time order, then sets the
// clock to t. Returns the events dispatched.
func (s *Simulation) AdvanceTo(t float64) ([]Event, error) {
	if t < s.Now() {
		return nil, oops.Code(CodeInvalidState).With("now", s.Now()).With("target", t).
			Errorf("cannot move the clock back from %.2f to %.2f", s.Now(), t)
	}
	var fired []Event
	for {
		ev, ok := s.Sched.PopDue(t)
		if !ok {
			break
		}
		fired = append(fired, ev)
		s.dispatch(ev)
	}
	s.Sched.AdvanceTo(t)
	s.Metrics.observe(len(s.actors), s.Sched.Len())
	return fired, nil
}

func (s *Simulation) dispatch(ev Event) {
	s.Metrics.eventFired(ev.Kind)

	if ev.Kind == EventCombatFleeCheck || ev.Kind == EventCombatResolved {
		s.onCombatEvent(ev)
		return
	}

	a, ok := s.actors[ev.Actor]
	if !ok || !a.Active() {
		s.stale(ev, "actor no longer simulated")
		return
	}
	if a.Advance(ev.Time, s.Tuning.Rates) {
		s.kill(a, ev.Time, "starved")
		return
	}
	a.Memory.PurgeStale(ev.Time, s.ttl)

	switch ev.Kind {
	case EventDecisionCycle:
		s.onDecision(a, ev.Time)
	case EventArriveNode:
		s.onArrive(a, ev)
	case EventFinishEat:
		s.onFinishEat(a, ev)
	case EventRestComplete:
		s.onRestComplete(a, ev)
	case EventFinishWork:
		s.onFinishWork(a, ev)
	default:
		s.stale(ev, "unhandled event kind")
	}
}

// stale drops an event whose references no longer hold.
func (s *Simulation) stale(ev Event, reason string) {
	s.Metrics.staleEvent()
	err := oops.Code(CodeStaleEvent).
		With("kind", ev.Kind.String()).
		With("actor", ev.Actor).
		With("time", ev.Time).
		Errorf("dropped event: %s", reason)
	s.Logger.Debug("stale event", "error", err, "kind", ev.Kind.String(), "actor", ev.Actor, "time", ev.Time)
}

// scheduleDecision replaces any pending DECISION_CYCLE for the actor.
func (s *Simulation) scheduleDecision(a *agents.Actor, t float64) {
	s.Sched.CancelKind(a.ID, EventDecisionCycle)
	s.Sched.Schedule(t, EventDecisionCycle, a.ID, Payload{})
}

// kill ends an actor. Player-owned actors are tombstoned and kept for the
// owner to find; everyone else leaves the simulation.
func (s *Simulation) kill(a *agents.Actor, now float64, cause string) {
	a.Alive = false
	a.Plan = nil
	s.Sched.CancelActor(a.ID)
	if a.PlayerOwned {
		a.Tombstoned = true
		s.logEvent(now, a.ID, "death", "%s fell (%s) and lies where they fell", a.Name, cause)
		return
	}
	delete(s.actors, a.ID)
	s.logEvent(now, a.ID, "death", "%s has died (%s)", a.Name, cause)
}

// logEvent records a notable occurrence, keeping the most recent entries.
func (s *Simulation) logEvent(t float64, actor agents.ActorID, category, format string, args ...any) {
	desc := fmt.Sprintf(format, args...)
	s.nextLog++
	s.Events = append(s.Events, LogEntry{Seq: s.nextLog, Time: t, Actor: actor, Description: desc, Category: category})
	if limit := s.Tuning.EventLogCapacity; limit > 0 && len(s.Events) > limit {
		s.Events = s.Events[len(s.Events)-limit:]
	}
	s.Logger.Debug(desc, "category", category, "actor", actor, "time", t)
}

func (s *Simulation) roll(t float64, keys ...string) float64 {
	return s.Rolls.Roll(t, keys...)
}

// Disposition summarizes what an actor is doing.
type Disposition string

const (
	DispositionLocated   Disposition = "located"
	DispositionInTransit Disposition = "in-transit"
	DispositionInCombat  Disposition = "in-combat"
	DispositionDead      Disposition = "dead"
)

// ActorState is an inspection view of one actor.
type ActorState struct {
	Actor       *agents.Actor `json:"actor"`
	Disposition Disposition   `json:"disposition"`
	Pending     []Event       `json:"pending"`
}

// StateOf returns an actor together with its disposition and pending events.
func (s *Simulation) StateOf(id agents.ActorID) (ActorState, error) {
	a, err := s.Actor(id)
	if err != nil {
		return ActorState{}, err
	}
	st := ActorState{Actor: a, Pending: s.Sched.PendingFor(id)}
	switch {
	case !a.Active():
		st.Disposition = DispositionDead
	case a.Encounter != "":
		st.Disposition = DispositionInCombat
	case a.Position.InTransit():
		st.Disposition = DispositionInTransit
	default:
		st.Disposition = DispositionLocated
	}
	return st, nil
}
