package engine

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// State is everything needed to resume a simulation exactly: restoring it
// over the same topology replays the same events in the same order.
type State struct {
	Seed          int64           `json:"seed"`
	Scheduler     SchedulerState  `json:"scheduler"`
	Actors        []*agents.Actor `json:"actors"`
	Encounters    []*Encounter    `json:"encounters"`
	NextEncounter int             `json:"next_encounter"`
	NextLog       int64           `json:"next_log"`
	Events        []LogEntry      `json:"events"`
	Stockpiles    []StockLevel    `json:"stockpiles"`
}

// Snapshot returns a deep copy of the simulation state.
func (s *Simulation) Snapshot() (State, error) {
	st := State{
		Seed:          s.Rolls.Seed(),
		Scheduler:     s.Sched.Export(),
		Actors:        s.Actors(),
		Encounters:    s.Encounters(),
		NextEncounter: s.nextEncounter,
		NextLog:       s.nextLog,
		Events:        append([]LogEntry(nil), s.Events...),
		Stockpiles:    s.Stockpiles(),
	}
	return st.clone()
}

// clone deep-copies a state through its JSON form.
func (st State) clone() (State, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return State{}, oops.Code(CodeInvalidState).Wrapf(err, "encode state")
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		return State{}, oops.Code(CodeInvalidState).Wrapf(err, "decode state")
	}
	return out, nil
}

// Restore rebuilds a simulation from a snapshot. The seed and clock come
// from the snapshot; everything else in opts applies.
func Restore(g *world.Graph, factions *social.Registry, st State, opts Options) (*Simulation, error) {
	st, err := st.clone()
	if err != nil {
		return nil, err
	}
	opts.Seed = st.Seed
	opts.Start = st.Scheduler.Clock
	s, err := New(g, factions, opts)
	if err != nil {
		return nil, err
	}
	s.Sched = RestoreScheduler(st.Scheduler)
	s.nextEncounter = st.NextEncounter
	s.nextLog = st.NextLog
	s.Events = st.Events
	for _, l := range st.Stockpiles {
		if !g.Has(l.Node) {
			return nil, oops.Code(world.CodeUnknownNode).With("node", l.Node).
				Errorf("snapshot holds a stockpile at unknown node %q", l.Node)
		}
		s.stock[l.Node] = l.Food
	}

	for _, a := range st.Actors {
		if a == nil || a.ID == "" {
			return nil, oops.Code(CodeInvalidState).Errorf("snapshot holds an actor without id")
		}
		for _, n := range []world.NodeID{a.Position.Node, a.Position.To} {
			if n != "" && !g.Has(n) {
				return nil, oops.Code(world.CodeUnknownNode).With("actor", a.ID).With("node", n).
					Errorf("snapshot places %s at unknown node %q", a.ID, n)
			}
		}
		if a.Memory == nil {
			a.Memory = agents.NewMemoryStore(s.Tuning.MemoryCapacity)
		}
		if a.Inventory == nil {
			a.Inventory = agents.Inventory{}
		}
		s.actors[a.ID] = a
	}
	for _, e := range st.Encounters {
		s.encounters[e.ID] = e
	}
	s.Metrics.observe(len(s.actors), s.Sched.Len())
	return s, nil
}
