// Event scheduler: a min-heap of future simulation events ordered by time,
// with insertion order breaking ties.
package engine

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// EventKind identifies what a scheduled event does when it fires.
type EventKind uint8

const (
	EventDecisionCycle EventKind = iota
	EventArriveNode
	EventFinishEat
	EventRestComplete
	EventFinishWork
	EventCombatFleeCheck
	EventCombatResolved
)

var eventKindNames = [...]string{
	"DECISION_CYCLE", "ARRIVE_NODE", "FINISH_EAT", "REST_COMPLETE",
	"FINISH_WORK", "COMBAT_FLEE_CHECK", "COMBAT_RESOLVED",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(b []byte) error {
	for i, name := range eventKindNames {
		if name == string(b) {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Payload carries the kind-specific arguments of an event.
type Payload struct {
	Node      world.NodeID      `json:"node,omitempty"`      // ARRIVE_NODE destination
	Encounter string            `json:"encounter,omitempty"` // Combat events
	Duration  float64           `json:"duration,omitempty"`  // Rest and work length
	Food      agents.FoodSource `json:"food,omitempty"`
}

// Event is a scheduled occurrence for one actor.
type Event struct {
	Time    float64        `json:"time"`
	Seq     uint64         `json:"seq"`
	Kind    EventKind      `json:"kind"`
	Actor   agents.ActorID `json:"actor"`
	Payload Payload        `json:"payload"`
}

// Handle identifies a scheduled event for cancellation.
type Handle uint64

type queued struct {
	ev        Event
	cancelled bool
}

type eventHeap []*queued

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Time != h[j].ev.Time {
		return h[i].ev.Time < h[j].ev.Time
	}
	return h[i].ev.Seq < h[j].ev.Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*queued)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler owns the simulation clock and the pending event queue.
// Cancellation is lazy: cancelled items stay in the heap and are skipped.
type Scheduler struct {
	clock   float64
	nextSeq uint64
	queue   eventHeap
	live    map[Handle]*queued
	byActor map[agents.ActorID]map[Handle]*queued
}

// NewScheduler creates an empty scheduler with its clock at start.
func NewScheduler(start float64) *Scheduler {
	return &Scheduler{
		clock:   start,
		nextSeq: 1,
		live:    make(map[Handle]*queued),
		byActor: make(map[agents.ActorID]map[Handle]*queued),
	}
}

// Now returns the simulation clock.
func (s *Scheduler) Now() float64 {
	return s.clock
}

// Len returns the number of live pending events.
func (s *Scheduler) Len() int {
	return len(s.live)
}

// Schedule queues an event at time t. Times in the past are clamped to the
// clock. An actor has at most one pending ARRIVE_NODE: scheduling another
// replaces it.
func (s *Scheduler) Schedule(t float64, kind EventKind, actor agents.ActorID, p Payload) Handle {
	if t < s.clock {
		t = s.clock
	}
	if kind == EventArriveNode {
		s.CancelKind(actor, EventArriveNode)
	}
	ev := Event{Time: t, Seq: s.nextSeq, Kind: kind, Actor: actor, Payload: p}
	s.nextSeq++
	s.push(ev)
	return Handle(ev.Seq)
}

func (s *Scheduler) push(ev Event) {
	q := &queued{ev: ev}
	heap.Push(&s.queue, q)
	h := Handle(ev.Seq)
	s.live[h] = q
	set := s.byActor[ev.Actor]
	if set == nil {
		set = make(map[Handle]*queued)
		s.byActor[ev.Actor] = set
	}
	set[h] = q
}

// Cancel removes a pending event. Returns false if it already fired or was
// cancelled.
func (s *Scheduler) Cancel(h Handle) bool {
	q, ok := s.live[h]
	if !ok {
		return false
	}
	s.drop(h, q)
	return true
}

func (s *Scheduler) drop(h Handle, q *queued) {
	q.cancelled = true
	delete(s.live, h)
	if set := s.byActor[q.ev.Actor]; set != nil {
		delete(set, h)
		if len(set) == 0 {
			delete(s.byActor, q.ev.Actor)
		}
	}
}

// CancelActor removes every pending event for an actor and returns how many
// were dropped.
func (s *Scheduler) CancelActor(actor agents.ActorID) int {
	set := s.byActor[actor]
	n := 0
	for h, q := range set {
		s.drop(h, q)
		n++
	}
	return n
}

// CancelKind removes an actor's pending events of one kind.
func (s *Scheduler) CancelKind(actor agents.ActorID, kind EventKind) int {
	n := 0
	for h, q := range s.byActor[actor] {
		if q.ev.Kind == kind {
			s.drop(h, q)
			n++
		}
	}
	return n
}

// PendingFor returns an actor's live events in firing order.
func (s *Scheduler) PendingFor(actor agents.ActorID) []Event {
	out := make([]Event, 0, len(s.byActor[actor]))
	for _, q := range s.byActor[actor] {
		out = append(out, q.ev)
	}
	sortEvents(out)
	return out
}

// PopDue removes and returns the next live event with time <= t, moving the
// clock to the event's time.
func (s *Scheduler) PopDue(t float64) (Event, bool) {
	for s.queue.Len() > 0 {
		top := s.queue[0]
		if top.cancelled {
			heap.Pop(&s.queue)
			continue
		}
		if top.ev.Time > t {
			return Event{}, false
		}
		heap.Pop(&s.queue)
		s.drop(Handle(top.ev.Seq), top)
		if top.ev.Time > s.clock {
			s.clock = top.ev.Time
		}
		return top.ev, true
	}
	return Event{}, false
}

// AdvanceTo pops every event due by t in order and leaves the clock at t.
// The clock never moves backwards; an earlier t returns nothing.
func (s *Scheduler) AdvanceTo(t float64) []Event {
	if t < s.clock {
		return nil
	}
	var out []Event
	for {
		ev, ok := s.PopDue(t)
		if !ok {
			break
		}
		out = append(out, ev)
	}
	s.clock = t
	return out
}

// Pending returns every live event in firing order.
func (s *Scheduler) Pending() []Event {
	out := make([]Event, 0, len(s.live))
	for _, q := range s.live {
		out = append(out, q.ev)
	}
	sortEvents(out)
	return out
}

// SchedulerState is the serializable form of a scheduler.
type SchedulerState struct {
	Clock   float64 `json:"clock"`
	NextSeq uint64  `json:"next_seq"`
	Events  []Event `json:"events"`
}

// Export captures the clock, sequence counter and live events.
func (s *Scheduler) Export() SchedulerState {
	return SchedulerState{Clock: s.clock, NextSeq: s.nextSeq, Events: s.Pending()}
}

// RestoreScheduler rebuilds a scheduler from an export. Events keep their
// sequence numbers so ties resolve as they would have.
func RestoreScheduler(st SchedulerState) *Scheduler {
	s := NewScheduler(st.Clock)
	s.nextSeq = st.NextSeq
	for _, ev := range st.Events {
		s.push(ev)
		if ev.Seq >= s.nextSeq {
			s.nextSeq = ev.Seq + 1
		}
	}
	return s
}

func sortEvents(evs []Event) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].Time != evs[j].Time {
			return evs[i].Time < evs[j].Time
		}
		return evs[i].Seq < evs[j].Seq
	})
}
