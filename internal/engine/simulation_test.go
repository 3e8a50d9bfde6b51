package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFactions(t *testing.T) *social.Registry {
	t.Helper()
	r, err := social.NewRegistry([]*social.Faction{
		{ID: "villagers", Relations: map[social.FactionID]float64{"watch": 80, "raiders": -80}},
		{ID: "watch", Relations: map[social.FactionID]float64{"raiders": -90}},
		{ID: "raiders"},
	})
	require.NoError(t, err)
	return r
}

func newSim(t *testing.T, nodes []world.Node, edges []world.Edge) *Simulation {
	t.Helper()
	g, err := world.New(nodes, edges)
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	s, err := New(g, testFactions(t), Options{Tuning: DefaultTuning(), Seed: 7, Logger: quietLogger()})
	require.NoError(t, err)
	return s
}

// newActor builds an actor at node that already knows every location, so
// it never wanders off to explore.
func newActor(s *Simulation, id agents.ActorID, role agents.Role, faction social.FactionID, at world.NodeID) *agents.Actor {
	a := &agents.Actor{
		ID:        id,
		Name:      string(id),
		Role:      role,
		Faction:   faction,
		Home:      at,
		Needs:     agents.Needs{Health: 1},
		Stats:     agents.DefaultStats(role),
		Inventory: agents.Inventory{},
		Position:  agents.At(at),
		Memory:    agents.NewMemoryStore(32),
		Alive:     true,
	}
	for _, n := range s.Graph.Nodes() {
		a.Memory.Observe(agents.LocationKey(n.ID), agents.MemoryValue{Node: n.ID, Tags: n.Tags}, 0)
	}
	return a
}

func line(t *testing.T) *Simulation {
	return newSim(t,
		[]world.Node{{ID: "a"}, {ID: "b", Tags: []world.Tag{world.TagStockpile}}, {ID: "c"}},
		[]world.Edge{{From: "a", To: "b", Weight: 1}, {From: "b", To: "c", Weight: 1}},
	)
}

func hasCode(err error, code string) bool {
	o, ok := oops.AsOops(err)
	return ok && o.Code() == code
}

func TestAddActor_Errors(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(a, 1))

	err := s.AddActor(newActor(s, "x", agents.RoleWanderer, "", "a"), 1)
	assert.True(t, hasCode(err, CodeActorExists))

	err = s.AddActor(newActor(s, "y", agents.RoleWanderer, "", "nowhere"), 1)
	assert.True(t, hasCode(err, world.CodeUnknownNode))

	_, err = s.Actor("ghost")
	assert.True(t, hasCode(err, CodeUnknownActor))
}

func TestAdvanceTo_RejectsGoingBack(t *testing.T) {
	s := line(t)
	_, err := s.AdvanceTo(10)
	require.NoError(t, err)
	_, err = s.AdvanceTo(5)
	assert.True(t, hasCode(err, CodeInvalidState))
	assert.Equal(t, 10.0, s.Now())
}

func TestTravel_OneArrivalPerEdge(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	a.Home = "c"
	require.NoError(t, s.AddActor(a, 50))

	route, err := s.PlanRoute("x", "c")
	require.NoError(t, err)
	assert.Equal(t, []world.NodeID{"a", "b", "c"}, route.Path.Nodes)
	assert.Equal(t, []float64{0, 1, 2}, route.Arrivals)

	require.NoError(t, s.Redirect("x", "c"))
	pending := s.Sched.PendingFor("x")
	require.Len(t, pending, 1)
	assert.Equal(t, EventArriveNode, pending[0].Kind)
	assert.Equal(t, 1.0, pending[0].Time)

	_, err = s.AdvanceTo(1)
	require.NoError(t, err)
	assert.Equal(t, world.NodeID("b"), a.Node())
	pending = s.Sched.PendingFor("x")
	require.Len(t, pending, 1)
	assert.Equal(t, world.NodeID("c"), pending[0].Payload.Node)
	assert.Equal(t, 2.0, pending[0].Time)

	_, err = s.AdvanceTo(2)
	require.NoError(t, err)
	assert.Equal(t, world.NodeID("c"), a.Node())
	assert.False(t, a.Position.InTransit())
	assert.Nil(t, a.Plan)
	pending = s.Sched.PendingFor("x")
	require.Len(t, pending, 1)
	assert.Equal(t, EventDecisionCycle, pending[0].Kind)
}

func TestRedirect_SnapsToNearerEnd(t *testing.T) {
	s := newSim(t, []world.Node{{ID: "a"}, {ID: "b"}}, []world.Edge{{From: "a", To: "b", Weight: 10}})
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(a, 100))
	require.NoError(t, s.Redirect("x", "b"))

	_, err := s.AdvanceTo(7)
	require.NoError(t, err)
	require.NoError(t, s.Redirect("x", "a"))

	assert.Equal(t, agents.Position{Node: "b", To: "a", Depart: 7, Arrive: 17}, a.Position)

	err = s.Redirect("x", "nowhere")
	assert.True(t, hasCode(err, world.CodeUnknownNode))
}

func TestCheckpoint_HungerInterruptsAtStockpile(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(a, 50))
	a.Needs.Hunger = 0.9
	require.NoError(t, s.Redirect("x", "c"))

	_, err := s.AdvanceTo(1)
	require.NoError(t, err)
	assert.Equal(t, world.NodeID("b"), a.Node())
	assert.Nil(t, a.Plan, "route abandoned")
	assert.Equal(t, agents.IntentSeekFood, a.Intent.Kind)

	pending := s.Sched.PendingFor("x")
	require.Len(t, pending, 1)
	assert.Equal(t, EventFinishEat, pending[0].Kind)

	_, err = s.AdvanceTo(3)
	require.NoError(t, err)
	assert.Zero(t, a.Needs.Hunger)
}

func TestCheckpoint_LearnsLocations(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	a.Memory = agents.NewMemoryStore(8)
	require.NoError(t, s.AddActor(a, 50))
	require.NoError(t, s.Redirect("x", "c"))

	_, err := s.AdvanceTo(2)
	require.NoError(t, err)
	e, ok := a.Memory.Recall(agents.LocationKey("b"))
	require.True(t, ok)
	assert.Equal(t, 1.0, e.Timestamp)
	assert.True(t, e.Value.HasTag(world.TagStockpile))
}

func TestCrime_ReachesGuardWhenWitnessArrives(t *testing.T) {
	s := newSim(t,
		[]world.Node{{ID: "square"}, {ID: "gate"}},
		[]world.Edge{{From: "square", To: "gate", Weight: 5}},
	)
	witness := newActor(s, "x", agents.RoleFarmer, "villagers", "square")
	guard := newActor(s, "g", agents.RoleGuard, "watch", "gate")
	require.NoError(t, s.AddActor(witness, 1))
	require.NoError(t, s.AddActor(guard, 2))

	_, err := s.AdvanceTo(100)
	require.NoError(t, err)
	require.NoError(t, s.RecordCrime("x", "player", "square", 100, "theft"))
	assert.True(t, witness.Memory.Knows(agents.CrimeKey("player")))
	assert.False(t, s.HostileToward("g", "player"))

	require.NoError(t, s.Redirect("x", "gate"))
	_, err = s.AdvanceTo(104.9)
	require.NoError(t, err)
	assert.False(t, s.HostileToward("g", "player"), "guard has not heard yet")

	_, err = s.AdvanceTo(105)
	require.NoError(t, err)
	e, ok := guard.Memory.Recall(agents.CrimeKey("player"))
	require.True(t, ok)
	assert.Equal(t, 105.0, e.Timestamp)
	assert.Equal(t, 100.0, e.Origin)
	assert.Equal(t, "theft", e.Value.Note)
	assert.True(t, s.HostileToward("g", "player"))
	assert.False(t, s.HostileToward("x", "player"), "only guards act on crimes")
}

func TestCrime_ReportMakesWitnesses(t *testing.T) {
	s := newSim(t,
		[]world.Node{{ID: "farm", Visibility: 1}, {ID: "road", Visibility: 1}, {ID: "cave", Visibility: 0}},
		[]world.Edge{{From: "farm", To: "road", Weight: 5}, {From: "road", To: "cave", Weight: 5}},
	)
	for _, a := range []*agents.Actor{
		newActor(s, "raider", agents.RoleRaider, "raiders", "farm"),
		newActor(s, "farmer", agents.RoleFarmer, "villagers", "farm"),
		newActor(s, "passer", agents.RoleWanderer, "villagers", "road"),
		newActor(s, "hermit", agents.RoleWanderer, "villagers", "cave"),
	} {
		require.NoError(t, s.AddActor(a, 100))
	}

	seen := s.ReportCrime("raider", "farm", 10, "raid")
	assert.Equal(t, []agents.ActorID{"farmer", "passer"}, seen, "full visibility on both nodes always spots it")
}

func TestCombat_ResolvesAtTimeToKill(t *testing.T) {
	s := newSim(t, []world.Node{{ID: "arena"}}, nil)
	raider := newActor(s, "r", agents.RoleRaider, "raiders", "arena")
	raider.Stats = agents.Stats{MaxHP: 100, BaseDamage: 10, AttackSpeed: 1, MoveSpeed: 1}
	farmer := newActor(s, "f", agents.RoleFarmer, "villagers", "arena")
	farmer.Stats = agents.Stats{MaxHP: 50, BaseDamage: 5, AttackSpeed: 1, MoveSpeed: 1}
	farmer.Inventory["bread"] = 2
	require.NoError(t, s.AddActor(raider, 10))
	require.NoError(t, s.AddActor(farmer, 20))

	_, err := s.AdvanceTo(10)
	require.NoError(t, err)
	require.Len(t, s.Encounters(), 1)
	st, err := s.StateOf("f")
	require.NoError(t, err)
	assert.Equal(t, DispositionInCombat, st.Disposition)

	fired, err := s.AdvanceTo(30)
	require.NoError(t, err)
	var resolved *Event
	for i := range fired {
		if fired[i].Kind == EventCombatResolved {
			resolved = &fired[i]
		}
	}
	require.NotNil(t, resolved)
	assert.Equal(t, 15.0, resolved.Time, "50 HP against 10 DPS lasts 5 minutes")

	_, err = s.Actor("f")
	assert.True(t, hasCode(err, CodeUnknownActor), "loser leaves the simulation")
	assert.InDelta(t, 0.75, raider.Needs.Health, 1e-9)
	assert.Equal(t, 2, raider.Inventory["bread"])
	assert.Empty(t, s.Encounters())

	e, ok := raider.Memory.Recall(agents.CombatKey("enc-1"))
	require.True(t, ok)
	assert.Equal(t, "won", e.Value.Note)
}

func TestCombat_PlayerOwnedLoserIsTombstoned(t *testing.T) {
	s := newSim(t, []world.Node{{ID: "arena"}}, nil)
	raider := newActor(s, "r", agents.RoleRaider, "raiders", "arena")
	pet := newActor(s, "pet", agents.RoleFarmer, "villagers", "arena")
	pet.Needs.Health = 0.1
	pet.PlayerOwned = true
	require.NoError(t, s.AddActor(raider, 1))
	require.NoError(t, s.AddActor(pet, 50))

	_, err := s.AdvanceTo(60)
	require.NoError(t, err)
	st, err := s.StateOf("pet")
	require.NoError(t, err)
	assert.Equal(t, DispositionDead, st.Disposition)
	assert.True(t, pet.Tombstoned)
	assert.Empty(t, st.Pending)
	assert.Empty(t, s.ActorsAt("arena")[0].Encounter)
}

func TestForceResolve(t *testing.T) {
	s := newSim(t, []world.Node{{ID: "arena"}}, nil)
	raider := newActor(s, "r", agents.RoleRaider, "raiders", "arena")
	farmer := newActor(s, "f", agents.RoleFarmer, "villagers", "arena")
	require.NoError(t, s.AddActor(raider, 1))
	require.NoError(t, s.AddActor(farmer, 50))
	_, err := s.AdvanceTo(1)
	require.NoError(t, err)
	require.Len(t, s.Encounters(), 1)

	require.NoError(t, s.ForceResolve("enc-1"))
	assert.Empty(t, s.Encounters())
	assert.Empty(t, raider.Encounter)
	for _, ev := range s.Sched.Pending() {
		assert.NotEqual(t, EventCombatResolved, ev.Kind)
		assert.NotEqual(t, EventCombatFleeCheck, ev.Kind)
	}
	assert.True(t, hasCode(s.ForceResolve("enc-1"), CodeInvalidState))
}

func TestStaleEventsAreDropped(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(a, 5))

	// An event left behind for an actor that has gone.
	s.Sched.Schedule(6, EventFinishEat, "gone", Payload{})
	fired, err := s.AdvanceTo(6)
	require.NoError(t, err)
	assert.Len(t, fired, 2)
	assert.Equal(t, world.NodeID("a"), a.Node())
}

func TestStarvationKills(t *testing.T) {
	s := line(t)
	a := newActor(s, "x", agents.RoleWanderer, "", "c")
	a.Needs.Hunger = 1
	a.Needs.Health = 0.01
	require.NoError(t, s.AddActor(a, 10))

	_, err := s.AdvanceTo(100)
	require.NoError(t, err)
	_, err = s.Actor("x")
	assert.True(t, hasCode(err, CodeUnknownActor))
	require.NotEmpty(t, s.Events)
	assert.Equal(t, "death", s.Events[len(s.Events)-1].Category)
}

func TestStockpile_RunsDry(t *testing.T) {
	s := newSim(t,
		[]world.Node{{ID: "a"}, {ID: "b", Capacity: 1, Tags: []world.Tag{world.TagStockpile}}, {ID: "c"}},
		[]world.Edge{{From: "a", To: "b", Weight: 1}, {From: "b", To: "c", Weight: 1}},
	)
	assert.Equal(t, 1, s.Stock("b"))
	assert.Zero(t, s.Stock("a"))

	x := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(x, 50))
	x.Needs.Hunger = 0.9
	require.NoError(t, s.Redirect("x", "c"))

	_, err := s.AdvanceTo(3)
	require.NoError(t, err)
	assert.Zero(t, x.Needs.Hunger)
	assert.Zero(t, s.Stock("b"), "the only ration is gone")

	y := newActor(s, "y", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(y, 50))
	y.Needs.Hunger = 0.9
	require.NoError(t, s.Redirect("y", "c"))

	_, err = s.AdvanceTo(4)
	require.NoError(t, err)
	assert.Equal(t, agents.Position{Node: "b", To: "c", Depart: 4, Arrive: 5}, y.Position, "an empty stockpile does not stop travel")
	assert.NotEqual(t, agents.IntentSeekFood, y.Intent.Kind)

	st, err := s.Snapshot()
	require.NoError(t, err)
	restored, err := Restore(s.Graph, s.Factions, st, Options{Tuning: s.Tuning, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Zero(t, restored.Stock("b"))
	assert.Equal(t, s.Stockpiles(), restored.Stockpiles())
}

func TestStockpile_EmptyStockpileYieldsNoMeal(t *testing.T) {
	s := newSim(t,
		[]world.Node{{ID: "a", Capacity: 1, Tags: []world.Tag{world.TagStockpile}}},
		nil,
	)
	x := newActor(s, "x", agents.RoleWanderer, "", "a")
	require.NoError(t, s.AddActor(x, 50))
	x.Needs.Hunger = 0.9

	s.onFinishEat(x, Event{Time: 0, Payload: Payload{Food: agents.FoodStockpile}})
	assert.Zero(t, x.Needs.Hunger)

	x.Needs.Hunger = 0.9
	s.onFinishEat(x, Event{Time: 0, Payload: Payload{Food: agents.FoodStockpile}})
	assert.Equal(t, 0.9, x.Needs.Hunger)
}

func TestStockpile_FarmYieldRefills(t *testing.T) {
	s := line(t)
	start := s.Stock("b")
	farmer := newActor(s, "f", agents.RoleFarmer, "villagers", "c")
	farmer.Work = "c"
	require.NoError(t, s.AddActor(farmer, 1))

	_, err := s.AdvanceTo(1 + s.Tuning.WorkDuration)
	require.NoError(t, err)
	assert.Equal(t, start+s.Tuning.FarmYield, s.Stock("b"), "harvest goes to the nearest stockpile")
	assert.Zero(t, farmer.Inventory.Food())
}

// ridge: a - b - c, all open ground so neighbors are always spotted.
func ridge(t *testing.T) *Simulation {
	return newSim(t,
		[]world.Node{{ID: "a", Visibility: 1}, {ID: "b", Visibility: 1}, {ID: "c", Visibility: 1}},
		[]world.Edge{{From: "a", To: "b", Weight: 1}, {From: "b", To: "c", Weight: 1}},
	)
}

func TestCheckpoint_EngagesHostileNextDoor(t *testing.T) {
	s := ridge(t)
	guard := newActor(s, "g", agents.RoleGuard, "watch", "a")
	raider := newActor(s, "r", agents.RoleRaider, "raiders", "c")
	require.NoError(t, s.AddActor(guard, 500))
	require.NoError(t, s.AddActor(raider, 500))
	require.NoError(t, s.Redirect("g", "b"))

	_, err := s.AdvanceTo(1)
	require.NoError(t, err)
	assert.Equal(t, agents.IntentEngage, guard.Intent.Kind)
	assert.Equal(t, agents.Position{Node: "b", To: "c", Depart: 1, Arrive: 2}, guard.Position)
	assert.True(t, guard.Memory.Knows(agents.ThreatKey("r")))

	_, err = s.AdvanceTo(2)
	require.NoError(t, err)
	encs := s.Encounters()
	require.Len(t, encs, 1)
	assert.Equal(t, world.NodeID("c"), encs[0].Node)
	assert.Equal(t, agents.ActorID("g"), encs[0].Attacker)
}

func TestCheckpoint_HurtActorTurnsAwayFromHostile(t *testing.T) {
	s := ridge(t)
	guard := newActor(s, "g", agents.RoleGuard, "watch", "a")
	raider := newActor(s, "r", agents.RoleRaider, "raiders", "c")
	require.NoError(t, s.AddActor(guard, 500))
	require.NoError(t, s.AddActor(raider, 500))
	guard.Needs.Health = 0.2
	require.NoError(t, s.Redirect("g", "c"))

	_, err := s.AdvanceTo(1)
	require.NoError(t, err)
	assert.Equal(t, agents.IntentSeekShelter, guard.Intent.Kind)
	assert.Equal(t, agents.Position{Node: "b", To: "a", Depart: 1, Arrive: 2}, guard.Position, "back home, away from c")

	_, err = s.AdvanceTo(2)
	require.NoError(t, err)
	assert.Empty(t, s.Encounters())
	assert.Equal(t, world.NodeID("a"), guard.Node())
}
