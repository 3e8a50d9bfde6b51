package persistence

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

func hasCode(err error, code string) bool {
	o, ok := oops.AsOops(err)
	return ok && o.Code() == code
}

func testSim(t *testing.T) *engine.Simulation {
	t.Helper()
	g, err := world.New(
		[]world.Node{{ID: "a", Tags: []world.Tag{world.TagShelter}}, {ID: "b"}},
		[]world.Edge{{From: "a", To: "b", Weight: 5}},
	)
	require.NoError(t, err)
	factions, err := social.NewRegistry([]*social.Faction{{ID: "villagers"}})
	require.NoError(t, err)

	s, err := engine.New(g, factions, engine.Options{
		Tuning: engine.DefaultTuning(),
		Seed:   3,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	for _, id := range []agents.ActorID{"ada", "bo"} {
		a := &agents.Actor{
			ID:        id,
			Name:      string(id),
			Role:      agents.RoleWanderer,
			Faction:   "villagers",
			Home:      "a",
			Needs:     agents.Needs{Health: 1},
			Stats:     agents.DefaultStats(agents.RoleWanderer),
			Inventory: agents.Inventory{},
			Position:  agents.At("a"),
			Memory:    agents.NewMemoryStore(16),
			Alive:     true,
		}
		require.NoError(t, s.AddActor(a, 1))
	}
	require.NoError(t, s.Redirect("bo", "b"))
	return s
}

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_SaveAndLoadState(t *testing.T) {
	db := openTemp(t)
	assert.False(t, db.HasState())
	_, _, err := db.LoadState()
	assert.True(t, hasCode(err, CodeNoState))

	s := testSim(t)
	_, err = s.AdvanceTo(2)
	require.NoError(t, err)

	id, err := db.SaveState(s)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, db.HasState())

	gotID, st, err := db.LoadState()
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	want, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, want, st)

	clock, err := db.GetMeta("sim_time")
	require.NoError(t, err)
	assert.Equal(t, "2", clock)

	infos, err := db.Snapshots(10)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Actors)
	assert.Equal(t, 2.0, infos[0].SimTime)
}

func TestDB_LatestSnapshotWins(t *testing.T) {
	db := openTemp(t)
	s := testSim(t)

	first, err := db.SaveState(s)
	require.NoError(t, err)
	_, err = s.AdvanceTo(20)
	require.NoError(t, err)
	second, err := db.SaveState(s)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	id, st, err := db.LoadState()
	require.NoError(t, err)
	assert.Equal(t, second, id)
	assert.Equal(t, 20.0, st.Scheduler.Clock)

	old, err := db.LoadSnapshot(first)
	require.NoError(t, err)
	assert.Zero(t, old.Scheduler.Clock)

	_, err = db.LoadSnapshot("missing")
	assert.True(t, hasCode(err, CodeNoState))
}

func TestDB_EventsAreAppendedOnce(t *testing.T) {
	db := openTemp(t)
	entries := []engine.LogEntry{
		{Seq: 1, Time: 1, Actor: "ada", Description: "ada set out", Category: "travel"},
		{Seq: 2, Time: 2, Actor: "bo", Description: "bo arrived", Category: "travel"},
	}
	require.NoError(t, db.SaveEvents(entries))
	require.NoError(t, db.SaveEvents(append(entries, engine.LogEntry{Seq: 3, Time: 3, Description: "dusk", Category: "world"})))

	got, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "dusk", got[0].Description)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, agents.ActorID("ada"), got[2].Actor)

	got, err = db.RecentEvents(1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDB_EventsAtTheSameTimeAfterASave(t *testing.T) {
	db := openTemp(t)
	first := engine.LogEntry{Seq: 1, Time: 5, Actor: "ada", Description: "ada attacks bo", Category: "combat"}
	require.NoError(t, db.SaveEvents([]engine.LogEntry{first}))

	later := engine.LogEntry{Seq: 2, Time: 5, Actor: "bo", Description: "bo flees from ada", Category: "combat"}
	require.NoError(t, db.SaveEvents([]engine.LogEntry{first, later}))

	got, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bo flees from ada", got[0].Description)
	assert.Equal(t, "ada attacks bo", got[1].Description)
}

func TestDB_NewWorldReplacesEventLog(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveEvents([]engine.LogEntry{
		{Seq: 1, Time: 1, Description: "old one"},
		{Seq: 2, Time: 2, Description: "old two"},
	}))
	require.NoError(t, db.SaveEvents([]engine.LogEntry{{Seq: 1, Time: 0, Description: "new one"}}))

	got, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new one", got[0].Description)

	require.NoError(t, db.ResetEvents())
	got, err = db.RecentEvents(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDB_Meta(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveMeta("seed", "42"))
	require.NoError(t, db.SaveMeta("seed", "43"))
	v, err := db.GetMeta("seed")
	require.NoError(t, err)
	assert.Equal(t, "43", v)

	_, err = db.GetMeta("absent")
	assert.Error(t, err)
}
