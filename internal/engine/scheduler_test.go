package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func TestScheduler_FiresInTimeOrder(t *testing.T) {
	s := NewScheduler(0)
	s.Schedule(30, EventFinishWork, "a", Payload{})
	s.Schedule(10, EventDecisionCycle, "b", Payload{})
	s.Schedule(20, EventFinishEat, "c", Payload{})

	fired := s.AdvanceTo(25)
	assert.Equal(t, []EventKind{EventDecisionCycle, EventFinishEat}, kinds(fired))
	assert.Equal(t, 25.0, s.Now())
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_TiesFireInInsertionOrder(t *testing.T) {
	s := NewScheduler(0)
	s.Schedule(5, EventFinishEat, "first", Payload{})
	s.Schedule(5, EventRestComplete, "second", Payload{})
	s.Schedule(5, EventDecisionCycle, "third", Payload{})

	fired := s.AdvanceTo(5)
	require.Len(t, fired, 3)
	assert.Equal(t, "first", string(fired[0].Actor))
	assert.Equal(t, "second", string(fired[1].Actor))
	assert.Equal(t, "third", string(fired[2].Actor))
}

func TestScheduler_OneArrivalPerActor(t *testing.T) {
	s := NewScheduler(0)
	s.Schedule(10, EventArriveNode, "a", Payload{Node: "b"})
	s.Schedule(12, EventArriveNode, "a", Payload{Node: "c"})
	s.Schedule(11, EventArriveNode, "other", Payload{Node: "b"})

	pending := s.PendingFor("a")
	require.Len(t, pending, 1)
	assert.Equal(t, 12.0, pending[0].Time)
	assert.Equal(t, 2, s.Len())
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler(0)
	h := s.Schedule(5, EventDecisionCycle, "a", Payload{})
	s.Schedule(6, EventFinishEat, "a", Payload{})
	s.Schedule(7, EventFinishEat, "b", Payload{})

	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h), "already cancelled")
	assert.Equal(t, 1, s.CancelActor("a"))
	assert.Empty(t, s.PendingFor("a"))

	fired := s.AdvanceTo(10)
	require.Len(t, fired, 1)
	assert.Equal(t, "b", string(fired[0].Actor))
}

func TestScheduler_ClockNeverMovesBack(t *testing.T) {
	s := NewScheduler(100)
	assert.Nil(t, s.AdvanceTo(50))
	assert.Equal(t, 100.0, s.Now())

	s.Schedule(20, EventDecisionCycle, "late", Payload{})
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 100.0, pending[0].Time, "past times clamp to the clock")
}

func TestScheduler_ExportRestore(t *testing.T) {
	s := NewScheduler(0)
	s.Schedule(5, EventFinishEat, "a", Payload{Food: 1})
	h := s.Schedule(5, EventRestComplete, "b", Payload{Duration: 12})
	s.Schedule(5, EventDecisionCycle, "c", Payload{})
	s.Cancel(h)
	s.AdvanceTo(1)

	back := RestoreScheduler(s.Export())
	assert.Equal(t, s.Now(), back.Now())
	assert.Equal(t, s.Pending(), back.Pending())

	// New events keep sequencing after the restored ones.
	s.Schedule(5, EventFinishWork, "d", Payload{})
	back.Schedule(5, EventFinishWork, "d", Payload{})
	assert.Equal(t, s.AdvanceTo(10), back.AdvanceTo(10))
}

func TestEventKind_Text(t *testing.T) {
	for k := EventDecisionCycle; k <= EventCombatResolved; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back EventKind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	var k EventKind
	assert.Error(t, k.UnmarshalText([]byte("NAP")))
}
