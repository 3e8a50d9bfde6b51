package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]*Faction{
		{ID: "village", Kind: FactionSettlers, Relations: map[FactionID]float64{"watch": 80, "raiders": -90}},
		{ID: "watch", Kind: FactionMilitary},
		{ID: "raiders", Kind: FactionCriminal, Relations: map[FactionID]float64{"watch": -60}},
		{ID: "drifters", Kind: FactionNomad},
	})
	require.NoError(t, err)
	return r
}

func TestStance(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		a, b FactionID
		want Stance
	}{
		{"village", "village", StanceFriendly},
		{"village", "watch", StanceFriendly},
		{"watch", "village", StanceFriendly},
		{"village", "raiders", StanceHostile},
		{"raiders", "village", StanceHostile},
		{"raiders", "watch", StanceHostile},
		{"drifters", "village", StanceNeutral},
		{"village", "unknown", StanceNeutral},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+"/"+string(tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, r.Stance(tt.a, tt.b))
		})
	}
}

func TestSetRelation_IsSymmetricAndClamped(t *testing.T) {
	r := testRegistry(t)

	r.SetRelation("drifters", "village", -500)
	assert.Equal(t, -100.0, r.Relation("drifters", "village"))
	assert.Equal(t, -100.0, r.Relation("village", "drifters"))
	assert.True(t, r.Hostile("village", "drifters"))
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry([]*Faction{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	_, err = NewRegistry([]*Faction{{ID: "a", Relations: map[FactionID]float64{"ghost": 10}}})
	assert.Error(t, err)
}

func TestAll_SortedByID(t *testing.T) {
	r := testRegistry(t)
	var ids []FactionID
	for _, f := range r.All() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []FactionID{"drifters", "raiders", "village", "watch"}, ids)
}
