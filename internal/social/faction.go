// Factions and the standing between them.
// Relations run from -100 (blood feud) to +100 (sworn allies).
package social

import (
	"sort"

	"github.com/samber/oops"
)

// FactionID is a unique identifier for a faction.
type FactionID string

// Relation thresholds.
const (
	HostileBelow  = -50.0 // Relation at or below this: attack on sight
	FriendlyAbove = 50.0  // Relation at or above this: share news
)

// Faction is a group whose members act together.
type Faction struct {
	ID   FactionID   `json:"id" yaml:"id"`
	Name string      `json:"name" yaml:"name"`
	Kind FactionKind `json:"kind" yaml:"kind"`

	// Relations with other factions (faction ID → -100 to +100).
	Relations map[FactionID]float64 `json:"relations" yaml:"relations"`
}

// FactionKind categorizes the nature of a faction.
type FactionKind string

const (
	FactionSettlers FactionKind = "settlers" // Farmers, traders, townsfolk
	FactionMilitary FactionKind = "military" // Guards and militia
	FactionCriminal FactionKind = "criminal" // Raiders and bandits
	FactionNomad    FactionKind = "nomad"    // Unaffiliated wanderers
)

// Stance is how members of one faction treat another.
type Stance uint8

const (
	StanceNeutral Stance = iota
	StanceFriendly
	StanceHostile
)

func (s Stance) String() string {
	switch s {
	case StanceFriendly:
		return "friendly"
	case StanceHostile:
		return "hostile"
	default:
		return "neutral"
	}
}

// Registry holds every faction in the world.
type Registry struct {
	factions map[FactionID]*Faction
}

// NewRegistry indexes the given factions. Relations are made symmetric,
// taking the lower of the two sides when they disagree.
func NewRegistry(list []*Faction) (*Registry, error) {
	r := &Registry{factions: make(map[FactionID]*Faction, len(list))}
	for _, f := range list {
		if f.ID == "" {
			return nil, oops.Code("MALFORMED_FACTION").Errorf("faction has empty id")
		}
		if _, dup := r.factions[f.ID]; dup {
			return nil, oops.Code("MALFORMED_FACTION").With("faction", f.ID).Errorf("duplicate faction %q", f.ID)
		}
		if f.Relations == nil {
			f.Relations = make(map[FactionID]float64)
		}
		r.factions[f.ID] = f
	}
	for _, f := range list {
		for other, v := range f.Relations {
			o, ok := r.factions[other]
			if !ok {
				return nil, oops.Code("MALFORMED_FACTION").With("faction", f.ID).With("other", other).
					Errorf("relation with unknown faction %q", other)
			}
			if back, ok := o.Relations[f.ID]; ok && back < v {
				v = back
			}
			f.Relations[other] = clampRelation(v)
			o.Relations[f.ID] = clampRelation(v)
		}
	}
	return r, nil
}

// Get returns a faction by id, or nil.
func (r *Registry) Get(id FactionID) *Faction {
	if r == nil {
		return nil
	}
	return r.factions[id]
}

// All returns factions ordered by id.
func (r *Registry) All() []*Faction {
	if r == nil {
		return nil
	}
	out := make([]*Faction, 0, len(r.factions))
	for _, f := range r.factions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relation returns the standing between two factions. Unknown pairs are 0.
func (r *Registry) Relation(a, b FactionID) float64 {
	if a == b && a != "" {
		return 100
	}
	if r == nil {
		return 0
	}
	if f := r.factions[a]; f != nil {
		return f.Relations[b]
	}
	return 0
}

// SetRelation updates the standing between two factions on both sides.
func (r *Registry) SetRelation(a, b FactionID, v float64) {
	if a == b {
		return
	}
	v = clampRelation(v)
	if f := r.factions[a]; f != nil {
		f.Relations[b] = v
	}
	if f := r.factions[b]; f != nil {
		f.Relations[a] = v
	}
}

// Stance classifies the relation between two factions. Members of the same
// faction are always friendly.
func (r *Registry) Stance(a, b FactionID) Stance {
	if a == b && a != "" {
		return StanceFriendly
	}
	v := r.Relation(a, b)
	switch {
	case v <= HostileBelow:
		return StanceHostile
	case v >= FriendlyAbove:
		return StanceFriendly
	default:
		return StanceNeutral
	}
}

// Hostile reports whether members of a attack members of b on sight.
func (r *Registry) Hostile(a, b FactionID) bool {
	return r.Stance(a, b) == StanceHostile
}

// Friendly reports whether members of a and b trade news.
func (r *Registry) Friendly(a, b FactionID) bool {
	return r.Stance(a, b) == StanceFriendly
}

func clampRelation(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}
