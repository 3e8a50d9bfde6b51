// Package agents provides the off-screen actor model, its needs, its memory
// and the priority stack that picks what it does next.
package agents

import (
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// ActorID links a simulated actor back to its persistent entity.
type ActorID string

// Role is an actor's duty type.
type Role uint8

const (
	RoleFarmer   Role = iota // Works the fields at its work node
	RoleGuard                // Walks a fixed patrol cycle
	RoleRaider               // Runs supply raids from camp
	RoleTrader               // Shuttles between home and market
	RoleWanderer             // No duty
)

var roleNames = [...]string{"farmer", "guard", "raider", "trader", "wanderer"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), nil
		}
	}
	return 0, oops.Code("INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Stats are the combat and movement figures used by the stat resolver.
type Stats struct {
	MaxHP         float64 `json:"max_hp" yaml:"max_hp"`
	BaseDamage    float64 `json:"base_damage" yaml:"base_damage"`
	WeaponBonus   float64 `json:"weapon_bonus" yaml:"weapon_bonus"`
	AttackSpeed   float64 `json:"attack_speed" yaml:"attack_speed"`     // Attacks per minute
	MoveSpeed     float64 `json:"move_speed" yaml:"move_speed"`         // Relative; 1.0 is average
	FleeThreshold float64 `json:"flee_threshold" yaml:"flee_threshold"` // HP fraction that triggers flee rolls
}

// Inventory counts items by name.
type Inventory map[string]int

// FoodItems are the inventory entries an actor can eat.
var FoodItems = []string{"food", "grain", "fish", "meat", "bread"}

// Food returns the number of edible items carried.
func (inv Inventory) Food() int {
	n := 0
	for _, item := range FoodItems {
		n += inv[item]
	}
	return n
}

// TakeFood removes one edible item, returning false when none is carried.
func (inv Inventory) TakeFood() bool {
	for _, item := range FoodItems {
		if inv[item] > 0 {
			inv[item]--
			if inv[item] == 0 {
				delete(inv, item)
			}
			return true
		}
	}
	return false
}

// MergeInto moves every item into dst and empties inv.
func (inv Inventory) MergeInto(dst Inventory) {
	for item, n := range inv {
		if n > 0 {
			dst[item] += n
		}
		delete(inv, item)
	}
}

// Total returns the number of items carried.
func (inv Inventory) Total() int {
	n := 0
	for _, c := range inv {
		n += c
	}
	return n
}

// Items returns item names in sorted order.
func (inv Inventory) Items() []string {
	out := make([]string, 0, len(inv))
	for item := range inv {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// Position is an actor's single disposition: located at Node, or in transit
// from Node to To between Depart and Arrive.
type Position struct {
	Node   world.NodeID `json:"node"`
	To     world.NodeID `json:"to,omitempty"`
	Depart float64      `json:"depart,omitempty"`
	Arrive float64      `json:"arrive,omitempty"`
}

// At returns a located position.
func At(node world.NodeID) Position {
	return Position{Node: node}
}

// InTransit reports whether the actor is between two nodes.
func (p Position) InTransit() bool {
	return p.To != ""
}

// Progress returns how far along the edge the actor is at time now, in [0,1].
func (p Position) Progress(now float64) float64 {
	if !p.InTransit() {
		return 0
	}
	span := p.Arrive - p.Depart
	if span <= 0 {
		return 1
	}
	f := (now - p.Depart) / span
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Nearest returns the node the actor is closer to in elapsed time.
// Exactly halfway rounds back to the departure node.
func (p Position) Nearest(now float64) world.NodeID {
	if p.InTransit() && p.Progress(now) > 0.5 {
		return p.To
	}
	return p.Node
}

// TravelPlan is a route being followed. Route[Index] is the last node
// reached; the next hop is Route[Index+1].
type TravelPlan struct {
	Route   []world.NodeID `json:"route"`
	Index   int            `json:"index"`
	Purpose Intent         `json:"purpose"`
}

// Next returns the next node on the route.
func (p *TravelPlan) Next() (world.NodeID, bool) {
	if p == nil || p.Index+1 >= len(p.Route) {
		return "", false
	}
	return p.Route[p.Index+1], true
}

// Destination returns the final node of the route.
func (p *TravelPlan) Destination() world.NodeID {
	if p == nil || len(p.Route) == 0 {
		return ""
	}
	return p.Route[len(p.Route)-1]
}

// Remaining returns the nodes not yet reached.
func (p *TravelPlan) Remaining() []world.NodeID {
	if p == nil || p.Index+1 >= len(p.Route) {
		return nil
	}
	return append([]world.NodeID(nil), p.Route[p.Index+1:]...)
}

// Actor is the off-screen representation of an NPC.
type Actor struct {
	ID      ActorID          `json:"id"`
	Name    string           `json:"name"`
	Role    Role             `json:"role"`
	Faction social.FactionID `json:"faction"`

	// Places
	Home        world.NodeID   `json:"home"`
	Work        world.NodeID   `json:"work,omitempty"`   // Farm, market, or raid target
	Patrol      []world.NodeID `json:"patrol,omitempty"` // Guards only
	PatrolIndex int            `json:"patrol_index,omitempty"`

	Needs     Needs     `json:"needs"`
	Stats     Stats     `json:"stats"`
	Inventory Inventory `json:"inventory"`

	// Disposition
	Position  Position    `json:"position"`
	Plan      *TravelPlan `json:"plan,omitempty"`
	Intent    Intent      `json:"intent"`
	Encounter string      `json:"encounter,omitempty"` // Active stat-combat encounter

	Memory *MemoryStore `json:"memory"`

	// Bookkeeping
	LastUpdate  float64 `json:"last_update"` // Needs integrated up to this time
	LastWorked  float64 `json:"last_worked"`
	Alive       bool    `json:"alive"`
	PlayerOwned bool    `json:"player_owned,omitempty"`
	Tombstoned  bool    `json:"tombstoned,omitempty"`
}

// Node returns the node the actor is at, or departed from when in transit.
func (a *Actor) Node() world.NodeID {
	return a.Position.Node
}

// Active reports whether the actor still takes part in the simulation.
func (a *Actor) Active() bool {
	return a.Alive && !a.Tombstoned
}

// HPEquivalent is current hit points: health fraction × max HP.
func (a *Actor) HPEquivalent() float64 {
	return a.Needs.Health * a.Stats.MaxHP
}
