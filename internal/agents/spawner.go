// Actor spawning: builds simulated actors from authored population files
// or generates a population for a topology.
package agents

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// ActorSpec is the authored definition of an actor. Zero stats and needs
// take role defaults.
type ActorSpec struct {
	ID          ActorID          `yaml:"id"`
	Name        string           `yaml:"name"`
	Role        Role             `yaml:"role"`
	Faction     social.FactionID `yaml:"faction"`
	Home        world.NodeID     `yaml:"home"`
	Work        world.NodeID     `yaml:"work,omitempty"`
	Patrol      []world.NodeID   `yaml:"patrol,omitempty"`
	Start       world.NodeID     `yaml:"start,omitempty"` // Defaults to home
	Needs       *Needs           `yaml:"needs,omitempty"`
	Stats       *Stats           `yaml:"stats,omitempty"`
	Inventory   Inventory        `yaml:"inventory,omitempty"`
	PlayerOwned bool             `yaml:"player_owned,omitempty"`
}

// Population is the on-disk set of factions and actors.
type Population struct {
	Factions []*social.Faction `yaml:"factions"`
	Actors   []ActorSpec       `yaml:"actors"`
}

// LoadPopulation reads a population file.
func LoadPopulation(path string) (*Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("MALFORMED_POPULATION").With("path", path).Wrapf(err, "read population")
	}
	var pop Population
	if err := yaml.Unmarshal(data, &pop); err != nil {
		return nil, oops.Code("MALFORMED_POPULATION").With("path", path).Wrapf(err, "decode population")
	}
	return &pop, nil
}

// DefaultStats returns role-typical combat figures.
func DefaultStats(role Role) Stats {
	switch role {
	case RoleGuard:
		return Stats{MaxHP: 120, BaseDamage: 8, WeaponBonus: 6, AttackSpeed: 1.0, MoveSpeed: 1.0, FleeThreshold: 0.15}
	case RoleRaider:
		return Stats{MaxHP: 90, BaseDamage: 7, WeaponBonus: 4, AttackSpeed: 1.2, MoveSpeed: 1.2, FleeThreshold: 0.3}
	case RoleTrader:
		return Stats{MaxHP: 70, BaseDamage: 3, WeaponBonus: 1, AttackSpeed: 0.8, MoveSpeed: 1.1, FleeThreshold: 0.5}
	case RoleFarmer:
		return Stats{MaxHP: 80, BaseDamage: 4, WeaponBonus: 1, AttackSpeed: 0.8, MoveSpeed: 0.9, FleeThreshold: 0.5}
	case RoleWanderer:
		return Stats{MaxHP: 75, BaseDamage: 5, WeaponBonus: 2, AttackSpeed: 1.0, MoveSpeed: 1.0, FleeThreshold: 0.4}
	default:
		panic("agents: unhandled role " + role.String())
	}
}

// Spawner creates actors for the simulation.
type Spawner struct {
	rng         *rand.Rand
	nextID      int
	memCapacity int
}

// NewSpawner creates an actor spawner with the given seed.
func NewSpawner(seed int64, memCapacity int) *Spawner {
	return &Spawner{
		rng:         rand.New(rand.NewSource(seed + 300)),
		nextID:      1,
		memCapacity: memCapacity,
	}
}

// Build turns a spec into a live actor located at its start node.
func (s *Spawner) Build(spec ActorSpec, g *world.Graph, now float64) (*Actor, error) {
	if spec.ID == "" {
		spec.ID = ActorID(fmt.Sprintf("npc-%04d", s.nextID))
		s.nextID++
	}
	if spec.Name == "" {
		spec.Name = s.generateName()
	}
	start := spec.Start
	if start == "" {
		start = spec.Home
	}
	for _, n := range append([]world.NodeID{start, spec.Home, spec.Work}, spec.Patrol...) {
		if n != "" && !g.Has(n) {
			return nil, oops.Code(world.CodeUnknownNode).With("actor", spec.ID).With("node", n).
				Errorf("actor %s references unknown node %q", spec.ID, n)
		}
	}
	if start == "" {
		return nil, oops.Code("MALFORMED_POPULATION").With("actor", spec.ID).Errorf("actor %s has no home or start node", spec.ID)
	}

	a := &Actor{
		ID:          spec.ID,
		Name:        spec.Name,
		Role:        spec.Role,
		Faction:     spec.Faction,
		Home:        spec.Home,
		Work:        spec.Work,
		Patrol:      append([]world.NodeID(nil), spec.Patrol...),
		Needs:       Needs{Health: 1},
		Stats:       DefaultStats(spec.Role),
		Inventory:   Inventory{},
		Position:    At(start),
		Memory:      NewMemoryStore(s.memCapacity),
		LastUpdate:  now,
		Alive:       true,
		PlayerOwned: spec.PlayerOwned,
	}
	if spec.Needs != nil {
		a.Needs = *spec.Needs
		clampNeeds(&a.Needs)
	}
	if spec.Stats != nil {
		a.Stats = *spec.Stats
	}
	for item, n := range spec.Inventory {
		a.Inventory[item] = n
	}

	// Everyone knows their own places.
	for _, n := range []world.NodeID{start, spec.Home, spec.Work} {
		if node := g.Node(n); node != nil {
			a.Memory.Observe(LocationKey(n), MemoryValue{Node: n, Tags: node.Tags}, now)
		}
	}
	return a, nil
}

// SpawnPopulation generates count actor specs spread over a topology. Roles
// and workplaces are drawn to fit the amenities the topology offers.
func (s *Spawner) SpawnPopulation(g *world.Graph, count int) Population {
	var shelters, farms, markets, dangers []world.NodeID
	for _, n := range g.Nodes() {
		switch {
		case n.Has(world.TagShelter):
			shelters = append(shelters, n.ID)
		case n.Has(world.TagDanger):
			dangers = append(dangers, n.ID)
		}
		if n.Has(world.TagFarm) {
			farms = append(farms, n.ID)
		}
		if n.Has(world.TagMarket) {
			markets = append(markets, n.ID)
		}
	}
	if len(shelters) == 0 {
		shelters = []world.NodeID{g.Nodes()[0].ID}
	}

	pop := Population{Factions: []*social.Faction{
		{ID: "villagers", Name: "Villagers", Kind: social.FactionSettlers,
			Relations: map[social.FactionID]float64{"watch": 80, "raiders": -80}},
		{ID: "watch", Name: "Town Watch", Kind: social.FactionMilitary,
			Relations: map[social.FactionID]float64{"raiders": -90}},
		{ID: "raiders", Name: "Raiders", Kind: social.FactionCriminal},
		{ID: "drifters", Name: "Drifters", Kind: social.FactionNomad},
	}}

	for i := 0; i < count; i++ {
		home := shelters[s.rng.Intn(len(shelters))]
		spec := ActorSpec{
			ID:   ActorID(fmt.Sprintf("npc-%04d", s.nextID)),
			Name: s.generateName(),
			Home: home,
		}
		s.nextID++

		roll := s.rng.Float64()
		switch {
		case roll < 0.35 && len(farms) > 0:
			spec.Role, spec.Faction = RoleFarmer, "villagers"
			spec.Work = farms[s.rng.Intn(len(farms))]
		case roll < 0.55:
			spec.Role, spec.Faction = RoleGuard, "watch"
			spec.Patrol = s.patrolRoute(g, home)
		case roll < 0.7 && len(dangers) > 0:
			spec.Role, spec.Faction = RoleRaider, "raiders"
			spec.Home = dangers[s.rng.Intn(len(dangers))]
			if len(farms) > 0 {
				spec.Work = farms[s.rng.Intn(len(farms))]
			} else {
				spec.Work = home
			}
		case roll < 0.85 && len(markets) > 0:
			spec.Role, spec.Faction = RoleTrader, "villagers"
			spec.Work = markets[s.rng.Intn(len(markets))]
		default:
			spec.Role, spec.Faction = RoleWanderer, "drifters"
		}
		spec.Inventory = Inventory{"food": s.rng.Intn(3)}
		pop.Actors = append(pop.Actors, spec)
	}
	return pop
}

// patrolRoute picks a loop of up to three posts starting at home.
func (s *Spawner) patrolRoute(g *world.Graph, home world.NodeID) []world.NodeID {
	route := []world.NodeID{home}
	cur := home
	for len(route) < 3 {
		nbs := g.Neighbors(cur)
		if len(nbs) == 0 {
			break
		}
		cur = nbs[s.rng.Intn(len(nbs))].Node
		if cur == home {
			break
		}
		route = append(route, cur)
	}
	return route
}

func (s *Spawner) generateName() string {
	var firsts []string
	if s.rng.Float32() < 0.5 {
		firsts = maleNames
	} else {
		firsts = femaleNames
	}
	first := firsts[s.rng.Intn(len(firsts))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Wolfsbane", "Stoneheart",
}
