// Procedural topology using layered simplex noise.
// Nodes sit on a hex lattice; noise layers decide cover, fertility and danger,
// which become visibility, amenity tags and edge weights.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds topology generation parameters.
type GenConfig struct {
	Radius   int     // Lattice radius in nodes (2 → 19 nodes, 3 → 37)
	Spacing  int     // Hex distance between neighboring node anchors
	Seed     int64   // Random seed (0 = random)
	Zone     string  // Zone assigned to every generated node
	BaseCost float64 // Travel minutes for a flat, open edge
}

// DefaultGenConfig returns a small region suitable for a single zone.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:   2,
		Spacing:  8,
		Seed:     0,
		Zone:     "wilds",
		BaseCost: 10,
	}
}

// Generate creates a connected topology. The center node is always a
// settlement with shelter, stockpile and market.
func Generate(cfg GenConfig) (*Graph, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Radius < 1 {
		cfg.Radius = 1
	}
	if cfg.Spacing < 1 {
		cfg.Spacing = 1
	}
	if cfg.BaseCost <= 0 {
		cfg.BaseCost = 10
	}

	// Independent layers.
	coverNoise := opensimplex.NewNormalized(seed)
	fertNoise := opensimplex.NewNormalized(seed + 1)
	dangerNoise := opensimplex.NewNormalized(seed + 2)

	var nodes []Node
	var coords []HexCoord
	ids := make(map[HexCoord]NodeID)

	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if Distance(coord, HexCoord{}) > cfg.Radius {
				continue
			}

			x := float64(q) + float64(r)*0.5
			y := float64(r) * math.Sqrt(3.0) / 2.0

			cover := octaveNoise(coverNoise, x, y, 3, 0.35, 0.5)
			fert := octaveNoise(fertNoise, x, y, 3, 0.3, 0.5)
			danger := octaveNoise(dangerNoise, x, y, 2, 0.4, 0.5)

			id := NodeID(fmt.Sprintf("n%+d%+d", q, r))
			ids[coord] = id
			coords = append(coords, coord)
			n := Node{
				ID:         id,
				Zone:       cfg.Zone,
				Anchor:     HexCoord{Q: q * cfg.Spacing, R: r * cfg.Spacing},
				Visibility: clamp01(1.0 - cover*0.8),
			}
			n.Tags, n.Label = deriveSite(coord, fert, danger, cover)
			n.Capacity = int(fert*4 + cover*2)
			nodes = append(nodes, n)
		}
	}

	var edges []Edge
	for _, coord := range coords {
		id := ids[coord]
		for i, nb := range coord.Neighbors() {
			// Each undirected pair once: only the first three directions.
			if i >= 3 {
				break
			}
			other, ok := ids[nb]
			if !ok {
				continue
			}
			x := float64(coord.Q+nb.Q) * 0.5
			y := float64(coord.R+nb.R) * 0.5
			rough := octaveNoise(coverNoise, x, y, 2, 0.5, 0.5)
			edges = append(edges, Edge{
				From:   id,
				To:     other,
				Weight: math.Round(cfg.BaseCost * (1 + rough)),
			})
		}
	}

	g, err := New(nodes, edges)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// deriveSite picks amenities and a label from the noise sample at a lattice point.
func deriveSite(coord HexCoord, fert, danger, cover float64) ([]Tag, string) {
	if coord == (HexCoord{}) {
		return []Tag{TagShelter, TagStockpile, TagMarket}, "Village"
	}
	switch {
	case danger > 0.68:
		return []Tag{TagDanger}, fmt.Sprintf("Badlands %d,%d", coord.Q, coord.R)
	case fert > 0.6:
		return []Tag{TagFarm, TagFoodSource}, fmt.Sprintf("Fields %d,%d", coord.Q, coord.R)
	case cover > 0.6:
		return []Tag{TagFoodSource, TagShelter}, fmt.Sprintf("Woods %d,%d", coord.Q, coord.R)
	case fert > 0.45:
		return []Tag{TagFoodSource}, fmt.Sprintf("Meadow %d,%d", coord.Q, coord.R)
	default:
		return nil, fmt.Sprintf("Crossing %d,%d", coord.Q, coord.R)
	}
}

// octaveNoise samples multi-octave simplex noise, returning [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
