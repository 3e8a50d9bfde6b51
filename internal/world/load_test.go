package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valleyYAML = `
nodes:
  - id: village
    label: Village
    zone: valley
    tags: [shelter, stockpile]
    anchor: {q: 0, r: 0}
  - id: farm
    label: North Farm
    zone: valley
    tags: [farm, food-source]
    anchor: {q: 0, r: -6}
    visibility: 0.4
  - id: camp
    label: Raider Camp
    zone: hills
    tags: [danger]
    anchor: {q: 12, r: 0}
edges:
  - {from: village, to: farm, weight: 10}
  - {from: village, to: camp, weight: 25}
`

func TestParse(t *testing.T) {
	g, err := Parse([]byte(valleyYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	farm := g.Node("farm")
	require.NotNil(t, farm)
	assert.Equal(t, "North Farm", farm.Label)
	assert.True(t, farm.Has(TagFarm))
	assert.Equal(t, 0.4, farm.Visibility)
	assert.Equal(t, 1.0, g.Node("village").Visibility, "omitted visibility defaults to open ground")

	path, err := g.ShortestPath("farm", "camp")
	require.NoError(t, err)
	assert.Equal(t, 35.0, path.Cost)
}

func TestParse_Rejects(t *testing.T) {
	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := Parse([]byte("nodes: [{id: a}]\nedges: [{from: a, to: b, weight: 1}]\n"))
		require.Error(t, err)
		assert.True(t, IsMalformed(err))
	})
	t.Run("disconnected", func(t *testing.T) {
		_, err := Parse([]byte("nodes: [{id: a}, {id: b}]\n"))
		require.Error(t, err)
		assert.True(t, IsUnreachable(err))
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Parse([]byte("nodes: [\n"))
		require.Error(t, err)
		assert.True(t, IsMalformed(err))
	})
}

func TestLoadFile_RoundTripsThroughMarshal(t *testing.T) {
	g, err := Parse([]byte(valleyYAML))
	require.NoError(t, err)

	data, err := Marshal(g)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestGenerate(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Seed = 7

	g, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, 19, g.Len())
	require.NoError(t, g.Validate())

	village := g.Node("n+0+0")
	require.NotNil(t, village)
	assert.True(t, village.Has(TagShelter))
	for _, n := range g.Nodes() {
		assert.GreaterOrEqual(t, n.Visibility, 0.0)
		assert.LessOrEqual(t, n.Visibility, 1.0)
	}

	again, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), again.Nodes(), "same seed yields the same topology")
	assert.Equal(t, g.Edges(), again.Edges())
}
