package world

import (
	"os"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Topology is the on-disk world definition.
type Topology struct {
	Nodes []TopologyNode `yaml:"nodes"`
	Edges []Edge         `yaml:"edges"`
}

// TopologyNode mirrors Node; an omitted visibility means open ground.
type TopologyNode struct {
	ID         NodeID   `yaml:"id"`
	Label      string   `yaml:"label"`
	Zone       string   `yaml:"zone"`
	Tags       []Tag    `yaml:"tags"`
	Capacity   int      `yaml:"capacity"`
	Anchor     HexCoord `yaml:"anchor"`
	Visibility *float64 `yaml:"visibility"`
}

// LoadFile reads, builds and validates a topology file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code(CodeMalformed).With("path", path).Wrapf(err, "read topology")
	}
	g, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return g, nil
}

// Parse builds a graph from YAML and checks that it is connected.
func Parse(data []byte) (*Graph, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, oops.Code(CodeMalformed).Wrapf(err, "decode topology")
	}
	g, err := New(topo.nodes(), topo.Edges)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (t Topology) nodes() []Node {
	out := make([]Node, len(t.Nodes))
	for i, tn := range t.Nodes {
		vis := 1.0
		if tn.Visibility != nil {
			vis = *tn.Visibility
		}
		out[i] = Node{
			ID:         tn.ID,
			Label:      tn.Label,
			Zone:       tn.Zone,
			Tags:       tn.Tags,
			Capacity:   tn.Capacity,
			Anchor:     tn.Anchor,
			Visibility: vis,
		}
	}
	return out
}

// Marshal renders a graph back to the YAML topology format.
func Marshal(g *Graph) ([]byte, error) {
	var topo Topology
	for _, n := range g.Nodes() {
		vis := n.Visibility
		topo.Nodes = append(topo.Nodes, TopologyNode{
			ID:         n.ID,
			Label:      n.Label,
			Zone:       n.Zone,
			Tags:       n.Tags,
			Capacity:   n.Capacity,
			Anchor:     n.Anchor,
			Visibility: &vis,
		})
	}
	topo.Edges = g.Edges()
	data, err := yaml.Marshal(&topo)
	if err != nil {
		return nil, oops.Wrapf(err, "encode topology")
	}
	return data, nil
}
