package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/world"
)

// NewGenerateCmd creates the generate subcommand.
func NewGenerateCmd() *cobra.Command {
	var topoOut, popOut string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a generated topology and population to YAML",
		Long: `Generate a world from --seed and --radius and a population of
--actors, and write them as editable topology and population files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			gen := world.DefaultGenConfig()
			gen.Seed = cfg.World.Seed
			gen.Radius = cfg.World.Radius
			g, err := world.Generate(gen)
			if err != nil {
				return err
			}
			topo, err := world.Marshal(g)
			if err != nil {
				return err
			}
			pop := agents.NewSpawner(cfg.World.Seed+1, cfg.Tuning.MemoryCapacity).SpawnPopulation(g, cfg.World.Actors)
			people, err := yaml.Marshal(pop)
			if err != nil {
				return fmt.Errorf("encode population: %w", err)
			}

			for path, data := range map[string][]byte{topoOut: topo, popOut: people} {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
			}
			cmd.Printf("wrote %s (%d nodes) and %s (%d actors)\n", topoOut, g.Len(), popOut, len(pop.Actors))
			return nil
		},
	}
	cmd.Flags().StringVar(&topoOut, "topology-out", "data/topology.yaml", "where to write the topology")
	cmd.Flags().StringVar(&popOut, "population-out", "data/population.yaml", "where to write the population")
	return cmd
}
