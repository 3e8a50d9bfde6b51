package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/persistence"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check topology, population and snapshot files",
		Long: `Load the configured topology and population, build every actor
against the graph, and optionally check that a snapshot file restores.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

			g, pop, err := loadWorld(cfg)
			if err != nil {
				return err
			}
			sim, err := newSimulation(cfg, g, pop, quiet, nil)
			if err != nil {
				return err
			}
			cmd.Printf("topology ok: %d nodes, %d edges\n", g.Len(), len(g.Edges()))
			cmd.Printf("population ok: %d actors in %d factions\n", len(sim.Actors()), len(pop.Factions))

			if snapshot == "" {
				return nil
			}
			h, st, err := persistence.ReadFile(snapshot)
			if err != nil {
				return err
			}
			restored, err := engine.Restore(g, sim.Factions, st, options(cfg, quiet, nil))
			if err != nil {
				return err
			}
			cmd.Printf("snapshot ok: save %s at %s, %d actors, %d pending events\n",
				h.SaveID, engine.SimTime(restored.Now()), len(restored.Actors()), restored.Sched.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot file to check against the topology")
	return cmd
}
