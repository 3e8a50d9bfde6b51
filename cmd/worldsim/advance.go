package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/logging"
	"github.com/talgya/offscreen/internal/persistence"
)

// NewAdvanceCmd creates the advance subcommand.
func NewAdvanceCmd() *cobra.Command {
	var (
		minutes float64
		out     string
		fresh   bool
	)
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Fast-forward the simulation headlessly and save",
		Long: `Load the saved simulation (or spawn a new one), advance it by the
given number of sim-minutes as fast as possible, and save the result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if minutes <= 0 {
				return fmt.Errorf("--minutes must be positive")
			}
			logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			if err := os.MkdirAll(filepath.Dir(cfg.Store.DB), 0o755); err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Store.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			var sim *engine.Simulation
			if fresh {
				g, pop, err := loadWorld(cfg)
				if err != nil {
					return err
				}
				sim, err = newSimulation(cfg, g, pop, logger, nil)
				if err != nil {
					return err
				}
				if err := db.ResetEvents(); err != nil {
					return err
				}
			} else {
				sim, err = openSimulation(cfg, db, logger, nil)
				if err != nil {
					return err
				}
			}
			sim.Logger = logging.WithClock(logger, sim.Now)

			from := sim.Now()
			fired, err := sim.AdvanceTo(from + minutes)
			if err != nil {
				return err
			}
			id, err := db.SaveState(sim)
			if err != nil {
				return err
			}

			if out != "" {
				st, err := sim.Snapshot()
				if err != nil {
					return err
				}
				h := persistence.Header{SaveID: id, Clock: sim.Now(), Seed: st.Seed, Actors: len(st.Actors)}
				if err := persistence.WriteFile(out, h, st); err != nil {
					return err
				}
				if info, err := os.Stat(out); err == nil {
					cmd.Printf("snapshot written to %s (%s)\n", out, humanize.Bytes(uint64(info.Size())))
				}
			}

			cmd.Printf("advanced %s → %s: %s events, %d actors, %d encounters (save %s)\n",
				engine.SimTime(from), engine.SimTime(sim.Now()),
				humanize.Comma(int64(len(fired))), len(sim.Actors()), len(sim.Encounters()), id)
			return nil
		},
	}
	cmd.Flags().Float64Var(&minutes, "minutes", engine.MinutesPerDay, "sim-minutes to advance")
	cmd.Flags().StringVar(&out, "out", "", "also write a compressed snapshot file here")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore saved state and spawn a new population")
	return cmd
}
