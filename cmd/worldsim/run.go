package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/talgya/offscreen/internal/api"
	"github.com/talgya/offscreen/internal/config"
	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/logging"
	"github.com/talgya/offscreen/internal/persistence"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation against the wall clock",
		Long: `Run the simulation in real time (scaled by --speed), serving the
inspection API and saving state periodically until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := logging.SetDefault(cfg.Log.Level, cfg.Log.Format)
	logger.Info("worldsim starting", "seed", cfg.World.Seed, "speed", cfg.Clock.Speed)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Store.DB), 0o755); err != nil {
		return err
	}
	db, err := persistence.Open(cfg.Store.DB)
	if err != nil {
		logging.LogError(logger, "failed to open database", err)
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Store.DB)

	// ── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := engine.NewMetrics(reg)

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := openSimulation(cfg, db, logger, metrics)
	if err != nil {
		logging.LogError(logger, "failed to build simulation", err)
		return err
	}
	sim.Logger = logging.WithClock(logger, sim.Now)

	runner := engine.NewRunner(sim)
	runner.SetSpeed(cfg.Clock.Speed)
	runner.Interval = cfg.Clock.Interval
	runner.MinutesPerSecond = cfg.Clock.MinutesPerSecond

	lastSave := sim.Now()
	runner.OnFrame = func(sim *engine.Simulation, _ []engine.Event) {
		if cfg.Store.SaveEvery <= 0 || sim.Now()-lastSave < cfg.Store.SaveEvery {
			return
		}
		if _, err := db.SaveState(sim); err != nil {
			logging.LogError(logger, "autosave failed", err)
		}
		lastSave = sim.Now()
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	serveErr := make(chan error, 1)
	if cfg.API.Addr != "" {
		srv := &api.Server{
			Runner:   runner,
			Bridge:   engine.NewBridge(sim, nil),
			DB:       db,
			Gatherer: reg,
			AdminKey: cfg.API.AdminKey,
			Limiter:  api.NewRateLimiter(120, time.Minute),
			Logger:   logger,
		}
		go func() { serveErr <- srv.Serve(ctx, cfg.API.Addr) }()
	} else {
		serveErr <- nil
	}

	// ── Run ───────────────────────────────────────────────────────────
	runErr := runner.Run(ctx)
	cancel()
	if err := <-serveErr; err != nil {
		logging.LogError(logger, "HTTP server error", err)
	}

	// ── Final save ────────────────────────────────────────────────────
	err = runner.Do(func(sim *engine.Simulation) error {
		id, err := db.SaveState(sim)
		if err != nil {
			return err
		}
		return writeSnapshotFile(cfg, sim, id)
	})
	if err != nil {
		logging.LogError(logger, "final save failed", err)
		if runErr == nil {
			runErr = err
		}
	}
	logger.Info("worldsim stopped")
	return runErr
}

// writeSnapshotFile mirrors a save into the snapshot directory.
func writeSnapshotFile(cfg config.Config, sim *engine.Simulation, saveID string) error {
	if cfg.Store.SnapshotDir == "" {
		return nil
	}
	st, err := sim.Snapshot()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Store.SnapshotDir, "latest.snap.zst")
	return persistence.WriteFile(path, persistence.Header{
		SaveID: saveID,
		Clock:  sim.Now(),
		Seed:   st.Seed,
		Actors: len(st.Actors),
	}, st)
}
