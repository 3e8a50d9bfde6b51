package main

import (
	"log/slog"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/config"
	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/persistence"
	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// loadWorld reads the topology and population files, generating whichever
// is not configured.
func loadWorld(cfg config.Config) (*world.Graph, *agents.Population, error) {
	var (
		g   *world.Graph
		err error
	)
	if cfg.World.Topology != "" {
		g, err = world.LoadFile(cfg.World.Topology)
	} else {
		gen := world.DefaultGenConfig()
		gen.Seed = cfg.World.Seed
		gen.Radius = cfg.World.Radius
		g, err = world.Generate(gen)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.World.Population != "" {
		pop, err := agents.LoadPopulation(cfg.World.Population)
		if err != nil {
			return nil, nil, err
		}
		return g, pop, nil
	}
	pop := agents.NewSpawner(cfg.World.Seed+1, cfg.Tuning.MemoryCapacity).SpawnPopulation(g, cfg.World.Actors)
	return g, &pop, nil
}

func options(cfg config.Config, logger *slog.Logger, metrics *engine.Metrics) engine.Options {
	return engine.Options{
		Tuning:  cfg.Tuning,
		Seed:    cfg.World.Seed,
		Logger:  logger,
		Metrics: metrics,
	}
}

// newSimulation builds a fresh simulation and spawns the population with
// staggered first decisions.
func newSimulation(cfg config.Config, g *world.Graph, pop *agents.Population, logger *slog.Logger, metrics *engine.Metrics) (*engine.Simulation, error) {
	factions, err := social.NewRegistry(pop.Factions)
	if err != nil {
		return nil, err
	}
	sim, err := engine.New(g, factions, options(cfg, logger, metrics))
	if err != nil {
		return nil, err
	}

	sp := agents.NewSpawner(cfg.World.Seed, cfg.Tuning.MemoryCapacity)
	for _, spec := range pop.Actors {
		a, err := sp.Build(spec, g, 0)
		if err != nil {
			return nil, err
		}
		first := sim.Rolls.Between(cfg.Tuning.IdleMin, cfg.Tuning.IdleMax, 0, "spawn", string(a.ID))
		if err := sim.AddActor(a, first); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// openSimulation restores the latest saved state when db has one, and
// builds a fresh simulation otherwise.
func openSimulation(cfg config.Config, db *persistence.DB, logger *slog.Logger, metrics *engine.Metrics) (*engine.Simulation, error) {
	g, pop, err := loadWorld(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil || !db.HasState() {
		logger.Info("no saved state found, spawning population", "actors", len(pop.Actors), "nodes", g.Len())
		return newSimulation(cfg, g, pop, logger, metrics)
	}

	id, st, err := db.LoadState()
	if err != nil {
		return nil, err
	}
	factions, err := social.NewRegistry(pop.Factions)
	if err != nil {
		return nil, err
	}
	sim, err := engine.Restore(g, factions, st, options(cfg, logger, metrics))
	if err != nil {
		return nil, err
	}
	logger.Info("simulation state restored",
		"save_id", id,
		"actors", len(st.Actors),
		"pending", len(st.Scheduler.Events),
		"sim_time", engine.SimTime(sim.Now()),
	)
	return sim, nil
}
