// Package config layers simulation settings: built-in defaults, then an
// optional YAML file, then command-line flags.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/talgya/offscreen/internal/engine"
)

// CodeInvalid marks a configuration that cannot be used.
const CodeInvalid = "CONFIG_INVALID"

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "text" or "json"
}

// WorldConfig says where the topology and population come from. Empty
// paths mean a generated world.
type WorldConfig struct {
	Topology   string `koanf:"topology"`
	Population string `koanf:"population"`
	Seed       int64  `koanf:"seed"`
	Radius     int    `koanf:"radius"`
	Actors     int    `koanf:"actors"` // Generated population size
}

// StoreConfig controls persistence.
type StoreConfig struct {
	DB          string  `koanf:"db"`
	SnapshotDir string  `koanf:"snapshot_dir"`
	SaveEvery   float64 `koanf:"save_every"` // Sim-minutes between autosaves; 0 disables
}

// APIConfig controls the HTTP inspection server.
type APIConfig struct {
	Addr     string `koanf:"addr"`
	AdminKey string `koanf:"admin_key"`
}

// ClockConfig controls the real-time driver.
type ClockConfig struct {
	Speed            float64       `koanf:"speed"`
	MinutesPerSecond float64       `koanf:"minutes_per_second"`
	Interval         time.Duration `koanf:"interval"`
}

// Config is the full process configuration.
type Config struct {
	Log    LogConfig     `koanf:"log"`
	World  WorldConfig   `koanf:"world"`
	Store  StoreConfig   `koanf:"store"`
	API    APIConfig     `koanf:"api"`
	Clock  ClockConfig   `koanf:"clock"`
	Tuning engine.Tuning `koanf:"tuning"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		World: WorldConfig{
			Seed:   42,
			Radius: 2,
			Actors: 24,
		},
		Store: StoreConfig{
			DB:          "data/offscreen.db",
			SnapshotDir: "data/snapshots",
			SaveEvery:   engine.MinutesPerHour,
		},
		API: APIConfig{Addr: ":8080"},
		Clock: ClockConfig{
			Speed:            1,
			MinutesPerSecond: 1,
			Interval:         time.Second,
		},
		Tuning: engine.DefaultTuning(),
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":          "log.level",
	"log-format":         "log.format",
	"topology":           "world.topology",
	"population":         "world.population",
	"seed":               "world.seed",
	"radius":             "world.radius",
	"actors":             "world.actors",
	"db":                 "store.db",
	"snapshot-dir":       "store.snapshot_dir",
	"save-every":         "store.save_every",
	"listen":             "api.addr",
	"admin-key":          "api.admin_key",
	"speed":              "clock.speed",
	"minutes-per-second": "clock.minutes_per_second",
	"interval":           "clock.interval",
}

// BindFlags registers the overridable settings on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (text or json)")
	fs.String("topology", d.World.Topology, "topology YAML file (empty = generate)")
	fs.String("population", d.World.Population, "population YAML file (empty = generate)")
	fs.Int64("seed", d.World.Seed, "world seed")
	fs.Int("radius", d.World.Radius, "generated world radius in nodes")
	fs.Int("actors", d.World.Actors, "generated population size")
	fs.String("db", d.Store.DB, "SQLite database path")
	fs.String("snapshot-dir", d.Store.SnapshotDir, "directory for compressed snapshot files")
	fs.Float64("save-every", d.Store.SaveEvery, "sim-minutes between autosaves (0 = never)")
	fs.String("listen", d.API.Addr, "HTTP listen address (empty = disabled)")
	fs.String("admin-key", d.API.AdminKey, "bearer token for admin endpoints")
	fs.Float64("speed", d.Clock.Speed, "simulation speed multiplier")
	fs.Float64("minutes-per-second", d.Clock.MinutesPerSecond, "sim-minutes per real second at speed 1")
	fs.Duration("interval", d.Clock.Interval, "real time between frames")
}

// Load builds the configuration. path may be empty; flags may be nil. Only
// flags the user actually set override the file.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "load config file")
		}
	}
	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, oops.Code(CodeInvalid).Wrapf(err, "load flags")
		}
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	fail := func(key string, value any, format string, args ...any) error {
		return oops.Code(CodeInvalid).With("key", key).With("value", value).Errorf(format, args...)
	}
	t := c.Tuning

	switch {
	case c.Log.Format != "text" && c.Log.Format != "json":
		return fail("log.format", c.Log.Format, "log format must be 'json' or 'text', got %q", c.Log.Format)
	case c.World.Radius < 1:
		return fail("world.radius", c.World.Radius, "radius must be at least 1")
	case c.World.Actors < 0:
		return fail("world.actors", c.World.Actors, "actor count cannot be negative")
	case c.Store.SaveEvery < 0:
		return fail("store.save_every", c.Store.SaveEvery, "autosave interval cannot be negative")
	case c.Clock.Speed < 0:
		return fail("clock.speed", c.Clock.Speed, "speed cannot be negative")
	case c.Clock.MinutesPerSecond <= 0:
		return fail("clock.minutes_per_second", c.Clock.MinutesPerSecond, "minutes per second must be positive")
	case c.Clock.Interval <= 0:
		return fail("clock.interval", c.Clock.Interval, "frame interval must be positive")
	case t.MemoryCapacity < 1:
		return fail("tuning.memory_capacity", t.MemoryCapacity, "memory capacity must be at least 1")
	case t.IdleMin < 0 || t.IdleMin > t.IdleMax:
		return fail("tuning.idle_min", t.IdleMin, "idle range [%g, %g] is invalid", t.IdleMin, t.IdleMax)
	case t.DemoteDelayMin < 0 || t.DemoteDelayMin > t.DemoteDelayMax:
		return fail("tuning.demote_delay_min", t.DemoteDelayMin, "demote delay range [%g, %g] is invalid", t.DemoteDelayMin, t.DemoteDelayMax)
	case t.ReactionDelay <= 0:
		return fail("tuning.reaction_delay", t.ReactionDelay, "reaction delay must be positive")
	case t.FleeInterval <= 0:
		return fail("tuning.flee_interval", t.FleeInterval, "flee interval must be positive")
	case t.GraceWindow < 0:
		return fail("tuning.grace_window", t.GraceWindow, "grace window cannot be negative")
	case t.EventLogCapacity < 0:
		return fail("tuning.event_log_capacity", t.EventLogCapacity, "event log capacity cannot be negative")
	case t.FarmYield < 0:
		return fail("tuning.farm_yield", t.FarmYield, "farm yield cannot be negative")
	case t.StockpileStart < 0:
		return fail("tuning.stockpile_start", t.StockpileStart, "stockpile start cannot be negative")
	}
	for key, v := range map[string]float64{
		"tuning.thresholds.low_health":       t.Thresholds.LowHealth,
		"tuning.thresholds.critical_hunger":  t.Thresholds.CriticalHunger,
		"tuning.thresholds.critical_fatigue": t.Thresholds.CriticalFatigue,
		"tuning.thresholds.explore_chance":   t.Thresholds.ExploreChance,
		"tuning.checkpoint_rest":             t.CheckpointRest,
	} {
		if v < 0 || v > 1 {
			return fail(key, v, "%s must be within [0, 1]", key)
		}
	}
	return nil
}
