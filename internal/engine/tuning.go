package engine

import (
	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/combat"
)

// MemoryTTL is the per-namespace memory lifetime in sim-minutes. Zero keeps
// entries forever.
type MemoryTTL struct {
	Location float64 `koanf:"location"`
	Threat   float64 `koanf:"threat"`
	Crime    float64 `koanf:"crime"`
	Actor    float64 `koanf:"actor"`
	Combat   float64 `koanf:"combat"`
}

// Map converts to the namespace-keyed form the memory store uses.
func (t MemoryTTL) Map() agents.TTL {
	return agents.TTL{
		agents.NSLocation: t.Location,
		agents.NSThreat:   t.Threat,
		agents.NSCrime:    t.Crime,
		agents.NSActor:    t.Actor,
		agents.NSCombat:   t.Combat,
	}
}

// Tuning holds every simulation constant. All durations are sim-minutes.
type Tuning struct {
	Thresholds agents.Thresholds `koanf:"thresholds"`
	Rates      agents.NeedRates  `koanf:"rates"`
	TTL        MemoryTTL         `koanf:"ttl"`

	MemoryCapacity   int     `koanf:"memory_capacity"`
	ReactionDelay    float64 `koanf:"reaction_delay"` // Gap before a follow-up decision
	IdleMin          float64 `koanf:"idle_min"`
	IdleMax          float64 `koanf:"idle_max"`
	EatDuration      float64 `koanf:"eat_duration"`
	RestScale        float64 `koanf:"rest_scale"`
	RestMin          float64 `koanf:"rest_min"`
	CheckpointRest   float64 `koanf:"checkpoint_rest"` // Health below which a passing shelter interrupts travel
	WorkDuration     float64 `koanf:"work_duration"`
	FarmYield        int     `koanf:"farm_yield"`      // Food a farm shift adds to the nearest stockpile
	StockpileStart   int     `koanf:"stockpile_start"` // Starting store of a stockpile node without a capacity
	FleeInterval     float64 `koanf:"flee_interval"`
	GraceWindow      float64 `koanf:"grace_window"` // Minutes a promoted actor holds still
	DemoteDelayMin   float64 `koanf:"demote_delay_min"`
	DemoteDelayMax   float64 `koanf:"demote_delay_max"`
	EventLogCapacity int     `koanf:"event_log_capacity"`
}

// DefaultTuning returns the stock simulation constants.
func DefaultTuning() Tuning {
	return Tuning{
		Thresholds: agents.DefaultThresholds(),
		Rates:      agents.DefaultNeedRates(),
		TTL: MemoryTTL{
			Location: 10080,
			Threat:   1440,
			Crime:    1200,
			Actor:    720,
			Combat:   4320,
		},
		MemoryCapacity:   agents.DefaultMemoryCapacity,
		ReactionDelay:    0.1,
		IdleMin:          5,
		IdleMax:          20,
		EatDuration:      2,
		RestScale:        60,
		RestMin:          10,
		CheckpointRest:   0.4,
		WorkDuration:     60,
		FarmYield:        3,
		StockpileStart:   20,
		FleeInterval:     combat.FleeCheckInterval,
		GraceWindow:      0.5,
		DemoteDelayMin:   1,
		DemoteDelayMax:   5,
		EventLogCapacity: 1000,
	}
}
