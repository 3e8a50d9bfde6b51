// Package combat resolves fights between off-screen actors from their stats
// alone, without simulating individual blows.
package combat

import "math"

// Tuning defaults.
const (
	MinDPS            = 0.1 // Floor so a harmless fighter still ends a fight
	FleeCheckInterval = 2.0 // Minutes between flee checks
	MaxFleeChance     = 0.9
)

// Fighter is one side of an encounter as the resolver sees it.
type Fighter struct {
	HP            float64 `json:"hp"`
	MaxHP         float64 `json:"max_hp"`
	DPS           float64 `json:"dps"`
	MoveSpeed     float64 `json:"move_speed"`
	FleeThreshold float64 `json:"flee_threshold"` // HP ratio at or below which the fighter may flee
}

// EffectiveDPS is (base + weapon) × attack speed, floored at MinDPS.
func EffectiveDPS(base, weapon, attackSpeed float64) float64 {
	return math.Max(MinDPS, (base+weapon)*attackSpeed)
}

// TimeToKill returns how long dps takes to bring hp to zero.
func TimeToKill(hp, dps float64) float64 {
	if hp <= 0 {
		return 0
	}
	return hp / math.Max(MinDPS, dps)
}

// ProjectedHP returns the fighter's HP after taking incoming DPS for elapsed
// minutes, never below zero.
func (f Fighter) ProjectedHP(incoming, elapsed float64) float64 {
	return math.Max(0, f.HP-incoming*elapsed)
}

// Ratio returns the projected HP as a fraction of max HP.
func (f Fighter) Ratio(incoming, elapsed float64) float64 {
	if f.MaxHP <= 0 {
		return 0
	}
	return f.ProjectedHP(incoming, elapsed) / f.MaxHP
}

// WantsToFlee reports whether the projected ratio has fallen to the
// fighter's flee threshold.
func (f Fighter) WantsToFlee(incoming, elapsed float64) bool {
	return f.FleeThreshold > 0 && f.Ratio(incoming, elapsed) <= f.FleeThreshold
}

// FleeChance is half the speed ratio against the opponent, capped at
// MaxFleeChance.
func FleeChance(speed, opponentSpeed float64) float64 {
	return math.Min(MaxFleeChance, speed/math.Max(opponentSpeed, 0.1)*0.5)
}

// Side identifies a participant.
type Side uint8

const (
	Attacker Side = iota
	Defender
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == Attacker {
		return Defender
	}
	return Attacker
}

func (s Side) String() string {
	if s == Attacker {
		return "attacker"
	}
	return "defender"
}

// Projection is the fight as it would run to the end with nobody fleeing.
type Projection struct {
	Duration    float64 `json:"duration"`
	Winner      Side    `json:"winner"`
	AttackerTTK float64 `json:"attacker_ttk"` // Time for the defender to kill the attacker
	DefenderTTK float64 `json:"defender_ttk"` // Time for the attacker to kill the defender
}

// Loser returns the losing side.
func (p Projection) Loser() Side {
	return p.Winner.Other()
}

// Project computes duration and winner. The attacker wins only by killing
// strictly first; a simultaneous kill goes to the defender.
func Project(attacker, defender Fighter) Projection {
	p := Projection{
		DefenderTTK: TimeToKill(defender.HP, attacker.DPS),
		AttackerTTK: TimeToKill(attacker.HP, defender.DPS),
	}
	p.Duration = math.Min(p.DefenderTTK, p.AttackerTTK)
	if p.DefenderTTK < p.AttackerTTK {
		p.Winner = Attacker
	} else {
		p.Winner = Defender
	}
	return p
}

// WinnerHP returns the winner's HP after the full fight.
func WinnerHP(p Projection, attacker, defender Fighter) float64 {
	if p.Winner == Attacker {
		return math.Max(1, attacker.ProjectedHP(defender.DPS, p.Duration))
	}
	return math.Max(1, defender.ProjectedHP(attacker.DPS, p.Duration))
}
