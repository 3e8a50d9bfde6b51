package agents

// Needs tracks an actor's physical state. Hunger and fatigue run from 0.0
// (sated, rested) to 1.0 (starving, exhausted). Health is the HP fraction.
type Needs struct {
	Hunger  float64 `json:"hunger" yaml:"hunger"`
	Fatigue float64 `json:"fatigue" yaml:"fatigue"`
	Health  float64 `json:"health" yaml:"health"`
}

// NeedRates are per-minute drift rates applied lazily between events.
type NeedRates struct {
	Hunger     float64 `koanf:"hunger"`     // Hunger gained per minute
	Fatigue    float64 `koanf:"fatigue"`    // Fatigue gained per minute while awake
	Starvation float64 `koanf:"starvation"` // Health lost per minute at full hunger
	Heal       float64 `koanf:"heal"`       // Health regained per minute of rest
	Recover    float64 `koanf:"recover"`    // Fatigue shed per minute of rest
}

// DefaultNeedRates returns rates tuned so that a fed actor grows hungry over
// roughly half a day and exhausted over a full day.
func DefaultNeedRates() NeedRates {
	return NeedRates{
		Hunger:     1.0 / 720,
		Fatigue:    1.0 / 1440,
		Starvation: 1.0 / 480,
		Heal:       0.02,
		Recover:    0.01,
	}
}

// Advance integrates needs from the actor's last update up to now. Needs are
// never ticked; they catch up whenever the actor's next event fires.
// Returns true if the actor starved to death in the interval.
func (a *Actor) Advance(now float64, r NeedRates) bool {
	dt := now - a.LastUpdate
	if dt <= 0 {
		return false
	}
	a.LastUpdate = now

	before := a.Needs.Hunger
	a.Needs.Hunger += r.Hunger * dt
	a.Needs.Fatigue += r.Fatigue * dt

	// Starvation only for the portion of the interval spent at full hunger.
	if a.Needs.Hunger >= 1 && r.Hunger > 0 {
		starving := dt
		if before < 1 {
			starving = dt - (1-before)/r.Hunger
		}
		a.Needs.Health -= r.Starvation * starving
	}

	clampNeeds(&a.Needs)
	if a.Needs.Health <= 0 && a.Alive {
		a.Alive = false
		return true
	}
	return false
}

// Eat resets hunger after a meal.
func (a *Actor) Eat() {
	a.Needs.Hunger = 0
}

// Rest applies healing and recovery for a rest of the given duration.
func (a *Actor) Rest(duration float64, r NeedRates) {
	if duration <= 0 {
		return
	}
	a.Needs.Health += r.Heal * duration
	a.Needs.Fatigue -= r.Recover * duration
	clampNeeds(&a.Needs)
}

// RestDuration returns how long an actor rests to recover from its current
// health: longer when more hurt, never shorter than min.
func RestDuration(n Needs, scale, min float64) float64 {
	d := (1 - n.Health) * scale
	if n.Fatigue*scale > d {
		d = n.Fatigue * scale
	}
	if d < min {
		d = min
	}
	return d
}

func clampNeeds(n *Needs) {
	n.Hunger = clamp01(n.Hunger)
	n.Fatigue = clamp01(n.Fatigue)
	n.Health = clamp01(n.Health)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
