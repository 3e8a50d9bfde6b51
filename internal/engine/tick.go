package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sim-time units. The clock counts minutes.
const (
	MinutesPerHour = 60
	MinutesPerDay  = 1440
	MinutesPerWeek = 10080
)

// Runner drives a simulation from the wall clock. It owns the lock that
// serializes every access to the simulation.
type Runner struct {
	mu    sync.Mutex
	sim   *Simulation
	speed float64 // Multiplier: 1.0 = real-time, 0 = paused

	Interval         time.Duration // Wall time between frames
	MinutesPerSecond float64       // Sim-minutes per real second at speed 1

	// OnFrame runs under the lock after each frame.
	OnFrame func(sim *Simulation, fired []Event)
}

// NewRunner creates a runner with default pacing.
func NewRunner(sim *Simulation) *Runner {
	return &Runner{
		sim:              sim,
		speed:            1.0,
		Interval:         time.Second,
		MinutesPerSecond: 1,
	}
}

// Speed returns the current multiplier.
func (r *Runner) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// SetSpeed changes the multiplier. Zero pauses; negative values are clamped
// to zero.
func (r *Runner) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	r.mu.Lock()
	r.speed = v
	r.mu.Unlock()
}

// Do runs fn with exclusive access to the simulation.
func (r *Runner) Do(fn func(sim *Simulation) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.sim)
}

// Step advances the simulation by minutes of sim time, regardless of speed.
func (r *Runner) Step(minutes float64) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step(minutes)
}

func (r *Runner) step(minutes float64) ([]Event, error) {
	fired, err := r.sim.AdvanceTo(r.sim.Now() + minutes)
	if err != nil {
		return nil, err
	}
	if r.OnFrame != nil {
		r.OnFrame(r.sim, fired)
	}
	return fired, nil
}

// Run advances the simulation every Interval until ctx is done. Each frame
// moves the clock by Interval × MinutesPerSecond × speed.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("simulation runner started", "time", SimTime(r.now()), "speed", r.Speed())
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation runner stopped", "time", SimTime(r.now()))
			return nil
		case <-ticker.C:
			r.mu.Lock()
			minutes := r.Interval.Seconds() * r.MinutesPerSecond * r.speed
			var err error
			if minutes > 0 {
				_, err = r.step(minutes)
			}
			r.mu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

func (r *Runner) now() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Now()
}

// SimTime renders a clock value as "Day N, HH:MM".
func SimTime(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	total := uint64(minutes)
	mins := total % 60
	hours := (total / MinutesPerHour) % 24
	days := total/MinutesPerDay + 1
	return fmt.Sprintf("Day %d, %02d:%02d", days, hours, mins)
}
