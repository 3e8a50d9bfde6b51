package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes simulation counters. A nil *Metrics records nothing.
type Metrics struct {
	events  *prometheus.CounterVec
	stale   prometheus.Counter
	combats *prometheus.CounterVec
	shares  prometheus.Counter
	actors  prometheus.Gauge
	pending prometheus.Gauge
}

// NewMetrics registers the simulation collectors with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offscreen",
			Name:      "events_fired_total",
			Help:      "Scheduled events dispatched, by kind.",
		}, []string{"kind"}),
		stale: f.NewCounter(prometheus.CounterOpts{
			Namespace: "offscreen",
			Name:      "stale_events_total",
			Help:      "Events dropped because their actor or encounter no longer exists.",
		}),
		combats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offscreen",
			Name:      "combats_total",
			Help:      "Finished encounters, by outcome.",
		}, []string{"outcome"}),
		shares: f.NewCounter(prometheus.CounterOpts{
			Namespace: "offscreen",
			Name:      "memory_shares_total",
			Help:      "Memory entries passed between actors.",
		}),
		actors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "offscreen",
			Name:      "simulated_actors",
			Help:      "Actors currently simulated off-screen.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "offscreen",
			Name:      "pending_events",
			Help:      "Live events in the scheduler queue.",
		}),
	}
}

func (m *Metrics) eventFired(kind EventKind) {
	if m != nil {
		m.events.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) staleEvent() {
	if m != nil {
		m.stale.Inc()
	}
}

func (m *Metrics) combatFinished(outcome string) {
	if m != nil {
		m.combats.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) shared(n int) {
	if m != nil && n > 0 {
		m.shares.Add(float64(n))
	}
}

func (m *Metrics) observe(actors, pending int) {
	if m != nil {
		m.actors.Set(float64(actors))
		m.pending.Set(float64(pending))
	}
}
