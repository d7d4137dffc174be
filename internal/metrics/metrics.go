// Package metrics exposes the Prometheus instrumentation for the goal
// engine. The registry is populated unconditionally; exporting it over
// HTTP is left to the embedding application (see SPEC_FULL.md §4.11).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GoalMetrics tracks goal lifecycle and tick behaviour.
type GoalMetrics struct {
	StateTransitions *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec
	GoalDuration     *prometheus.HistogramVec
}

// ScenarioMetrics tracks scenario-level outcomes.
type ScenarioMetrics struct {
	Score          *prometheus.GaugeVec
	Runs           *prometheus.CounterVec
	FatalTriggered *prometheus.CounterVec
}

// NewGoalMetrics creates goal lifecycle metrics registered against reg. A
// nil reg uses a fresh, private registry so that constructing more than one
// engine instance in the same process (e.g. in tests) never collides with
// prometheus' global DefaultRegisterer.
func NewGoalMetrics(namespace string, reg prometheus.Registerer) *GoalMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &GoalMetrics{
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: namespace + "_goal_state_transitions_total",
				Help: "Total number of goal state transitions, by goal type and resulting state.",
			},
			[]string{"goal_type", "state"},
		),
		TickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    namespace + "_goal_tick_duration_seconds",
				Help:    "Wall-clock duration of a single goal tick.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"goal_type"},
		),
		GoalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    namespace + "_goal_duration_seconds",
				Help:    "Total elapsed time from Enter to a terminal state.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"goal_type", "state"},
		),
	}
}

// NewScenarioMetrics creates scenario-level metrics registered against reg
// (see NewGoalMetrics for the nil-reg behaviour).
func NewScenarioMetrics(namespace string, reg prometheus.Registerer) *ScenarioMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &ScenarioMetrics{
		Score: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: namespace + "_scenario_score",
				Help: "Current weighted score of a scenario run.",
			},
			[]string{"scenario"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: namespace + "_scenario_runs_total",
				Help: "Total number of scenario runs, by execution strategy.",
			},
			[]string{"scenario", "execution"},
		),
		FatalTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: namespace + "_scenario_fatal_triggered_total",
				Help: "Total number of scenario runs terminated by a fatal goal.",
			},
			[]string{"scenario"},
		),
	}
}

// RecordTransition records a goal state transition and its tick latency.
func (m *GoalMetrics) RecordTransition(goalType, state string, tickDuration time.Duration) {
	m.StateTransitions.WithLabelValues(goalType, state).Inc()
	if tickDuration > 0 {
		m.TickDuration.WithLabelValues(goalType).Observe(tickDuration.Seconds())
	}
}

// RecordTerminal records the total duration of a goal that reached a
// terminal state.
func (m *GoalMetrics) RecordTerminal(goalType, state string, duration time.Duration) {
	m.GoalDuration.WithLabelValues(goalType, state).Observe(duration.Seconds())
}
