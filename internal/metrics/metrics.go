// Package metrics exposes Prometheus collectors for DS-STAR sessions.
//
// Collectors are registered on a caller-supplied registry so that tests and
// embedded servers never touch the global default registry. Subscribe feeds
// them from a session event bus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/dsstar/internal/event"
)

const namespace = "dsstar"

// Execution result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector holds the session collectors.
type Collector struct {
	// Iterations counts completed iterations across all sessions.
	Iterations prometheus.Counter

	// Executions counts settled executions.
	// Labels: result (success, failure)
	Executions *prometheus.CounterVec

	// ExecutionDuration measures the settled attempt of each execution.
	ExecutionDuration prometheus.Histogram

	// DebugAttempts observes how many attempts an execution needed.
	DebugAttempts prometheus.Histogram

	// Backtracks counts applied BACKTRACK routes.
	Backtracks prometheus.Counter

	// Sessions counts finished sessions.
	// Labels: outcome (verified, exhausted, failed, cancelled)
	Sessions *prometheus.CounterVec

	// ActiveSessions is the number of sessions currently running.
	ActiveSessions prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Total number of completed plan iterations",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of settled program executions by result",
		}, []string{"result"}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of the settled execution attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DebugAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_attempts",
			Help:      "Number of execution attempts per settled execution",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		Backtracks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtracks_total",
			Help:      "Total number of applied plan backtracks",
		}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions by outcome",
		}, []string{"outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently running",
		}),
	}
}

// Subscribe wires the collector to bus and returns the subscription IDs.
func (c *Collector) Subscribe(bus *event.Bus) []string {
	return []string{
		bus.Subscribe(event.TypeSessionStarted, func(event.Event) {
			c.ActiveSessions.Inc()
		}),
		bus.Subscribe(event.TypeExecutionFinished, func(e event.Event) {
			ev, ok := e.(event.ExecutionFinishedEvent)
			if !ok {
				return
			}
			result := ResultFailure
			if ev.Success {
				result = ResultSuccess
			}
			c.Executions.WithLabelValues(result).Inc()
			c.ExecutionDuration.Observe(ev.Duration.Seconds())
			c.DebugAttempts.Observe(float64(ev.Attempts))
		}),
		bus.Subscribe(event.TypePlanBacktracked, func(event.Event) {
			c.Backtracks.Inc()
		}),
		bus.Subscribe(event.TypeIterationCompleted, func(event.Event) {
			c.Iterations.Inc()
		}),
		bus.Subscribe(event.TypeSessionCompleted, func(e event.Event) {
			ev, ok := e.(event.SessionCompletedEvent)
			if !ok {
				return
			}
			c.Sessions.WithLabelValues(ev.Outcome).Inc()
			c.ActiveSessions.Dec()
		}),
	}
}
