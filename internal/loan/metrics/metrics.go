package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the workflow engine.
type Metrics struct {
	Submitted        prometheus.Counter
	Transitions      *prometheus.CounterVec
	Conflicts        *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_applications_submitted_total",
			Help: "Loan applications created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_transitions_total",
			Help: "Transition attempts by action and outcome (error code or ok)",
		}, []string{"action", "outcome"}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_transition_conflicts_total",
			Help: "Conditional updates lost to a concurrent writer",
		}, []string{"action"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_engine_operation_duration_seconds",
			Help:    "Workflow engine operation latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m == nil {
		return
	}
	m.Submitted.Inc()
}

func (m *Metrics) RecordTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncrementConflicts(action string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
