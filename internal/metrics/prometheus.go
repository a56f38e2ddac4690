package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Scheduler metrics
	OperationsInFlight  prometheus.Gauge
	OperationsSubmitted *prometheus.CounterVec
	OperationFaults     *prometheus.CounterVec
	OperationDuration   prometheus.Histogram

	// Batch metrics
	ResourcesCompleted *prometheus.CounterVec
	BatchProgress      *prometheus.GaugeVec

	// State machine metrics
	StateTransitions *prometheus.CounterVec

	// Classifier metrics
	ProbeErrors prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_operations_in_flight",
				Help: "Current number of in-flight migration operations",
			},
		),

		OperationsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_operations_submitted_total",
				Help: "Total number of migration operations submitted",
			},
			[]string{"direction"},
		),

		OperationFaults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_operation_faults_total",
				Help: "Total number of migration operations that faulted",
			},
			[]string{"direction"},
		),

		OperationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orchestrator_operation_duration_seconds",
				Help:    "Duration of migration operations from submission to terminal status",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		ResourcesCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_resources_completed_total",
				Help: "Total number of resources driven to completion",
			},
			[]string{"direction", "path"},
		),

		BatchProgress: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_batch_progress_percentage",
				Help: "Completion percentage of the current migration batch",
			},
			[]string{"batch"},
		),

		StateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_state_transitions_total",
				Help: "Total number of recovery state transitions by outcome",
			},
			[]string{"action", "outcome"},
		),

		ProbeErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestrator_probe_errors_total",
				Help: "Total number of transient replication topology probe failures",
			},
		),
	}
}

// SetOperationsInFlight updates the in-flight operations gauge
func (m *Metrics) SetOperationsInFlight(count int) {
	m.OperationsInFlight.Set(float64(count))
}

// RecordSubmission records a submitted migration operation
func (m *Metrics) RecordSubmission(direction string) {
	m.OperationsSubmitted.WithLabelValues(direction).Inc()
}

// RecordOperationFault records a faulted migration operation
func (m *Metrics) RecordOperationFault(direction string) {
	m.OperationFaults.WithLabelValues(direction).Inc()
}

// ObserveOperationDuration records the lifetime of a terminal operation
func (m *Metrics) ObserveOperationDuration(d time.Duration) {
	m.OperationDuration.Observe(d.Seconds())
}

// RecordResourceCompleted records a resource reaching completion via the
// given path (migrate or reset)
func (m *Metrics) RecordResourceCompleted(direction, path string) {
	m.ResourcesCompleted.WithLabelValues(direction, path).Inc()
}

// UpdateBatchProgress updates the batch progress gauge
func (m *Metrics) UpdateBatchProgress(batch string, percentage float64) {
	m.BatchProgress.WithLabelValues(batch).Set(percentage)
}

// RecordTransition records a recovery state transition outcome
func (m *Metrics) RecordTransition(action, outcome string) {
	m.StateTransitions.WithLabelValues(action, outcome).Inc()
}

// RecordProbeError records a transient topology probe failure
func (m *Metrics) RecordProbeError() {
	m.ProbeErrors.Inc()
}
