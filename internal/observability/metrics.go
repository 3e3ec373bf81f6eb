// Package observability provides metrics and tracing for simulation runs.
//
// Metrics are registered on a caller-supplied registry so tests can use an
// isolated prometheus.Registry. A nil *Metrics is valid and records nothing.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "ising"

// Metrics holds the Prometheus collectors for a run.
type Metrics struct {
	// StepsTotal counts committed steps.
	StepsTotal prometheus.Counter
	// StepDurationSeconds measures Advance from upload to swap.
	StepDurationSeconds prometheus.Histogram
	// StepFailuresTotal counts steps aborted by the device.
	StepFailuresTotal prometheus.Counter
	// SnapshotsTotal counts snapshots handed to the sink.
	SnapshotsTotal prometheus.Counter
	// SnapshotErrorsTotal counts sink failures.
	SnapshotErrorsTotal prometheus.Counter
	// BroadcastDurationSeconds measures the one-time seed distribution.
	BroadcastDurationSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "steps_total",
			Help:      "Number of committed Monte Carlo steps",
		}),
		StepDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of one lattice step including device transfers",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		StepFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_failures_total",
			Help:      "Number of steps aborted by a device failure",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshots_total",
			Help:      "Number of lattice snapshots emitted",
		}),
		SnapshotErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshot_errors_total",
			Help:      "Number of snapshots the sink failed to accept",
		}),
		BroadcastDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_duration_seconds",
			Help:      "Wall time of the initial lattice broadcast",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	reg.MustRegister(
		m.StepsTotal,
		m.StepDurationSeconds,
		m.StepFailuresTotal,
		m.SnapshotsTotal,
		m.SnapshotErrorsTotal,
		m.BroadcastDurationSeconds,
	)
	return m
}

// ObserveStep records one Advance call.
func (m *Metrics) ObserveStep(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StepFailuresTotal.Inc()
		return
	}
	m.StepsTotal.Inc()
	m.StepDurationSeconds.Observe(d.Seconds())
}

// ObserveSnapshot records one sink emission.
func (m *Metrics) ObserveSnapshot(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SnapshotErrorsTotal.Inc()
		return
	}
	m.SnapshotsTotal.Inc()
}

// ObserveBroadcast records the seed distribution.
func (m *Metrics) ObserveBroadcast(d time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastDurationSeconds.Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
