// Package metrics exposes the manager's prometheus instrumentation:
// schema-validation latency (fed from the schema registry's validation
// records) and fleet-readiness latency, plus a live-worker-count gauge
// that cmd/manager sets once the spawn loop has finished.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/everest-core/manager/internal/schema"
)

// Metrics bundles the manager's prometheus collectors. Registered
// against a caller-supplied registry so cmd/manager controls whether
// they land on the default registry or a scoped one for tests.
type Metrics struct {
	SchemaValidationDuration *prometheus.HistogramVec
	FleetReadyLatency        prometheus.Histogram
	LiveWorkers              prometheus.Gauge
	BootFailures             *prometheus.CounterVec
}

// New creates the collector set. Call MustRegister on a
// *prometheus.Registry to expose them.
func New() *Metrics {
	return &Metrics{
		SchemaValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "everest_manager",
			Subsystem: "schema",
			Name:      "validation_duration_seconds",
			Help:      "Duration of loading a fixed schema or of a single schema.Validate call, by schema name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"schema"}),
		FleetReadyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "everest_manager",
			Subsystem: "readiness",
			Name:      "fleet_ready_latency_seconds",
			Help:      "Time from first worker spawn to the fleet-ready barrier firing.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "everest_manager",
			Subsystem: "supervisor",
			Name:      "live_workers",
			Help:      "Number of currently live worker processes.",
		}),
		BootFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "everest_manager",
			Subsystem: "boot",
			Name:      "failures_total",
			Help:      "Boot failures by stage.",
		}, []string{"stage"}),
	}
}

// MustRegister registers every collector against reg.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.SchemaValidationDuration,
		m.FleetReadyLatency,
		m.LiveWorkers,
		m.BootFailures,
	)
}

// ObserveSchemaRecords feeds a batch of schema.ValidationRecord values
// (as accumulated on schema.Registry.Records) into the duration
// histogram. Called once per config-compile pass rather than wired
// in-line in the registry, keeping internal/schema free of a
// prometheus dependency.
func (m *Metrics) ObserveSchemaRecords(records []schema.ValidationRecord) {
	for _, r := range records {
		m.SchemaValidationDuration.WithLabelValues(r.Schema).Observe(r.Duration.Seconds())
	}
}

// ObserveFleetReady records the elapsed time between since and now.
func (m *Metrics) ObserveFleetReady(since time.Time) {
	m.FleetReadyLatency.Observe(time.Since(since).Seconds())
}

// SetLiveWorkers updates the live-worker gauge.
func (m *Metrics) SetLiveWorkers(n int) {
	m.LiveWorkers.Set(float64(n))
}

// IncBootFailure increments the boot-failure counter for stage.
func (m *Metrics) IncBootFailure(stage string) {
	m.BootFailures.WithLabelValues(stage).Inc()
}
