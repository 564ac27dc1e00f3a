// ABOUTME: Prometheus metrics for sync attempts
// ABOUTME: A nil *Metrics records nothing
package truetime

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSucceeded  = "succeeded"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
	outcomeShutdown   = "shutdown"
)

// Metrics collects coordinator statistics. Register it with a
// prometheus.Registerer.
type Metrics struct {
	attempts    *prometheus.CounterVec
	stale       prometheus.Counter
	drift       prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewMetrics creates the coordinator collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truetime_sync_attempts_total",
				Help: "Sync attempts by how they ended.",
			},
			[]string{"outcome"},
		),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truetime_stale_results_discarded_total",
			Help: "Results that arrived for an attempt that was already superseded.",
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truetime_drift_milliseconds",
			Help: "Estimated true time minus local wall clock at the last successful sync.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truetime_last_success_timestamp_seconds",
			Help: "Local wall-clock time of the last successful sync.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(descs chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, descs)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(metrics chan<- prometheus.Metric) {
	m.attempts.Collect(metrics)
	m.stale.Collect(metrics)
	m.drift.Collect(metrics)
	m.lastSuccess.Collect(metrics)
}

func (m *Metrics) attemptEnded(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) staleDiscarded() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) synced(est Estimate) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcomeSucceeded).Inc()
	m.drift.Set(float64(est.DriftMs))
	m.lastSuccess.Set(float64(est.WallClockMs) / 1000)
}
