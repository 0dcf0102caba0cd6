// Package metrics holds the Prometheus collectors for the API and cron worker.
// Constructors accept a nil Registerer and return no-op collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "castmaster"

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// SweepMetrics covers the cron worker: per-job run counts and latency, and
// cycles skipped because another replica held the lock.
type SweepMetrics struct {
	runs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
	skipped prometheus.Counter
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Cron job runs by job and result.",
		}, []string{"job", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "run_seconds",
			Help:      "Cron job wall time.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 180},
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because the sweep lock was held elsewhere.",
		}),
	}
	if reg == nil {
		return &SweepMetrics{}
	}
	reg.MustRegister(m.runs, m.latency, m.skipped)
	return m
}

// ObserveRun records one job execution; a non-nil err counts as failed.
func (m *SweepMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	result := RunSucceeded
	if err != nil {
		result = RunFailed
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, result).Inc()
	m.latency.WithLabelValues(job).Observe(took.Seconds())
}

func (m *SweepMetrics) CycleSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
