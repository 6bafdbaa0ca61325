package report

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are counters projected from task Results. Every value can be
// explained by looking at the recorded Results.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastExitCode *prometheus.GaugeVec
	lastRun      *prometheus.GaugeVec
}

// NewMetrics creates metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchctl_task_runs_total",
				Help: "Total task invocations by outcome",
			},
			[]string{"task", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "benchctl_task_duration_seconds",
				Help:    "Wall-clock duration of task invocations",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"task"},
		),
		lastExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "benchctl_task_last_exit_code",
				Help: "Exit code of the most recent invocation of a task",
			},
			[]string{"task"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "benchctl_task_last_run_timestamp_seconds",
				Help: "Unix time the most recent invocation of a task finished",
			},
			[]string{"task"},
		),
	}

	m.registry.MustRegister(m.runs, m.duration, m.lastExitCode, m.lastRun)
	return m
}

// RecordResult updates all series from a single Result.
func (m *Metrics) RecordResult(r *Result) {
	m.runs.WithLabelValues(r.Task, r.Outcome).Inc()
	m.duration.WithLabelValues(r.Task).Observe(r.Duration.Seconds())
	m.lastExitCode.WithLabelValues(r.Task).Set(float64(r.ExitCode))
	m.lastRun.WithLabelValues(r.Task).Set(float64(r.EndTime.Unix()))
}

// Gatherer returns the registry as a prometheus.Gatherer
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
