// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by all job handlers. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	admins   prometheus.Gauge
}

// NewMetrics registers the job collectors on registerer, or on a fresh
// private registry when registerer is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "jobs_total",
			Help:      "Job executions by job name and status.",
		}, []string{"job", "status"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "jobs_failures_total",
			Help:      "Failed job executions by job name.",
		}, []string{"job"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backoffice",
			Name:      "job_duration_seconds",
			Help:      "Job execution time by job name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		admins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "backoffice",
			Name:      "admin_principals",
			Help:      "Principals holding ADMIN at the last admin check.",
		}),
	}
}

// Tracker times one job run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged, so handlers can
// write `defer func() { err = tracker.End(err) }()`.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.m.failures.WithLabelValues(t.job).Inc()
	}
	t.m.runs.WithLabelValues(t.job, status).Inc()
	t.m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetAdminCount publishes the latest ADMIN principal count.
func (m *Metrics) SetAdminCount(n int) {
	if m == nil {
		return
	}
	m.admins.Set(float64(n))
}
