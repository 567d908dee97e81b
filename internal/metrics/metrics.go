// Package metrics exposes Prometheus instruments for the job lanes and the
// mail dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escalation"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Completed job passes by outcome.",
	}, []string{"job", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of job passes.",
		Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	skippedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_skipped_ticks_total",
		Help:      "Scheduled ticks dropped because the previous pass was still running.",
	}, []string{"job"})

	emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_total",
		Help:      "Email send attempts by job and outcome.",
	}, []string{"job", "outcome"})

	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Escalation policy decisions by action.",
	}, []string{"action"})
)

// ObserveRun records one finished pass of job.
func ObserveRun(job string, took time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	jobRuns.WithLabelValues(job, outcome).Inc()
	jobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// SkippedTick counts a tick dropped by a busy lane.
func SkippedTick(job string) {
	skippedTicks.WithLabelValues(job).Inc()
}

// Email counts a send attempt.
func Email(job string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	emails.WithLabelValues(job, outcome).Inc()
}

// Decision counts an escalation policy outcome.
func Decision(action string) {
	decisions.WithLabelValues(action).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
