// Package metrics holds the process-wide Prometheus collectors.
//
// Outcomes are labelled so launch failures (environment problems) can be told
// apart from completed runs whose user code failed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeCompleted     = "completed"
	OutcomeTimedOut      = "timed_out"
	OutcomeLaunchFailed  = "launch_failed"
	OutcomeStagingFailed = "staging_failed"
	OutcomeUnsupported   = "unsupported"
	OutcomeInvalid       = "invalid"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_executions_total",
			Help: "Total number of execution requests by outcome",
		},
		[]string{"language", "outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_execution_duration_seconds",
			Help:    "Wall-clock time spent inside the sandbox",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"language"},
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_active_executions",
			Help: "Number of sandboxed programs currently running",
		},
	)

	TeardownFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_workspace_teardown_failures_total",
			Help: "Workspaces that could not be removed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	ImagePulls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_image_pulls_total",
			Help: "Runtime image pulls by result",
		},
		[]string{"image", "result"},
	)
)
