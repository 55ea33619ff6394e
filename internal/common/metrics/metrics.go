// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Total lifecycle transitions applied, by event",
		},
		[]string{"event"},
	)

	InvalidTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_invalid_transitions_total",
			Help: "Total rejected transition attempts, by event",
		},
		[]string{"event"},
	)

	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduler job ticks by outcome",
		},
		[]string{"job", "outcome"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scheduler_job_duration_seconds",
			Help: "Duration of scheduler job ticks in seconds",
		},
		[]string{"job"},
	)

	CallsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_submitted_total",
			Help: "Total outbound calls submitted to the voice provider",
		},
		[]string{"mode"}, // batch | single
	)

	CallsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_completed_total",
			Help: "Total calls reaching a terminal provider status",
		},
		[]string{"status"},
	)

	EvaluationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_processed_total",
			Help: "Total transcript evaluations by outcome",
		},
		[]string{"outcome"},
	)

	VerdictParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verdict_parse_failures_total",
			Help: "Scoring verdicts unparseable after the repair pass",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total webhook deliveries by source and result",
		},
		[]string{"source", "result"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total outbound messages by channel and status",
		},
		[]string{"channel", "status"},
	)

	CVMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cv_matches_total",
			Help: "Inbound CV attributions by cascade tier",
		},
		[]string{"method"},
	)

	CVUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cv_unmatched_total",
			Help: "Inbound items the matching cascade could not attribute",
		},
	)
)
