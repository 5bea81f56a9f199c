// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection pipeline

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_detections_total",
			Help: "Detection results by method, category and bot flag",
		},
		[]string{"method", "category", "is_bot"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "botsentry_detection_duration_seconds",
			Help:    "Time spent classifying a single user agent",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	HeuristicShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsentry_heuristic_skipped_total",
			Help: "Detections answered by the catalog without running heuristics",
		},
	)

	UnknownRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_unknown_recorded_total",
			Help: "Non-confident observations queued for learning, by outcome",
		},
		[]string{"outcome"},
	)

	// Catalog

	CatalogPatterns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsentry_catalog_patterns",
			Help: "Active patterns in the current catalog snapshot",
		},
	)

	CatalogInvalidPatterns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsentry_catalog_invalid_patterns",
			Help: "Active patterns that failed to compile in the current snapshot",
		},
	)

	CatalogRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_catalog_refreshes_total",
			Help: "Catalog reloads from the store, by outcome",
		},
		[]string{"outcome"},
	)

	// Auto-learner

	LearnerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_learner_runs_total",
			Help: "Auto-learner batch runs, by outcome",
		},
		[]string{"outcome"},
	)

	LearnerCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_learner_candidates_total",
			Help: "Candidates processed by the auto-learner, by resulting status",
		},
		[]string{"status"},
	)

	// External sync

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_sync_runs_total",
			Help: "External source sync runs, by source and status",
		},
		[]string{"source", "status"},
	)

	SyncPatterns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_sync_patterns_total",
			Help: "Patterns touched by external sync, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botsentry_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Scheduler

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsentry_job_runs_total",
			Help: "Scheduled job executions, by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	// Event stream

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsentry_events_dropped_total",
			Help: "Detection events dropped because the writer buffer was full",
		},
	)
)
