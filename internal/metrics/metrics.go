// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection run metrics
	DetectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_detection_runs_total",
			Help: "Total number of detection runs by outcome",
		},
		[]string{"status"}, // "success", "error", "cancelled"
	)

	DetectionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackguard_detection_run_duration_seconds",
			Help:    "Duration of full detection runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DetectionCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackguard_detection_candidates",
			Help: "Number of candidate devices evaluated in the last run",
		},
	)

	DetectionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_detection_results_total",
			Help: "Total number of detection results emitted",
		},
		[]string{"source"}, // "device", "shadow"
	)

	DetectionExclusions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_detection_exclusions_total",
			Help: "Total number of devices excluded from results by reason",
		},
		[]string{"reason"}, // "whitelisted", "below_threshold", "too_close", "low_score", "linked"
	)

	ThreatScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackguard_threat_score",
			Help:    "Distribution of computed threat scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ShadowKeysEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackguard_shadow_keys_evaluated_total",
			Help: "Total number of shadow keys evaluated by the shadow analyzer",
		},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackguard_store_query_duration_seconds",
			Help:    "Duration of snapshot store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_store_query_errors_total",
			Help: "Total number of snapshot store query errors",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Alerting metrics
	AlertsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackguard_alerts_published_total",
			Help: "Total number of detection results published to the alert bus",
		},
	)

	AlertsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackguard_alerts_delivered_total",
			Help: "Total number of alerts passed to the alert sink",
		},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackguard_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the per-device cooldown",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackguard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackguard_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordDetectionRun records the outcome and duration of one detection run.
func RecordDetectionRun(status string, duration time.Duration, candidates int) {
	DetectionRunsTotal.WithLabelValues(status).Inc()
	DetectionRunDuration.Observe(duration.Seconds())
	DetectionCandidates.Set(float64(candidates))
}

// RecordDetectionResult records one emitted result.
func RecordDetectionResult(source string, score float64) {
	DetectionResultsTotal.WithLabelValues(source).Inc()
	ThreatScore.Observe(score)
}

// RecordExclusion records a device dropped from the result set.
func RecordExclusion(reason string) {
	DetectionExclusions.WithLabelValues(reason).Inc()
}

// RecordStoreQuery records a store query and its error, if any.
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
