// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// getHistogram snapshots a histogram so tests can inspect counts and sums.
func getHistogram(t *testing.T, h prometheus.Histogram) *io_prometheus_client.Histogram {
	t.Helper()
	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetHistogram()
}

func TestRecordDetectionRun(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		candidates int
	}{
		{"successful run", "success", 12},
		{"failed run", "error", 0},
		{"cancelled run", "cancelled", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(DetectionRunsTotal.WithLabelValues(tt.status))

			RecordDetectionRun(tt.status, 250*time.Millisecond, tt.candidates)

			after := testutil.ToFloat64(DetectionRunsTotal.WithLabelValues(tt.status))
			if after-before != 1 {
				t.Errorf("runs{status=%q} increased by %v, want 1", tt.status, after-before)
			}
			if got := testutil.ToFloat64(DetectionCandidates); got != float64(tt.candidates) {
				t.Errorf("candidates gauge = %v, want %d", got, tt.candidates)
			}
		})
	}
}

func TestRecordDetectionResult(t *testing.T) {
	before := testutil.ToFloat64(DetectionResultsTotal.WithLabelValues("shadow"))

	RecordDetectionResult("shadow", 0.82)
	RecordDetectionResult("shadow", 0.61)

	if got := testutil.ToFloat64(DetectionResultsTotal.WithLabelValues("shadow")) - before; got != 2 {
		t.Errorf("shadow results increased by %v, want 2", got)
	}
}

func TestRecordDetectionResult_ScoreHistogram(t *testing.T) {
	before := getHistogram(t, ThreatScore)

	RecordDetectionResult("device", 0.35)

	after := getHistogram(t, ThreatScore)
	if got := after.GetSampleCount() - before.GetSampleCount(); got != 1 {
		t.Errorf("sample count increased by %d, want 1", got)
	}
	if got := after.GetSampleSum() - before.GetSampleSum(); got < 0.349 || got > 0.351 {
		t.Errorf("sample sum increased by %v, want 0.35", got)
	}
}

func TestRecordExclusion(t *testing.T) {
	reasons := []string{"whitelisted", "below_threshold", "too_close", "low_score", "linked"}
	for _, reason := range reasons {
		before := testutil.ToFloat64(DetectionExclusions.WithLabelValues(reason))
		RecordExclusion(reason)
		if got := testutil.ToFloat64(DetectionExclusions.WithLabelValues(reason)) - before; got != 1 {
			t.Errorf("exclusions{reason=%q} increased by %v, want 1", reason, got)
		}
	}
}

func TestRecordStoreQuery(t *testing.T) {
	op := "candidate_devices"
	before := testutil.ToFloat64(StoreQueryErrors.WithLabelValues(op))

	RecordStoreQuery(op, 3*time.Millisecond, nil)
	RecordStoreQuery(op, 8*time.Millisecond, errors.New("database is locked"))

	if got := testutil.ToFloat64(StoreQueryErrors.WithLabelValues(op)) - before; got != 1 {
		t.Errorf("store errors increased by %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/detections", "200"))

	RecordAPIRequest("GET", "/api/v1/detections", "200", 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/detections", "200"))
	if after-before != 1 {
		t.Errorf("api requests increased by %v, want 1", after-before)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	CircuitBreakerState.WithLabelValues("test-breaker").Set(2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test-breaker")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}

	CircuitBreakerTransitions.WithLabelValues("test-breaker", "closed", "open").Inc()
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("test-breaker", "closed", "open")); got < 1 {
		t.Errorf("transitions = %v, want >= 1", got)
	}
}

func TestMetricGathering(t *testing.T) {
	RecordDetectionRun("success", time.Second, 1)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Logf("metric lint problem: %s: %s", p.Metric, p.Text)
	}
}
