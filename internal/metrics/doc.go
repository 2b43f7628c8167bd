// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

// Package metrics declares the Prometheus collectors exported on /metrics.
//
// Collectors are registered with the default registry through promauto and
// are safe for concurrent use. Components record through the Record* helpers
// or use the vectors directly:
//
//	metrics.RecordDetectionRun("success", elapsed, len(candidates))
//	metrics.CircuitBreakerRequests.WithLabelValues("store", "rejected").Inc()
//
// All metric names carry the trackguard_ prefix.
package metrics
