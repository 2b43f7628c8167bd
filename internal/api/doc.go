// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package api serves Trackguard's HTTP interface with chi.

Every JSON response uses the same envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "data": null, "error": {"code": "VALIDATION_ERROR", "message": "..."}}

# Endpoints

	GET  /health                         store ping and last run state
	GET  /metrics                        Prometheus metrics
	GET  /api/v1/detections              latest snapshot; min_score, source, limit
	POST /api/v1/detections/run          run now, rate limited by the scheduler
	GET  /api/v1/devices/{id}/detection  evaluate one device
	GET  /api/v1/shadows                 shadow-profile analysis
	GET  /api/v1/settings                current thresholds
	PUT  /api/v1/settings                update thresholds for the next run

Routes under /api/v1 are limited per client IP with httprate and carry
no-store cache headers. Error codes: VALIDATION_ERROR (400), RATE_LIMITED
(429), STORE_UNAVAILABLE (503), DETECTION_TIMEOUT (504), INTERNAL_ERROR
(500).

The server binds to 127.0.0.1 by default and has no authentication; expose
it beyond the host only behind an authenticating proxy.
*/
package api
