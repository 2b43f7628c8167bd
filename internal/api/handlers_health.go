// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string     `json:"status"`
	Store         string     `json:"store"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunError  string     `json:"last_run_error,omitempty"`
}

// Health reports "healthy", "degraded" when the last run failed, or
// "unhealthy" with 503 when the store does not answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:        "healthy",
		Store:         "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if snap := h.scheduler.Latest(); snap != nil {
		at := snap.RunAt
		status.LastRunAt = &at
	}
	if err := h.scheduler.LastError(); err != nil {
		status.Status = "degraded"
		status.LastRunError = err.Error()
	}

	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Store = err.Error()
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, &APIResponse{
		Status:   "success",
		Data:     status,
		Metadata: Metadata{Timestamp: time.Now().UTC(), QueryTimeMS: time.Since(start).Milliseconds()},
	})
}
