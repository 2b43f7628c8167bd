// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/supervisor/services"
	"github.com/tomtom215/trackguard/internal/validation"
)

// DetectionsQuery filters GET /api/v1/detections.
type DetectionsQuery struct {
	MinScore float64          `query:"min_score" validate:"unit"`
	Source   detection.Source `query:"source" validate:"omitempty,oneof=device shadow"`
	Limit    int              `query:"limit" validate:"min=1,max=1000"`
}

// DetectionsResponse is the filtered view of one snapshot.
type DetectionsResponse struct {
	RunAt   *time.Time                  `json:"run_at"`
	Trigger string                      `json:"trigger,omitempty"`
	Partial bool                        `json:"partial"`
	Total   int                         `json:"total"`
	Results []detection.DetectionResult `json:"results"`
}

// DeviceDetectionResponse answers GET /api/v1/devices/{id}/detection.
type DeviceDetectionResponse struct {
	DeviceID int64                      `json:"device_id"`
	Detected bool                       `json:"detected"`
	Result   *detection.DetectionResult `json:"result"`
}

func parseDetectionsQuery(r *http.Request) (DetectionsQuery, *validation.APIError) {
	q := DetectionsQuery{Limit: 100}
	values := r.URL.Query()

	if v := values.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, &validation.APIError{Code: CodeValidation, Message: "min_score must be a number", Details: map[string]interface{}{"field": "min_score"}}
		}
		q.MinScore = f
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &validation.APIError{Code: CodeValidation, Message: "limit must be an integer", Details: map[string]interface{}{"field": "limit"}}
		}
		q.Limit = n
	}
	q.Source = detection.Source(values.Get("source"))

	if verr := validation.ValidateStruct(&q); verr != nil {
		return q, verr.ToAPIError()
	}
	return q, nil
}

func filterSnapshot(snap *services.Snapshot, q DetectionsQuery) DetectionsResponse {
	resp := DetectionsResponse{Results: []detection.DetectionResult{}}
	if snap == nil {
		return resp
	}
	at := snap.RunAt
	resp.RunAt = &at
	resp.Trigger = snap.Trigger
	resp.Partial = snap.Partial

	// Snapshots are ranked by score, so the filter keeps that order.
	for i := range snap.Results {
		res := &snap.Results[i]
		if res.ThreatScore < q.MinScore {
			continue
		}
		if q.Source != "" && res.Source != q.Source {
			continue
		}
		resp.Total++
		if len(resp.Results) < q.Limit {
			resp.Results = append(resp.Results, *res)
		}
	}
	return resp
}

// Detections returns the latest snapshot, filtered.
func (h *Handler) Detections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, apiErr := parseDetectionsQuery(r)
	if apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	respondOK(w, filterSnapshot(h.scheduler.Latest(), q), start)
}

// RunDetection runs a full pass now and returns it unfiltered.
func (h *Handler) RunDetection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := h.scheduler.Trigger(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, filterSnapshot(snap, DetectionsQuery{Limit: len(snap.Results) + 1}), start)
}

// DeviceDetection evaluates one device against the current snapshot.
func (h *Handler) DeviceDetection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondValidation(w, "id", "device id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.engine.RunDetectionForDevice(ctx, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, DeviceDetectionResponse{DeviceID: id, Detected: result != nil, Result: result}, start)
}

// Shadows returns the current shadow-profile analysis, including profiles
// below the shadow alert threshold.
func (h *Handler) Shadows(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	shadows, err := h.engine.FindSuspiciousShadows(ctx)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if shadows == nil {
		shadows = []detection.ShadowAnalysisResult{}
	}
	respondOK(w, shadows, start)
}
