// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/validation"
)

const maxSettingsBody = 16 << 10

// SettingsBody is the wire form of detection.Settings. The lookback is a Go
// duration string such as "168h".
type SettingsBody struct {
	AlertThreshold             int     `json:"alert_threshold" validate:"min=2,max=1000"`
	MinDetectionDistanceMeters float64 `json:"min_detection_distance_meters" validate:"gte=0"`
	MinThreatScore             float64 `json:"min_threat_score" validate:"unit"`
	MinShadowScore             float64 `json:"min_shadow_score" validate:"unit"`
	PathLookback               string  `json:"path_lookback" validate:"required"`
}

func settingsBody(s detection.Settings) SettingsBody {
	return SettingsBody{
		AlertThreshold:             s.AlertThreshold,
		MinDetectionDistanceMeters: s.MinDetectionDistanceMeters,
		MinThreatScore:             s.MinThreatScore,
		MinShadowScore:             s.MinShadowScore,
		PathLookback:               s.PathLookback.String(),
	}
}

// GetSettings returns the thresholds the next run will use.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s, err := h.settings.Settings(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, settingsBody(s), start)
}

// UpdateSettings merges the request body over the current thresholds.
// Fields left out keep their current value.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	current, err := h.settings.Settings(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}

	body := settingsBody(current)
	data, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		respondValidation(w, "body", "could not read request body")
		return
	}
	if err := json.Unmarshal(data, &body); err != nil {
		respondValidation(w, "body", "request body must be a JSON object")
		return
	}
	if verr := validation.ValidateStruct(&body); verr != nil {
		respondError(w, http.StatusBadRequest, verr.ToAPIError(), nil)
		return
	}
	lookback, err := time.ParseDuration(body.PathLookback)
	if err != nil {
		respondValidation(w, "path_lookback", "path_lookback must be a duration such as 168h")
		return
	}

	next := detection.Settings{
		AlertThreshold:             body.AlertThreshold,
		MinDetectionDistanceMeters: body.MinDetectionDistanceMeters,
		MinThreatScore:             body.MinThreatScore,
		MinShadowScore:             body.MinShadowScore,
		PathLookback:               lookback,
	}
	if err := h.settings.Update(next); err != nil {
		respondValidation(w, "settings", err.Error())
		return
	}
	respondOK(w, settingsBody(next), start)
}
