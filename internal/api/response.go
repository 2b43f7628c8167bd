// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package api

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/supervisor/services"
	"github.com/tomtom215/trackguard/internal/validation"
)

// Error codes.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeTimeout          = "DETECTION_TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status   string               `json:"status"`
	Data     interface{}          `json:"data"`
	Metadata Metadata             `json:"metadata"`
	Error    *validation.APIError `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// sanitizeLogValue escapes control characters so request input cannot
// forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", etag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, data interface{}, start time.Time) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// respondError logs err, if any, and writes an error envelope.
func respondError(w http.ResponseWriter, status int, apiErr *validation.APIError, err error) {
	if err != nil {
		logging.Warn().
			Str("code", apiErr.Code).
			Str("error", sanitizeLogValue(err.Error())).
			Int("status", status).
			Msg("API error")
	}
	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	})
}

func respondValidation(w http.ResponseWriter, field, message string) {
	respondError(w, http.StatusBadRequest, &validation.APIError{
		Code:    CodeValidation,
		Message: message,
		Details: map[string]interface{}{"field": field},
	}, nil)
}

// respondEngineError maps detection and scheduler failures to a status.
func respondEngineError(w http.ResponseWriter, err error) {
	status, code, msg := http.StatusInternalServerError, CodeInternal, "Detection failed"
	switch {
	case errors.Is(err, services.ErrTriggerLimited):
		status, code, msg = http.StatusTooManyRequests, CodeRateLimited, "Detection was run too recently, try again later"
	case detection.IsStoreUnavailable(err):
		status, code, msg = http.StatusServiceUnavailable, CodeStoreUnavailable, "Snapshot store is unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code, msg = http.StatusGatewayTimeout, CodeTimeout, "Detection did not finish in time"
	}
	respondError(w, status, &validation.APIError{Code: code, Message: msg}, err)
}

func etag(data []byte) string {
	h := fnv.New32a()
	_, _ = h.Write(data)
	return `"` + strconv.FormatUint(uint64(h.Sum32()), 16) + `"`
}
