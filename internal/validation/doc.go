// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. It reports field
// names by their koanf or json tag, so a failure in the configuration reads
// "detection.min_threat_score must be between 0 and 1" rather than naming
// the Go field.
//
// Custom tags:
//
//	unit   float in [0, 1]
//
// Example:
//
//	type runRequest struct {
//	    Limit int `query:"limit" validate:"min=0,max=1000"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    apiErr := err.ToAPIError()
//	    ...
//	}
package validation
