// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package validation

import (
	"strings"
	"testing"
	"time"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type thresholds struct {
	AlertThreshold int           `koanf:"alert_threshold" validate:"min=1,max=100"`
	MinThreatScore float64       `koanf:"min_threat_score" validate:"unit"`
	Interval       time.Duration `koanf:"interval" validate:"gte=1s"`
	Driver         string        `koanf:"driver" validate:"oneof=duckdb sqlite"`
}

type testConfig struct {
	Detection thresholds `koanf:"detection"`
	Name      string     `json:"name" validate:"required"`
}

func validConfig() testConfig {
	return testConfig{
		Detection: thresholds{
			AlertThreshold: 3,
			MinThreatScore: 0.5,
			Interval:       time.Minute,
			Driver:         "duckdb",
		},
		Name: "trackguard",
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testConfig)
	}{
		{"defaults", func(*testConfig) {}},
		{"unit lower bound", func(c *testConfig) { c.Detection.MinThreatScore = 0 }},
		{"unit upper bound", func(c *testConfig) { c.Detection.MinThreatScore = 1 }},
		{"minimum interval", func(c *testConfig) { c.Detection.Interval = time.Second }},
		{"sqlite driver", func(c *testConfig) { c.Detection.Driver = "sqlite" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := ValidateStruct(&cfg); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*testConfig)
		wantField string
		wantTag   string
	}{
		{
			name:      "score above one",
			mutate:    func(c *testConfig) { c.Detection.MinThreatScore = 1.5 },
			wantField: "detection.min_threat_score",
			wantTag:   "unit",
		},
		{
			name:      "negative score",
			mutate:    func(c *testConfig) { c.Detection.MinThreatScore = -0.1 },
			wantField: "detection.min_threat_score",
			wantTag:   "unit",
		},
		{
			name:      "threshold zero",
			mutate:    func(c *testConfig) { c.Detection.AlertThreshold = 0 },
			wantField: "detection.alert_threshold",
			wantTag:   "min",
		},
		{
			name:      "interval too short",
			mutate:    func(c *testConfig) { c.Detection.Interval = time.Millisecond },
			wantField: "detection.interval",
			wantTag:   "gte",
		},
		{
			name:      "unknown driver",
			mutate:    func(c *testConfig) { c.Detection.Driver = "postgres" },
			wantField: "detection.driver",
			wantTag:   "oneof",
		},
		{
			name:      "json tag name",
			mutate:    func(c *testConfig) { c.Name = "" },
			wantField: "name",
			wantTag:   "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := ValidateStruct(&cfg)
			if err == nil {
				t.Fatal("ValidateStruct() should have returned an error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testConfig)
		want   string
	}{
		{"unit", func(c *testConfig) { c.Detection.MinThreatScore = 2 }, "detection.min_threat_score must be between 0 and 1"},
		{"min", func(c *testConfig) { c.Detection.AlertThreshold = 0 }, "detection.alert_threshold must be at least 1"},
		{"max", func(c *testConfig) { c.Detection.AlertThreshold = 101 }, "detection.alert_threshold must be at most 100"},
		{"oneof", func(c *testConfig) { c.Detection.Driver = "x" }, "detection.driver must be one of: duckdb sqlite"},
		{"required", func(c *testConfig) { c.Name = "" }, "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateStruct(&cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	cfg := validConfig()
	cfg.Detection.Driver = "postgres"

	apiErr := ValidateStruct(&cfg).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details["field"] != "detection.driver" {
		t.Errorf("Details[field] = %v, want detection.driver", apiErr.Details["field"])
	}
	if apiErr.Details["tag"] != "oneof" {
		t.Errorf("Details[tag] = %v, want oneof", apiErr.Details["tag"])
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Detection.Driver = "postgres"
	cfg.Name = ""

	apiErr := ValidateStruct(&cfg).ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok {
		t.Fatalf("Details[fields] has type %T", apiErr.Details["fields"])
	}
	if len(fields) != 2 {
		t.Errorf("got %d fields, want 2", len(fields))
	}
	if !strings.Contains(apiErr.Message, "; ") {
		t.Errorf("Message = %q, want joined messages", apiErr.Message)
	}
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&RequestValidationError{}).ToAPIError()
	if apiErr.Message != "Validation failed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestUnitRejectsNonFloat(t *testing.T) {
	type bad struct {
		N int `validate:"unit"`
	}
	if err := ValidateStruct(&bad{N: 0}); err == nil {
		t.Error("unit accepted an int field")
	}
}
