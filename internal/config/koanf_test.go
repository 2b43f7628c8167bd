// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/trackguard/internal/detection"
)

// writeConfigFile writes content to a YAML file in a fresh temp dir.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	return path
}

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Detection defaults
	if cfg.Detection.Interval != 15*time.Minute {
		t.Errorf("Detection.Interval = %v, want 15m", cfg.Detection.Interval)
	}
	if cfg.Detection.AlertThreshold != 3 {
		t.Errorf("Detection.AlertThreshold = %d, want 3", cfg.Detection.AlertThreshold)
	}
	if cfg.Detection.MinDetectionDistanceMeters != 100 {
		t.Errorf("Detection.MinDetectionDistanceMeters = %v, want 100", cfg.Detection.MinDetectionDistanceMeters)
	}
	if cfg.Detection.MinThreatScore != 0.5 {
		t.Errorf("Detection.MinThreatScore = %v, want 0.5", cfg.Detection.MinThreatScore)
	}

	// Scorer sections mirror the detection package
	if cfg.RotationDetectorConfig() != detection.DefaultRotationConfig() {
		t.Errorf("rotation defaults drifted: %+v", cfg.Rotation)
	}
	if cfg.MovementCalculatorConfig() != detection.DefaultMovementConfig() {
		t.Errorf("movement defaults drifted: %+v", cfg.Movement)
	}
	if cfg.LinkDeciderConfig() != detection.DefaultLinkConfig() {
		t.Errorf("link defaults drifted: %+v", cfg.Link)
	}
	if cfg.PatternMatcherConfig() != detection.DefaultPatternConfig() {
		t.Errorf("pattern defaults drifted: %+v", cfg.Pattern)
	}
	if cfg.DetectionSettings() != detection.DefaultSettings() {
		t.Errorf("DetectionSettings() = %+v, want %+v", cfg.DetectionSettings(), detection.DefaultSettings())
	}

	// Database defaults
	if cfg.Database.Driver != "duckdb" {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if !cfg.Database.Breaker.Enabled {
		t.Error("Database.Breaker.Enabled should be true by default")
	}

	// Server defaults
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8475 {
		t.Errorf("Server = %s:%d, want 127.0.0.1:8475", cfg.Server.Host, cfg.Server.Port)
	}

	// Alerting defaults
	if cfg.Alerting.Topic != "detections" {
		t.Errorf("Alerting.Topic = %q, want detections", cfg.Alerting.Topic)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Detection
		{"DETECTION_INTERVAL", "detection.interval"},
		{"DETECTION_ALERT_THRESHOLD", "detection.alert_threshold"},
		{"DETECTION_MIN_DISTANCE_METERS", "detection.min_distance_meters"},

		// Database
		{"DB_DRIVER", "database.driver"},
		{"DB_PATH", "database.path"},
		{"DUCKDB_PATH", "database.path"},
		{"DB_BREAKER_TIMEOUT", "database.breaker.timeout"},

		// Server
		{"HTTP_PORT", "server.port"},
		{"RATE_LIMIT_REQUESTS", "server.rate_limit_requests"},

		// Alerting
		{"ALERTING_COOLDOWN", "alerting.cooldown"},

		// Logging
		{"LOG_LEVEL", "logging.level"},
		{"log_format", "logging.format"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := envTransformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("trackguard.yaml exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if err := os.WriteFile(filepath.Join(tmpDir, "trackguard.yaml"), []byte("logging: {}"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		t.Cleanup(func() { _ = os.Remove(filepath.Join(tmpDir, "trackguard.yaml")) })

		if result := findConfigFile(); result != "trackguard.yaml" {
			t.Errorf("findConfigFile() = %q, want trackguard.yaml", result)
		}
	})

	t.Run("CONFIG_PATH env var takes precedence", func(t *testing.T) {
		customPath := writeConfigFile(t, "logging: {}")
		t.Setenv(ConfigPathEnvVar, customPath)

		if result := findConfigFile(); result != customPath {
			t.Errorf("findConfigFile() = %q, want %q", result, customPath)
		}
	})

	t.Run("CONFIG_PATH env var with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})
}

func TestLoadEnvVars(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DETECTION_INTERVAL", "5m")
	t.Setenv("DETECTION_MIN_THREAT_SCORE", "0.65")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Detection.Interval != 5*time.Minute {
		t.Errorf("Detection.Interval = %v, want 5m", cfg.Detection.Interval)
	}
	if cfg.Detection.MinThreatScore != 0.65 {
		t.Errorf("Detection.MinThreatScore = %v, want 0.65", cfg.Detection.MinThreatScore)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != ":memory:" {
		t.Errorf("Database = %s %s, want sqlite :memory:", cfg.Database.Driver, cfg.Database.Path)
	}

	// Verify defaults are still applied for unset values
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1 (default)", cfg.Server.Host)
	}
	if cfg.Detection.AlertThreshold != 3 {
		t.Errorf("Detection.AlertThreshold = %d, want 3 (default)", cfg.Detection.AlertThreshold)
	}
}

func TestLoadConfigFile(t *testing.T) {
	configPath := writeConfigFile(t, `
detection:
  interval: 30m
  alert_threshold: 4
  min_distance_meters: 250
movement:
  sync_weight: 0.25
  route_weight: 0.25
  dwell_weight: 0.25
  time_pattern_weight: 0.25
server:
  port: 8888
logging:
  level: warn
  format: console
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Detection.Interval != 30*time.Minute {
		t.Errorf("Detection.Interval = %v, want 30m", cfg.Detection.Interval)
	}
	if cfg.Detection.AlertThreshold != 4 {
		t.Errorf("Detection.AlertThreshold = %d, want 4", cfg.Detection.AlertThreshold)
	}
	if cfg.Detection.MinDetectionDistanceMeters != 250 {
		t.Errorf("Detection.MinDetectionDistanceMeters = %v, want 250", cfg.Detection.MinDetectionDistanceMeters)
	}
	if cfg.Movement.DwellWeight != 0.25 {
		t.Errorf("Movement.DwellWeight = %v, want 0.25", cfg.Movement.DwellWeight)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want 8888", cfg.Server.Port)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}

	// Untouched sections keep their defaults
	if cfg.Movement.SyncWindow != 10*time.Minute {
		t.Errorf("Movement.SyncWindow = %v, want 10m (default)", cfg.Movement.SyncWindow)
	}
	if cfg.Database.Path != "/data/trackguard.duckdb" {
		t.Errorf("Database.Path = %q, want /data/trackguard.duckdb (default)", cfg.Database.Path)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	configPath := writeConfigFile(t, `
server:
  port: 8888
logging:
  level: warn
`)
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DUCKDB_PATH", "/custom/db.duckdb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error (env override)", cfg.Logging.Level)
	}
	if cfg.Database.Path != "/custom/db.duckdb" {
		t.Errorf("Database.Path = %q, want /custom/db.duckdb (env override)", cfg.Database.Path)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "alert threshold below two",
			yaml:   "detection:\n  alert_threshold: 1\n",
			errMsg: "detection.alert_threshold",
		},
		{
			name:   "threat score above one",
			yaml:   "detection:\n  min_threat_score: 1.5\n",
			errMsg: "detection.min_threat_score",
		},
		{
			name:   "unknown driver",
			yaml:   "database:\n  driver: postgres\n",
			errMsg: "database.driver",
		},
		{
			name:   "weights do not sum to one",
			yaml:   "movement:\n  sync_weight: 0.9\n",
			errMsg: "movement weights must sum to 1",
		},
		{
			name:   "cv cutoffs reversed",
			yaml:   "pattern:\n  very_regular_cv: 0.6\n",
			errMsg: "very_regular_cv",
		},
		{
			name:   "empty database path",
			yaml:   "database:\n  path: \"\"\n",
			errMsg: "DB_PATH is required",
		},
		{
			name:   "bad log format",
			yaml:   "logging:\n  format: xml\n",
			errMsg: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfigFile(t, tt.yaml))
			if err == nil {
				t.Fatal("LoadFile() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile() expected error for missing file")
	}
}
