// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/trackguard/internal/detection"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"trackguard.yaml",
	"trackguard.yml",
	"/etc/trackguard/config.yaml",
	"/etc/trackguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied. The detection
// defaults come from the detection package so the two never drift apart.
func defaultConfig() *Config {
	settings := detection.DefaultSettings()
	pattern := detection.DefaultPatternConfig()
	rotation := detection.DefaultRotationConfig()
	movement := detection.DefaultMovementConfig()
	link := detection.DefaultLinkConfig()

	return &Config{
		Detection: DetectionConfig{
			Enabled:                    true,
			Interval:                   15 * time.Minute,
			RunTimeout:                 2 * time.Minute,
			Workers:                    0, // 0 = use runtime.NumCPU()
			AlertThreshold:             settings.AlertThreshold,
			MinDetectionDistanceMeters: settings.MinDetectionDistanceMeters,
			MinThreatScore:             settings.MinThreatScore,
			PathLookback:               settings.PathLookback,
			TriggerRate:                0.2,
			TriggerBurst:               1,
		},
		Pattern: PatternConfig{
			ClusterRadiusMeters:     pattern.ClusterRadiusMeters,
			TemporalSeparation:      pattern.TemporalSeparation,
			MinClusters:             pattern.MinClusters,
			VeryRegularCV:           pattern.VeryRegularCV,
			RegularCV:               pattern.RegularCV,
			SimilarityDistanceScale: pattern.SimilarityDistanceScale,
			SimilarityTimeScale:     pattern.SimilarityTimeScale,
			DiversityDistanceScale:  pattern.DiversityDistanceScale,
		},
		Rotation: RotationConfig(rotation),
		Movement: MovementConfig(movement),
		Shadow: ShadowConfig{
			Enabled:  true,
			MinScore: settings.MinShadowScore,
		},
		Link: LinkConfig(link),
		Database: DatabaseConfig{
			Driver:       "duckdb",
			Path:         "/data/trackguard.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			MaxOpenConns: 4,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8475,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Alerting: AlertingConfig{
			Enabled:      true,
			Topic:        "detections",
			Cooldown:     6 * time.Hour,
			CooldownPath: "",
			MinScore:     0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. The result is validated before it
// is returned.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns the file Load reads, or "" when there is none.
func FindConfigFile() string {
	return findConfigFile()
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	// Detection mappings
	"detection_enabled":             "detection.enabled",
	"detection_interval":            "detection.interval",
	"detection_run_timeout":         "detection.run_timeout",
	"detection_workers":             "detection.workers",
	"detection_alert_threshold":     "detection.alert_threshold",
	"detection_min_distance_meters": "detection.min_distance_meters",
	"detection_min_threat_score":    "detection.min_threat_score",
	"detection_path_lookback":       "detection.path_lookback",
	"detection_trigger_rate":        "detection.trigger_rate",
	"detection_trigger_burst":       "detection.trigger_burst",

	// Pattern mappings
	"pattern_cluster_radius_meters": "pattern.cluster_radius_meters",
	"pattern_temporal_separation":   "pattern.temporal_separation",
	"pattern_min_clusters":          "pattern.min_clusters",

	// Rotation mappings
	"rotation_handoff_tolerance": "rotation.handoff_tolerance",
	"rotation_expected_period":   "rotation.expected_period",
	"rotation_regular_cv":        "rotation.regular_cv",

	// Movement mappings
	"movement_sync_window": "movement.sync_window",

	// Shadow mappings
	"shadow_enabled":   "shadow.enabled",
	"shadow_min_score": "shadow.min_score",

	// Database mappings
	"db_driver":                "database.driver",
	"db_path":                  "database.path",
	"duckdb_path":              "database.path",
	"duckdb_max_memory":        "database.max_memory",
	"duckdb_threads":           "database.threads",
	"db_max_open_conns":        "database.max_open_conns",
	"seed_demo_data":           "database.seed_demo_data",
	"db_breaker_enabled":       "database.breaker.enabled",
	"db_breaker_timeout":       "database.breaker.timeout",
	"db_breaker_failure_ratio": "database.breaker.failure_ratio",

	// Server mappings
	"http_enabled":          "server.enabled",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",

	// Alerting mappings
	"alerting_enabled":       "alerting.enabled",
	"alerting_topic":         "alerting.topic",
	"alerting_cooldown":      "alerting.cooldown",
	"alerting_cooldown_path": "alerting.cooldown_path",
	"alerting_min_score":     "alerting.min_score",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DETECTION_INTERVAL -> detection.interval
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
//
// Unmapped variables return "" so koanf skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes. The
// caller is responsible for reloading and swapping configuration safely.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
