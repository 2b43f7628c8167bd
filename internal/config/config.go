// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package config

import (
	"time"

	"github.com/tomtom215/trackguard/internal/detection"
)

// Config is the complete application configuration.
//
// Load it with Load, which layers defaults, an optional YAML file and
// environment variables, then validates the result.
type Config struct {
	Detection DetectionConfig `koanf:"detection"`
	Pattern   PatternConfig   `koanf:"pattern"`
	Rotation  RotationConfig  `koanf:"rotation"`
	Movement  MovementConfig  `koanf:"movement"`
	Shadow    ShadowConfig    `koanf:"shadow"`
	Link      LinkConfig      `koanf:"link"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Alerting  AlertingConfig  `koanf:"alerting"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DetectionConfig holds the run schedule and the user-tunable thresholds.
//
// Environment Variables:
//   - DETECTION_ENABLED: Run the periodic scheduler (default: true)
//   - DETECTION_INTERVAL: Time between scheduled runs (default: 15m)
//   - DETECTION_RUN_TIMEOUT: Upper bound for one run (default: 2m)
//   - DETECTION_WORKERS: Concurrent device evaluations, 0 = NumCPU (default: 0)
//   - DETECTION_ALERT_THRESHOLD: Minimum distinct places (default: 3)
//   - DETECTION_MIN_DISTANCE_METERS: Minimum max pairwise distance (default: 100)
//   - DETECTION_MIN_THREAT_SCORE: Minimum device score (default: 0.5)
//   - DETECTION_PATH_LOOKBACK: Carrier history used for movement (default: 168h)
//   - DETECTION_TRIGGER_RATE: On-demand runs allowed per second (default: 0.2)
//   - DETECTION_TRIGGER_BURST: On-demand burst size (default: 1)
type DetectionConfig struct {
	Enabled                    bool          `koanf:"enabled"`
	Interval                   time.Duration `koanf:"interval" validate:"gte=1s"`
	RunTimeout                 time.Duration `koanf:"run_timeout" validate:"gte=1s"`
	Workers                    int           `koanf:"workers" validate:"min=0,max=1024"`
	AlertThreshold             int           `koanf:"alert_threshold" validate:"min=2,max=1000"`
	MinDetectionDistanceMeters float64       `koanf:"min_distance_meters" validate:"gte=0"`
	MinThreatScore             float64       `koanf:"min_threat_score" validate:"unit"`
	PathLookback               time.Duration `koanf:"path_lookback" validate:"gte=0"`
	TriggerRate                float64       `koanf:"trigger_rate" validate:"gt=0"`
	TriggerBurst               int           `koanf:"trigger_burst" validate:"min=1"`
}

// PatternConfig mirrors detection.PatternConfig.
type PatternConfig struct {
	ClusterRadiusMeters     float64       `koanf:"cluster_radius_meters" validate:"gt=0"`
	TemporalSeparation      time.Duration `koanf:"temporal_separation" validate:"gte=0"`
	MinClusters             int           `koanf:"min_clusters" validate:"min=1"`
	VeryRegularCV           float64       `koanf:"very_regular_cv" validate:"gt=0"`
	RegularCV               float64       `koanf:"regular_cv" validate:"gt=0"`
	SimilarityDistanceScale float64       `koanf:"similarity_distance_scale" validate:"gt=0"`
	SimilarityTimeScale     time.Duration `koanf:"similarity_time_scale" validate:"gt=0"`
	DiversityDistanceScale  float64       `koanf:"diversity_distance_scale" validate:"gt=0"`
}

// RotationConfig mirrors detection.RotationConfig.
type RotationConfig struct {
	HandoffTolerance time.Duration `koanf:"handoff_tolerance" validate:"gte=0"`
	ExpectedPeriod   time.Duration `koanf:"expected_period" validate:"gt=0"`
	RegularCV        float64       `koanf:"regular_cv" validate:"gt=0"`
}

// MovementConfig mirrors detection.MovementConfig. The four weights must
// sum to 1.
type MovementConfig struct {
	SyncWindow        time.Duration `koanf:"sync_window" validate:"gt=0"`
	SyncWeight        float64       `koanf:"sync_weight" validate:"unit"`
	RouteWeight       float64       `koanf:"route_weight" validate:"unit"`
	DwellWeight       float64       `koanf:"dwell_weight" validate:"unit"`
	TimePatternWeight float64       `koanf:"time_pattern_weight" validate:"unit"`
}

// ShadowConfig controls shadow-profile analysis.
type ShadowConfig struct {
	Enabled  bool    `koanf:"enabled"`
	MinScore float64 `koanf:"min_score" validate:"unit"`
}

// LinkConfig mirrors detection.LinkConfig.
type LinkConfig struct {
	MaxGap           time.Duration `koanf:"max_gap" validate:"gt=0"`
	MaxRSSIDelta     float64       `koanf:"max_rssi_delta" validate:"gt=0"`
	MinTemporalScore float64       `koanf:"min_temporal_score" validate:"unit"`
}

// DatabaseConfig holds snapshot store settings.
//
// Environment Variables:
//   - DB_DRIVER: duckdb or sqlite (default: duckdb)
//   - DB_PATH / DUCKDB_PATH: Database file, empty for in-memory
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 1GB)
//   - DUCKDB_THREADS: DuckDB threads, 0 = NumCPU (default: 0)
//   - DB_MAX_OPEN_CONNS: Pool size (default: 4)
//   - DB_BREAKER_ENABLED: Wrap the store in a circuit breaker (default: true)
//   - SEED_DEMO_DATA: Load a demo scenario into an empty store (default: false)
type DatabaseConfig struct {
	Driver       string        `koanf:"driver" validate:"oneof=duckdb sqlite"`
	Path         string        `koanf:"path"`
	MaxMemory    string        `koanf:"max_memory"`
	Threads      int           `koanf:"threads" validate:"min=0"`
	MaxOpenConns int           `koanf:"max_open_conns" validate:"min=1"`
	SeedDemoData bool          `koanf:"seed_demo_data"`
	Breaker      BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests" validate:"min=1"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MinRequests  uint32        `koanf:"min_requests" validate:"min=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_ENABLED: Serve the HTTP API (default: true)
//   - HTTP_HOST: Bind address (default: 127.0.0.1)
//   - HTTP_PORT: Listen port (default: 8475)
//   - RATE_LIMIT_REQUESTS: Requests per window per client (default: 60)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host" validate:"required"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// AlertingConfig controls publication of results on the in-process bus
// and the per-device cooldown applied by the alert consumer.
//
// Environment Variables:
//   - ALERTING_ENABLED: Publish detection results (default: true)
//   - ALERTING_COOLDOWN: Minimum time between alerts for one device (default: 6h)
//   - ALERTING_COOLDOWN_PATH: Badger directory, empty for in-memory
//   - ALERTING_MIN_SCORE: Minimum score that raises an alert (default: 0.6)
type AlertingConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Topic        string        `koanf:"topic" validate:"required"`
	Cooldown     time.Duration `koanf:"cooldown" validate:"gte=0"`
	CooldownPath string        `koanf:"cooldown_path"`
	MinScore     float64       `koanf:"min_score" validate:"unit"`
}

// LoggingConfig configures the global zerolog logger.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DetectionSettings returns the thresholds the engine reads per run.
func (c *Config) DetectionSettings() detection.Settings {
	return detection.Settings{
		AlertThreshold:             c.Detection.AlertThreshold,
		MinDetectionDistanceMeters: c.Detection.MinDetectionDistanceMeters,
		MinThreatScore:             c.Detection.MinThreatScore,
		MinShadowScore:             c.Shadow.MinScore,
		PathLookback:               c.Detection.PathLookback,
	}
}

// PatternMatcherConfig converts the pattern section.
func (c *Config) PatternMatcherConfig() detection.PatternConfig {
	p := c.Pattern
	return detection.PatternConfig{
		ClusterRadiusMeters:     p.ClusterRadiusMeters,
		TemporalSeparation:      p.TemporalSeparation,
		MinClusters:             p.MinClusters,
		VeryRegularCV:           p.VeryRegularCV,
		RegularCV:               p.RegularCV,
		SimilarityDistanceScale: p.SimilarityDistanceScale,
		SimilarityTimeScale:     p.SimilarityTimeScale,
		DiversityDistanceScale:  p.DiversityDistanceScale,
	}
}

// RotationDetectorConfig converts the rotation section.
func (c *Config) RotationDetectorConfig() detection.RotationConfig {
	return detection.RotationConfig(c.Rotation)
}

// MovementCalculatorConfig converts the movement section.
func (c *Config) MovementCalculatorConfig() detection.MovementConfig {
	return detection.MovementConfig(c.Movement)
}

// LinkDeciderConfig converts the link section.
func (c *Config) LinkDeciderConfig() detection.LinkConfig {
	return detection.LinkConfig(c.Link)
}

// AlgorithmConfig converts the worker and shadow settings.
func (c *Config) AlgorithmConfig() detection.AlgorithmConfig {
	cfg := detection.DefaultAlgorithmConfig()
	if c.Detection.Workers > 0 {
		cfg.Workers = c.Detection.Workers
	}
	cfg.DisableShadows = !c.Shadow.Enabled
	return cfg
}
