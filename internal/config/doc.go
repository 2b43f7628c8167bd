// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package config provides centralized configuration management for Trackguard.

Configuration is loaded with Koanf v2 from three layers, each overriding the
one before it:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (CONFIG_PATH, trackguard.yaml, /etc/trackguard/config.yaml)
 3. Environment variables listed in envMappings

Field rules are declared as validate tags and checked through the shared
validation package; Validate adds the cross-field checks.

# Configuration Structure

  - DetectionConfig: schedule, worker count and the per-run thresholds
  - PatternConfig, RotationConfig, MovementConfig, LinkConfig: scorer tuning
  - ShadowConfig: shadow-profile analysis
  - DatabaseConfig: store driver, path and circuit breaker
  - ServerConfig: HTTP API listener and rate limit
  - AlertingConfig: detection event topic and alert cooldown
  - LoggingConfig: zerolog level and output format

# Environment Variables

Detection:
  - DETECTION_ENABLED: Run scheduled detection (default: true)
  - DETECTION_INTERVAL: Time between scheduled runs (default: 15m)
  - DETECTION_ALERT_THRESHOLD: Minimum distinct places (default: 3)
  - DETECTION_MIN_DISTANCE_METERS: Minimum spread of those places (default: 100)
  - DETECTION_MIN_THREAT_SCORE: Minimum reported score (default: 0.5)

Database:
  - DB_DRIVER: duckdb or sqlite (default: duckdb)
  - DB_PATH / DUCKDB_PATH: Database file, or :memory:

HTTP Server:
  - HTTP_HOST, HTTP_PORT: Listen address (default: 127.0.0.1:8475)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: Per-client API limit

Logging:
  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json or console (default: json)

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
	algo := detection.NewAlgorithm(store, config.NewSettingsProvider(cfg), nil, nil)

# Thread Safety

Config is read-only after Load returns. SettingsProvider guards its
thresholds with a RWMutex and may be updated while detection runs.
*/
package config
