// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Command trackguard runs the tracker detection engine as a service.

It reads a snapshot store written by the scan pipeline, runs detection on a
schedule, publishes alerts for devices that appear to follow the carrier,
and serves the results over a local HTTP API.

# Startup

 1. Configuration: defaults, then trackguard.yaml, then environment (koanf v2)
 2. Logging: zerolog, level and format from LOG_LEVEL and LOG_FORMAT
 3. Snapshot store: DuckDB or SQLite, wrapped in a circuit breaker
 4. Detection engine: pattern, movement, rotation and shadow components
 5. Alerting: in-process bus, Badger cooldown, log sink
 6. Supervisor tree: scheduler, alert consumer, HTTP server

SIGINT and SIGTERM cancel the tree; the HTTP server drains for
HTTP_SHUTDOWN_TIMEOUT and in-flight runs are cancelled.

Changes to the config file are picked up for detection thresholds and the
log level without a restart.

# Example

	export DB_DRIVER=sqlite
	export DB_PATH=/var/lib/trackguard/snapshot.db
	export DETECTION_INTERVAL=10m
	export LOG_FORMAT=console
	./trackguard

Try it without a scanner:

	DB_DRIVER=sqlite DB_PATH=:memory: SEED_DEMO_DATA=true ./trackguard
	curl -s localhost:8475/api/v1/detections
*/
package main
