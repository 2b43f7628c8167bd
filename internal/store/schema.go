// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
schema.go - Snapshot Schema

The schema is written in the subset of SQL that DuckDB and SQLite share, so
one set of statements and queries serves both drivers.

Tables:
  - devices: one row per radio identity (MAC address)
  - locations: deduplicated places the carrier visited
  - device_locations: sightings of a device at a place
  - user_path: the carrier's breadcrumb trail
  - whitelist: devices the user marked as safe

Conventions:
  - Timestamps are BIGINT Unix milliseconds; 0 means unknown.
  - Booleans are INTEGER 0/1.
  - Optional text is NOT NULL DEFAULT ''; optional numbers are NULL.
  - service_uuids is a JSON array of strings.
*/

package store

import (
	"context"
	"fmt"

	"github.com/tomtom215/trackguard/internal/logging"
)

// schemaQueries returns the table and index creation statements.
func schemaQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id BIGINT PRIMARY KEY,
			address TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			payload_fingerprint TEXT NOT NULL DEFAULT '',
			linked_device_id BIGINT,
			link_strength TEXT NOT NULL DEFAULT '',
			link_reason TEXT NOT NULL DEFAULT '',
			shadow_key TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT '',
			is_tracker INTEGER NOT NULL DEFAULT 0,
			highest_rssi INTEGER NOT NULL DEFAULT 0,
			first_seen BIGINT NOT NULL DEFAULT 0,
			last_seen BIGINT NOT NULL DEFAULT 0,
			detection_count INTEGER NOT NULL DEFAULT 0,
			manufacturer_id INTEGER NOT NULL DEFAULT 0,
			apple_continuity_type INTEGER,
			find_my_separated INTEGER NOT NULL DEFAULT 0,
			beacon_type TEXT NOT NULL DEFAULT '',
			tx_power_level INTEGER,
			service_uuids TEXT NOT NULL DEFAULT '[]'
		)`,

		`CREATE TABLE IF NOT EXISTS locations (
			id BIGINT PRIMARY KEY,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			accuracy DOUBLE NOT NULL DEFAULT 0,
			observed_at BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS device_locations (
			id BIGINT PRIMARY KEY,
			device_id BIGINT NOT NULL,
			location_id BIGINT NOT NULL,
			observed_at BIGINT NOT NULL DEFAULT 0,
			rssi INTEGER NOT NULL DEFAULT 0,
			location_changed INTEGER NOT NULL DEFAULT 0,
			scan_trigger TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS user_path (
			id BIGINT PRIMARY KEY,
			location_id BIGINT NOT NULL,
			observed_at BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS whitelist (
			device_id BIGINT PRIMARY KEY,
			note TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT 0
		)`,

		// Indexes for the detection read paths
		`CREATE INDEX IF NOT EXISTS idx_devices_linked ON devices(linked_device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_fingerprint ON devices(payload_fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_shadow_key ON devices(shadow_key)`,
		`CREATE INDEX IF NOT EXISTS idx_device_locations_device ON device_locations(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_device_locations_location ON device_locations(location_id)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_timestamp ON locations(observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_path_timestamp ON user_path(observed_at)`,
	}
}

// InitSchema creates the snapshot tables if they don't exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, query := range schemaQueries() {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	if s.driver == DriverDuckDB {
		// Flush the WAL so a restart does not replay schema changes.
		if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
		}
	}

	return nil
}
