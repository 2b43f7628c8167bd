// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/detection"
)

// The Seed helpers load snapshot rows. Detection never calls them; they
// exist for tests, demos and import tooling that owns the scan pipeline.

// SeedDevice inserts one device.
func (s *SQLStore) SeedDevice(ctx context.Context, d detection.ScannedDevice) error {
	uuids := "[]"
	if len(d.ServiceUUIDs) > 0 {
		b, err := json.Marshal(d.ServiceUUIDs)
		if err != nil {
			return fmt.Errorf("failed to encode service UUIDs: %w", err)
		}
		uuids = string(b)
	}

	query := `INSERT INTO devices (
			id, address, name, payload_fingerprint, linked_device_id,
			link_strength, link_reason, shadow_key, device_type, is_tracker,
			highest_rssi, first_seen, last_seen, detection_count,
			manufacturer_id, apple_continuity_type, find_my_separated,
			beacon_type, tx_power_level, service_uuids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Address, d.Name, d.PayloadFingerprint, nullInt64(d.LinkedDeviceID),
		string(d.LinkStrength), d.LinkReason, d.ShadowKey, string(d.DeviceType), boolToInt(d.IsTracker),
		d.HighestRSSI, toMillis(d.FirstSeen), toMillis(d.LastSeen), d.DetectionCount,
		d.ManufacturerID, nullInt(d.AppleContinuityType), boolToInt(d.FindMySeparated),
		d.BeaconType, nullInt(d.TxPowerLevel), uuids,
	)
	if err != nil {
		return fmt.Errorf("failed to insert device %d: %w", d.ID, err)
	}
	return nil
}

// SeedLocation inserts one place.
func (s *SQLStore) SeedLocation(ctx context.Context, l detection.Location) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (id, latitude, longitude, accuracy, observed_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.Latitude, l.Longitude, l.Accuracy, toMillis(l.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert location %d: %w", l.ID, err)
	}
	return nil
}

// SeedSighting inserts one device sighting.
func (s *SQLStore) SeedSighting(ctx context.Context, r detection.DeviceLocationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_locations (id, device_id, location_id, observed_at, rssi, location_changed, scan_trigger)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, r.LocationID, toMillis(r.Timestamp), r.RSSI, boolToInt(r.LocationChanged), string(r.ScanTrigger))
	if err != nil {
		return fmt.Errorf("failed to insert sighting %d: %w", r.ID, err)
	}
	return nil
}

// SeedPath inserts one breadcrumb of the carrier's trail.
func (s *SQLStore) SeedPath(ctx context.Context, p detection.UserPath) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_path (id, location_id, observed_at) VALUES (?, ?, ?)`,
		p.ID, p.LocationID, toMillis(p.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert breadcrumb %d: %w", p.ID, err)
	}
	return nil
}

// SeedWhitelist marks a device as safe.
func (s *SQLStore) SeedWhitelist(ctx context.Context, deviceID int64, note string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO whitelist (device_id, note, created_at) VALUES (?, ?, ?)`,
		deviceID, note, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to whitelist device %d: %w", deviceID, err)
	}
	return nil
}

// nullInt64 returns nil for an absent value so the column stays NULL.
func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
