// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
)

// Common SQL query fragments to reduce duplication
const (
	deviceColumns = `d.id, d.address, d.name, d.payload_fingerprint, d.linked_device_id,
		d.link_strength, d.link_reason, d.shadow_key, d.device_type, d.is_tracker,
		d.highest_rssi, d.first_seen, d.last_seen, d.detection_count,
		d.manufacturer_id, d.apple_continuity_type, d.find_my_separated,
		d.beacon_type, d.tx_power_level, d.service_uuids`

	locationColumns = `l.id, l.latitude, l.longitude, l.accuracy, l.observed_at`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (detection.ScannedDevice, error) {
	var (
		d            detection.ScannedDevice
		linked       sql.NullInt64
		continuity   sql.NullInt64
		txPower      sql.NullInt64
		linkStrength string
		deviceType   string
		isTracker    int64
		findMy       int64
		firstSeen    int64
		lastSeen     int64
		serviceUUIDs string
	)

	if err := row.Scan(
		&d.ID, &d.Address, &d.Name, &d.PayloadFingerprint, &linked,
		&linkStrength, &d.LinkReason, &d.ShadowKey, &deviceType, &isTracker,
		&d.HighestRSSI, &firstSeen, &lastSeen, &d.DetectionCount,
		&d.ManufacturerID, &continuity, &findMy,
		&d.BeaconType, &txPower, &serviceUUIDs,
	); err != nil {
		return d, err
	}

	// Handle nullable fields
	if linked.Valid {
		id := linked.Int64
		d.LinkedDeviceID = &id
	}
	if continuity.Valid {
		v := int(continuity.Int64)
		d.AppleContinuityType = &v
	}
	if txPower.Valid {
		v := int(txPower.Int64)
		d.TxPowerLevel = &v
	}

	d.LinkStrength = detection.LinkStrength(linkStrength)
	d.DeviceType = detection.DeviceType(deviceType)
	d.IsTracker = isTracker != 0
	d.FindMySeparated = findMy != 0
	d.FirstSeen = fromMillis(firstSeen)
	d.LastSeen = fromMillis(lastSeen)

	if serviceUUIDs != "" && serviceUUIDs != "[]" {
		if err := json.Unmarshal([]byte(serviceUUIDs), &d.ServiceUUIDs); err != nil {
			// A corrupt list only weakens the shadow key, it does not hide the device.
			logging.Warn().Err(err).Int64("device_id", d.ID).Msg("Ignoring malformed service UUID list")
			d.ServiceUUIDs = nil
		}
	}

	return d, nil
}

func scanDevices(rows *sql.Rows) ([]detection.ScannedDevice, error) {
	var devices []detection.ScannedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func scanLocations(rows *sql.Rows) ([]detection.Location, error) {
	var locations []detection.Location
	for rows.Next() {
		var (
			l  detection.Location
			ts int64
		)
		if err := rows.Scan(&l.ID, &l.Latitude, &l.Longitude, &l.Accuracy, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		l.Timestamp = fromMillis(ts)
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// queryDevices runs a device query under the given operation name.
func (s *SQLStore) queryDevices(ctx context.Context, operation, query string, args ...interface{}) (devices []detection.ScannedDevice, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", operation, err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// queryLocations runs a location query under the given operation name.
func (s *SQLStore) queryLocations(ctx context.Context, operation, query string, args ...interface{}) (locations []detection.Location, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", operation, err)
	}
	defer rows.Close()

	return scanLocations(rows)
}

// CandidateDevices returns devices seen at no fewer than minLocations distinct places.
func (s *SQLStore) CandidateDevices(ctx context.Context, minLocations int) ([]detection.ScannedDevice, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices d
		WHERE d.id IN (
			SELECT device_id FROM device_locations
			GROUP BY device_id
			HAVING COUNT(DISTINCT location_id) >= ?
		)
		ORDER BY d.id`
	return s.queryDevices(ctx, "candidate_devices", query, minLocations)
}

// Device returns one device by id, or nil when it does not exist.
func (s *SQLStore) Device(ctx context.Context, id int64) (device *detection.ScannedDevice, err error) {
	start := time.Now()
	defer func() { observe("device", start, err) }()

	query := `SELECT ` + deviceColumns + ` FROM devices d WHERE d.id = ?`
	d, err := scanDevice(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &d, nil
}

// DevicesLinkedTo returns devices whose linked_device_id is primaryID.
func (s *SQLStore) DevicesLinkedTo(ctx context.Context, primaryID int64) ([]detection.ScannedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices d WHERE d.linked_device_id = ? ORDER BY d.id`
	return s.queryDevices(ctx, "devices_linked_to", query, primaryID)
}

// DevicesByFingerprint returns devices sharing a payload fingerprint. An
// empty fingerprint matches nothing.
func (s *SQLStore) DevicesByFingerprint(ctx context.Context, fingerprint string) ([]detection.ScannedDevice, error) {
	if fingerprint == "" {
		return nil, nil
	}
	query := `SELECT ` + deviceColumns + ` FROM devices d WHERE d.payload_fingerprint = ? ORDER BY d.id`
	return s.queryDevices(ctx, "devices_by_fingerprint", query, fingerprint)
}

// DevicesByShadowKey returns every device carrying the shadow key.
func (s *SQLStore) DevicesByShadowKey(ctx context.Context, shadowKey string) ([]detection.ScannedDevice, error) {
	if shadowKey == "" {
		return nil, nil
	}
	query := `SELECT ` + deviceColumns + ` FROM devices d WHERE d.shadow_key = ? ORDER BY d.id`
	return s.queryDevices(ctx, "devices_by_shadow_key", query, shadowKey)
}

// WhitelistedDeviceIDs returns every device the user marked as safe.
func (s *SQLStore) WhitelistedDeviceIDs(ctx context.Context) (ids []int64, err error) {
	start := time.Now()
	defer func() { observe("whitelisted_device_ids", start, err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT device_id FROM whitelist ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LocationsForDevices returns the distinct places where any of the devices
// was seen, ordered by place timestamp.
func (s *SQLStore) LocationsForDevices(ctx context.Context, deviceIDs []int64) ([]detection.Location, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT ` + locationColumns + `
		FROM locations l
		JOIN device_locations dl ON dl.location_id = l.id
		WHERE dl.device_id IN (` + buildPlaceholders(len(deviceIDs)) + `)
		ORDER BY l.observed_at, l.id`
	return s.queryLocations(ctx, "locations_for_devices", query, int64Args(deviceIDs)...)
}

// RecordsForDevices returns every sighting of the devices, ordered by time.
func (s *SQLStore) RecordsForDevices(ctx context.Context, deviceIDs []int64) (records []detection.DeviceLocationRecord, err error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { observe("records_for_devices", start, err) }()

	query := `SELECT id, device_id, location_id, observed_at, rssi, location_changed, scan_trigger
		FROM device_locations
		WHERE device_id IN (` + buildPlaceholders(len(deviceIDs)) + `)
		ORDER BY observed_at, id`

	rows, err := s.db.QueryContext(ctx, query, int64Args(deviceIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       detection.DeviceLocationRecord
			ts      int64
			changed int64
			trigger string
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.LocationID, &ts, &r.RSSI, &changed, &trigger); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		r.Timestamp = fromMillis(ts)
		r.LocationChanged = changed != 0
		r.ScanTrigger = detection.ScanTrigger(trigger)
		records = append(records, r)
	}
	return records, rows.Err()
}

// AllLocations returns every place the carrier visited.
func (s *SQLStore) AllLocations(ctx context.Context) ([]detection.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations l ORDER BY l.observed_at, l.id`
	return s.queryLocations(ctx, "all_locations", query)
}

// LocationsByIDs returns the places with the given ids. Unknown ids are skipped.
func (s *SQLStore) LocationsByIDs(ctx context.Context, ids []int64) ([]detection.Location, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + locationColumns + `
		FROM locations l
		WHERE l.id IN (` + buildPlaceholders(len(ids)) + `)
		ORDER BY l.observed_at, l.id`
	return s.queryLocations(ctx, "locations_by_ids", query, int64Args(ids)...)
}

// PathSince returns breadcrumbs at or after since, ordered by time.
func (s *SQLStore) PathSince(ctx context.Context, since time.Time) (path []detection.UserPath, err error) {
	start := time.Now()
	defer func() { observe("path_since", start, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location_id, observed_at FROM user_path WHERE observed_at >= ? ORDER BY observed_at, id`,
		toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query user path: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p  detection.UserPath
			ts int64
		)
		if err := rows.Scan(&p.ID, &p.LocationID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan breadcrumb: %w", err)
		}
		p.Timestamp = fromMillis(ts)
		path = append(path, p)
	}
	return path, rows.Err()
}

// ShadowKeysWithMinLocations returns shadow keys seen at no fewer than
// minLocations distinct places.
func (s *SQLStore) ShadowKeysWithMinLocations(ctx context.Context, minLocations int) (keys []string, err error) {
	start := time.Now()
	defer func() { observe("shadow_keys", start, err) }()

	query := `SELECT d.shadow_key
		FROM devices d
		JOIN device_locations dl ON dl.device_id = d.id
		WHERE d.shadow_key <> ''
		GROUP BY d.shadow_key
		HAVING COUNT(DISTINCT dl.location_id) >= ?
		ORDER BY d.shadow_key`

	rows, err := s.db.QueryContext(ctx, query, minLocations)
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan shadow key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeviceIDsByLocationForShadowKey maps each place to the distinct devices
// with the shadow key seen there.
func (s *SQLStore) DeviceIDsByLocationForShadowKey(ctx context.Context, shadowKey string) (byLocation map[int64][]int64, err error) {
	start := time.Now()
	defer func() { observe("shadow_key_locations", start, err) }()

	query := `SELECT DISTINCT dl.location_id, dl.device_id
		FROM device_locations dl
		JOIN devices d ON d.id = dl.device_id
		WHERE d.shadow_key = ?
		ORDER BY dl.location_id, dl.device_id`

	rows, err := s.db.QueryContext(ctx, query, shadowKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow key locations: %w", err)
	}
	defer rows.Close()

	byLocation = make(map[int64][]int64)
	for rows.Next() {
		var locationID, deviceID int64
		if err := rows.Scan(&locationID, &deviceID); err != nil {
			return nil, fmt.Errorf("failed to scan shadow key location: %w", err)
		}
		byLocation[locationID] = append(byLocation[locationID], deviceID)
	}
	return byLocation, rows.Err()
}

// buildPlaceholders creates a comma-separated string of ? placeholders.
func buildPlaceholders(count int) string {
	if count == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// toMillis maps the zero time to 0 so unknown timestamps round-trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
