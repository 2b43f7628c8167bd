// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned (wrapped) when a store call was rejected
// without reaching the database, for example by an open circuit breaker.
var ErrStoreUnavailable = errors.New("detection store unavailable")

// DeviceStore reads scanned devices. Lookups of a missing device return
// (nil, nil).
type DeviceStore interface {
	// CandidateDevices returns devices seen at no fewer than minLocations
	// distinct places.
	CandidateDevices(ctx context.Context, minLocations int) ([]ScannedDevice, error)

	// Device returns one device by id.
	Device(ctx context.Context, id int64) (*ScannedDevice, error)

	// DevicesLinkedTo returns devices whose LinkedDeviceID is primaryID.
	DevicesLinkedTo(ctx context.Context, primaryID int64) ([]ScannedDevice, error)

	// DevicesByFingerprint returns devices sharing a payload fingerprint.
	DevicesByFingerprint(ctx context.Context, fingerprint string) ([]ScannedDevice, error)

	// WhitelistedDeviceIDs returns every device the user marked as safe.
	WhitelistedDeviceIDs(ctx context.Context) ([]int64, error)
}

// LocationStore reads places and sightings.
type LocationStore interface {
	// LocationsForDevices returns the distinct places where any of the
	// devices was seen, ordered by place timestamp.
	LocationsForDevices(ctx context.Context, deviceIDs []int64) ([]Location, error)

	// RecordsForDevices returns every sighting of the devices, ordered by time.
	RecordsForDevices(ctx context.Context, deviceIDs []int64) ([]DeviceLocationRecord, error)

	// AllLocations returns every place the carrier visited.
	AllLocations(ctx context.Context) ([]Location, error)

	// LocationsByIDs returns the places with the given ids. Unknown ids are skipped.
	LocationsByIDs(ctx context.Context, ids []int64) ([]Location, error)
}

// PathStore reads the carrier's breadcrumb trail.
type PathStore interface {
	// PathSince returns breadcrumbs at or after since, ordered by time.
	PathSince(ctx context.Context, since time.Time) ([]UserPath, error)
}

// ShadowStore reads shadow-key aggregates.
type ShadowStore interface {
	// ShadowKeysWithMinLocations returns shadow keys seen at no fewer than
	// minLocations distinct places.
	ShadowKeysWithMinLocations(ctx context.Context, minLocations int) ([]string, error)

	// DeviceIDsByLocationForShadowKey maps each place to the distinct
	// devices with the shadow key seen there.
	DeviceIDsByLocationForShadowKey(ctx context.Context, shadowKey string) (map[int64][]int64, error)

	// DevicesByShadowKey returns every device carrying the shadow key.
	DevicesByShadowKey(ctx context.Context, shadowKey string) ([]ScannedDevice, error)
}

// Store is the full read surface the engine consumes.
type Store interface {
	DeviceStore
	LocationStore
	PathStore
	ShadowStore
}

// Settings are the user-tunable thresholds read at the start of each run.
type Settings struct {
	// AlertThreshold is the minimum number of distinct places.
	AlertThreshold int `json:"alert_threshold"`

	// MinDetectionDistanceMeters is the smallest max pairwise distance that
	// still counts as following.
	MinDetectionDistanceMeters float64 `json:"min_detection_distance_meters"`

	// MinThreatScore drops device results scoring below it.
	MinThreatScore float64 `json:"min_threat_score"`

	// MinShadowScore drops shadow results whose combined score is below it.
	MinShadowScore float64 `json:"min_shadow_score"`

	// PathLookback bounds how much carrier history feeds movement correlation.
	PathLookback time.Duration `json:"path_lookback"`
}

// DefaultSettings returns the stock thresholds.
func DefaultSettings() Settings {
	return Settings{
		AlertThreshold:             3,
		MinDetectionDistanceMeters: 100,
		MinThreatScore:             0.5,
		MinShadowScore:             0.5,
		PathLookback:               7 * 24 * time.Hour,
	}
}

// SettingsProvider supplies Settings.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings is a SettingsProvider that always returns the same values.
type StaticSettings Settings

// Settings implements SettingsProvider.
func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}
