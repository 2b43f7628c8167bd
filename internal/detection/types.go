// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"time"
)

// DeviceType is the coarse classification of a scanned device.
type DeviceType string

const (
	DeviceTypePhone      DeviceType = "PHONE"
	DeviceTypeTablet     DeviceType = "TABLET"
	DeviceTypeWatch      DeviceType = "WATCH"
	DeviceTypeTracker    DeviceType = "TRACKER"
	DeviceTypeHeadphones DeviceType = "HEADPHONES"
	DeviceTypeSpeaker    DeviceType = "SPEAKER"
	DeviceTypeComputer   DeviceType = "COMPUTER"
	DeviceTypeUnknown    DeviceType = "UNKNOWN"
)

// Known reports whether the type carries information. The empty type and
// UNKNOWN are both uninformative.
func (t DeviceType) Known() bool {
	return t != "" && t != DeviceTypeUnknown
}

// LinkStrength is the confidence of a MAC-to-MAC link.
type LinkStrength string

const (
	LinkStrong LinkStrength = "STRONG"
	LinkWeak   LinkStrength = "WEAK"
)

// ScanTrigger records why a scan cycle ran.
type ScanTrigger string

const (
	ScanTriggerPeriodic       ScanTrigger = "PERIODIC"
	ScanTriggerManual         ScanTrigger = "MANUAL"
	ScanTriggerLocationChange ScanTrigger = "LOCATION_CHANGE"
	ScanTriggerBackground     ScanTrigger = "BACKGROUND"
)

// ScannedDevice is one radio identity (one MAC address) as last upserted by
// the scan pipeline. Optional numeric attributes are pointers: nil means the
// advertisement did not carry the field, which is different from zero.
type ScannedDevice struct {
	ID                 int64        `json:"id"`
	Address            string       `json:"address"`
	Name               string       `json:"name,omitempty"`
	PayloadFingerprint string       `json:"payload_fingerprint,omitempty"`
	LinkedDeviceID     *int64       `json:"linked_device_id,omitempty"`
	LinkStrength       LinkStrength `json:"link_strength,omitempty"`
	LinkReason         string       `json:"link_reason,omitempty"`
	ShadowKey          string       `json:"shadow_key,omitempty"`
	DeviceType         DeviceType   `json:"device_type,omitempty"`
	IsTracker          bool         `json:"is_tracker"`
	HighestRSSI        int          `json:"highest_rssi"`
	FirstSeen          time.Time    `json:"first_seen"`
	LastSeen           time.Time    `json:"last_seen"`
	DetectionCount     int          `json:"detection_count"`

	// Stable advertisement attributes, used for shadow keys.
	ManufacturerID      int      `json:"manufacturer_id,omitempty"`
	AppleContinuityType *int     `json:"apple_continuity_type,omitempty"`
	FindMySeparated     bool     `json:"find_my_separated,omitempty"`
	BeaconType          string   `json:"beacon_type,omitempty"`
	TxPowerLevel        *int     `json:"tx_power_level,omitempty"`
	ServiceUUIDs        []string `json:"service_uuids,omitempty"`
}

// DisplayName returns the advertised name, falling back to the address.
func (d *ScannedDevice) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// Location is a deduplicated place the carrier visited.
type Location struct {
	ID        int64     `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Lat implements geo.Point.
func (l Location) Lat() float64 { return l.Latitude }

// Lon implements geo.Point.
func (l Location) Lon() float64 { return l.Longitude }

// UserPath is one breadcrumb of the carrier's own movement. Several
// breadcrumbs may point at the same Location.
type UserPath struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"location_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceLocationRecord is one sighting of a device at a place.
type DeviceLocationRecord struct {
	ID              int64       `json:"id"`
	DeviceID        int64       `json:"device_id"`
	LocationID      int64       `json:"location_id"`
	Timestamp       time.Time   `json:"timestamp"`
	RSSI            int         `json:"rssi"`
	LocationChanged bool        `json:"location_changed"`
	ScanTrigger     ScanTrigger `json:"scan_trigger"`
}

// LocationCluster is a center place plus every place merged into it.
// Members always starts with Center.
type LocationCluster struct {
	Center  Location
	Members []Location
}

// MeanTimestamp returns the average member timestamp.
func (c LocationCluster) MeanTimestamp() time.Time {
	if len(c.Members) == 0 {
		return c.Center.Timestamp
	}
	base := c.Members[0].Timestamp
	var offset time.Duration
	for _, m := range c.Members[1:] {
		offset += m.Timestamp.Sub(base) / time.Duration(len(c.Members))
	}
	return base.Add(offset)
}

// PatternType classifies the regularity of sighting intervals.
type PatternType string

const (
	PatternVeryRegular      PatternType = "VERY_REGULAR"
	PatternRegular          PatternType = "REGULAR"
	PatternIrregular        PatternType = "IRREGULAR"
	PatternInsufficientData PatternType = "INSUFFICIENT_DATA"
)

// TemporalPattern summarizes the intervals between consecutive sightings.
// Variance is in seconds squared.
type TemporalPattern struct {
	Type                   PatternType   `json:"type"`
	MeanInterval           time.Duration `json:"mean_interval"`
	Variance               float64       `json:"variance"`
	CoefficientOfVariation float64       `json:"coefficient_of_variation"`
	IsRegular              bool          `json:"is_regular"`
}

// RotationResult describes MAC hand-off timing across a set of devices.
type RotationResult struct {
	HandOffCount    int           `json:"hand_off_count"`
	IsRegular       bool          `json:"is_regular"`
	AverageInterval time.Duration `json:"average_interval"`
	Score           float64       `json:"score"`
}

// ShadowAnalysisResult is the verdict on one shadow key.
type ShadowAnalysisResult struct {
	ShadowKey              string          `json:"shadow_key"`
	LocationCount          int             `json:"location_count"`
	DeviceCountsByLocation map[int64]int   `json:"device_counts_by_location"`
	PersistenceScore       float64         `json:"persistence_score"`
	RotationScore          float64         `json:"rotation_score"`
	CombinedScore          float64         `json:"combined_score"`
	RepresentativeDevice   ScannedDevice   `json:"representative_device"`
	DeviceCount            int             `json:"device_count"`
	Rotation               *RotationResult `json:"rotation,omitempty"`
}

// Source identifies which analysis produced a DetectionResult.
type Source string

const (
	SourceDevice Source = "device"
	SourceShadow Source = "shadow"
)

// DetectionResult is one suspicious device, ready for alerting.
type DetectionResult struct {
	ID          string           `json:"id"`
	Device      ScannedDevice    `json:"device"`
	Locations   []Location       `json:"locations"`
	MaxDistance float64          `json:"max_distance_meters"`
	AvgDistance float64          `json:"avg_distance_meters"`
	ThreatScore float64          `json:"threat_score"`
	Breakdown   *ThreatBreakdown `json:"breakdown,omitempty"`
	Reason      string           `json:"reason"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      Source           `json:"source"`
	ShadowKey   string           `json:"shadow_key,omitempty"`
}

// ThreatBreakdown itemizes a threat score. Total is exactly
// LocationCount + Distance + TimeSpan + Regularity + DeviceType + Movement,
// summed in that order and not clamped.
type ThreatBreakdown struct {
	LocationCount float64 `json:"location_count"`
	Distance      float64 `json:"distance"`
	TimeSpan      float64 `json:"time_span"`
	Regularity    float64 `json:"regularity"`
	DeviceType    float64 `json:"device_type"`
	Movement      float64 `json:"movement"`
	Total         float64 `json:"total"`
}

// MovementCorrelation holds the four movement sub-scores and their weighted sum.
type MovementCorrelation struct {
	MovementSync float64 `json:"movement_sync"`
	Route        float64 `json:"route"`
	Dwell        float64 `json:"dwell"`
	TimePattern  float64 `json:"time_pattern"`
	Score        float64 `json:"score"`
}

// MovementInput is the evidence the movement correlation needs: the device's
// sightings, the carrier's breadcrumbs, and the places both refer to.
type MovementInput struct {
	Records []DeviceLocationRecord
	Path    []UserPath
	Places  []Location
}

// HasData reports whether there is enough input to correlate at all.
func (m MovementInput) HasData() bool {
	return len(m.Records) > 0 && len(m.Path) > 0 && len(m.Places) > 0
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
