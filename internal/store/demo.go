// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
)

// Demo scenario device IDs.
const (
	DemoTrackerID  int64 = 1
	DemoOwnPhoneID int64 = 2
	DemoSpeakerID  int64 = 3
	demoRotatingID int64 = 10
	demoPlaceCount       = 5
)

// SeedDemo fills an empty store with a five-stop commute ending an hour
// before now: a tag that follows the whole way, the carrier's own
// whitelisted phone, a speaker only ever seen at home, and a tracker that
// changes address at every stop. It does nothing when devices exist.
func (s *SQLStore) SeedDemo(ctx context.Context, now time.Time) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count devices: %w", err)
	}
	if n > 0 {
		logging.Info().Int("devices", n).Msg("Store not empty, skipping demo data")
		return nil
	}

	start := now.Add(-time.Duration(demoPlaceCount) * time.Hour).Truncate(time.Minute)
	gen := detection.NewShadowKeyGenerator()
	apple := 0x12

	places := make([]detection.Location, demoPlaceCount)
	for i := range places {
		places[i] = detection.Location{
			ID:        int64(100 + i),
			Latitude:  52.50 + 0.02*float64(i),
			Longitude: 13.40 + 0.01*float64(i),
			Accuracy:  12,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
	}

	tag := detection.ScannedDevice{
		ID: DemoTrackerID, Address: "D4:61:9D:3A:0F:11", DeviceType: detection.DeviceTypeTracker,
		IsTracker: true, ManufacturerID: 0x004C, AppleContinuityType: &apple, FindMySeparated: true,
		HighestRSSI: -58, FirstSeen: places[0].Timestamp, LastSeen: places[len(places)-1].Timestamp,
		DetectionCount: demoPlaceCount,
	}
	phone := detection.ScannedDevice{
		ID: DemoOwnPhoneID, Address: "7C:04:D0:22:91:AB", Name: "My Phone", DeviceType: detection.DeviceTypePhone,
		ManufacturerID: 0x004C, HighestRSSI: -40, FirstSeen: places[0].Timestamp,
		LastSeen: places[len(places)-1].Timestamp, DetectionCount: demoPlaceCount,
	}
	speaker := detection.ScannedDevice{
		ID: DemoSpeakerID, Address: "00:1A:7D:DA:71:13", Name: "Living Room", DeviceType: detection.DeviceTypeSpeaker,
		HighestRSSI: -70, FirstSeen: places[0].Timestamp, LastSeen: places[0].Timestamp, DetectionCount: 3,
	}

	devices := []detection.ScannedDevice{tag, phone, speaker}
	for i, p := range places {
		d := detection.ScannedDevice{
			ID: demoRotatingID + int64(i), Address: fmt.Sprintf("E2:8B:11:40:%02X:%02X", i, 0x30+i),
			DeviceType: detection.DeviceTypeTracker, IsTracker: true, ManufacturerID: 0x0075,
			ServiceUUIDs: []string{"0000feed-0000-1000-8000-00805f9b34fb"},
			HighestRSSI:  -66, FirstSeen: p.Timestamp, LastSeen: p.Timestamp.Add(50 * time.Minute), DetectionCount: 2,
		}
		devices = append(devices, d)
	}
	for i := range devices {
		if key, ok := gen.Generate(&devices[i]); ok {
			devices[i].ShadowKey = key
		}
		if err := s.SeedDevice(ctx, devices[i]); err != nil {
			return err
		}
	}

	for _, p := range places {
		if err := s.SeedLocation(ctx, p); err != nil {
			return err
		}
	}

	var sightingID, pathID int64
	sight := func(deviceID int64, place detection.Location, offset time.Duration, rssi int) error {
		sightingID++
		return s.SeedSighting(ctx, detection.DeviceLocationRecord{
			ID: sightingID, DeviceID: deviceID, LocationID: place.ID, Timestamp: place.Timestamp.Add(offset),
			RSSI: rssi, LocationChanged: offset == 0, ScanTrigger: detection.ScanTriggerLocationChange,
		})
	}

	for i, p := range places {
		for _, crumb := range []time.Duration{0, 30 * time.Minute} {
			pathID++
			if err := s.SeedPath(ctx, detection.UserPath{ID: pathID, LocationID: p.ID, Timestamp: p.Timestamp.Add(crumb)}); err != nil {
				return err
			}
		}
		if err := sight(DemoTrackerID, p, 2*time.Minute, -60); err != nil {
			return err
		}
		if err := sight(DemoOwnPhoneID, p, 0, -41); err != nil {
			return err
		}
		if err := sight(demoRotatingID+int64(i), p, 5*time.Minute, -67); err != nil {
			return err
		}
	}
	for _, offset := range []time.Duration{0, 10 * time.Minute, 20 * time.Minute} {
		if err := sight(DemoSpeakerID, places[0], offset, -71); err != nil {
			return err
		}
	}

	if err := s.SeedWhitelist(ctx, DemoOwnPhoneID, "own phone"); err != nil {
		return err
	}

	logging.Info().
		Int("devices", len(devices)).
		Int("places", len(places)).
		Int64("sightings", sightingID).
		Msg("Seeded demo data")
	return nil
}
