// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"math"
	"testing"
	"time"
)

// followingInput has the carrier visit places 1, 2 and 3 an hour apart and
// the device seen at each two minutes after arrival.
func followingInput() MovementInput {
	places := []Location{
		placeAt(1, 0, baseTime),
		placeAt(2, 2000, baseTime.Add(time.Hour)),
		placeAt(3, 4000, baseTime.Add(2*time.Hour)),
	}
	var path []UserPath
	var records []DeviceLocationRecord
	for i, p := range places {
		path = append(path, UserPath{ID: int64(i + 1), LocationID: p.ID, Timestamp: p.Timestamp})
		records = append(records, DeviceLocationRecord{
			ID:         int64(i + 1),
			DeviceID:   7,
			LocationID: p.ID,
			Timestamp:  p.Timestamp.Add(2 * time.Minute),
		})
	}
	return MovementInput{Records: records, Path: path, Places: places}
}

func TestMovementCorrelation_FollowingDevice(t *testing.T) {
	c := NewMovementCorrelationCalculator()
	got := c.Calculate(followingInput())

	if got.MovementSync != 1 {
		t.Errorf("MovementSync = %v, want 1", got.MovementSync)
	}
	if got.Route != 1 {
		t.Errorf("Route = %v, want 1", got.Route)
	}
	if got.Dwell != 1 {
		t.Errorf("Dwell = %v, want 1", got.Dwell)
	}
	if got.TimePattern != 1 {
		t.Errorf("TimePattern = %v, want 1", got.TimePattern)
	}
	if got.Score < 0.99 || got.Score > 1 {
		t.Errorf("Score = %v, want ~1", got.Score)
	}
}

func TestMovementCorrelation_LateSightingsMissSync(t *testing.T) {
	in := followingInput()
	for i := range in.Records {
		in.Records[i].Timestamp = in.Records[i].Timestamp.Add(30 * time.Minute)
	}

	got := NewMovementCorrelationCalculator().Calculate(in)
	if got.MovementSync != 0 {
		t.Errorf("MovementSync = %v, want 0 for sightings outside the window", got.MovementSync)
	}
	if got.Route != 1 {
		t.Errorf("Route = %v, want 1", got.Route)
	}
}

func TestMovementCorrelation_UnrelatedDevice(t *testing.T) {
	in := followingInput()
	extra := []Location{
		placeAt(4, 50000, baseTime.Add(10*time.Minute)),
		placeAt(5, 60000, baseTime.Add(5*time.Hour)),
	}
	in.Places = append(in.Places, extra...)
	in.Records = []DeviceLocationRecord{
		{ID: 1, DeviceID: 7, LocationID: 4, Timestamp: extra[0].Timestamp},
		{ID: 2, DeviceID: 7, LocationID: 5, Timestamp: extra[1].Timestamp},
	}

	got := NewMovementCorrelationCalculator().Calculate(in)
	if got.MovementSync != 0 || got.Route != 0 || got.Dwell != 0 {
		t.Errorf("got %+v, want zero sync, route and dwell", got)
	}
	if got.Score > 0.15 {
		t.Errorf("Score = %v, want <= 0.15", got.Score)
	}
}

func TestMovementCorrelation_DropsUnknownPlacesAndZeroTimes(t *testing.T) {
	in := followingInput()
	in.Records = []DeviceLocationRecord{
		{ID: 1, DeviceID: 7, LocationID: 99, Timestamp: baseTime},
		{ID: 2, DeviceID: 7, LocationID: 1},
	}

	got := NewMovementCorrelationCalculator().Calculate(in)
	if got != (MovementCorrelation{}) {
		t.Errorf("got %+v, want all zero", got)
	}
}

func TestMovementCorrelation_Dwell(t *testing.T) {
	places := []Location{placeAt(1, 0, baseTime), placeAt(2, 2000, baseTime)}
	in := MovementInput{
		Places: places,
		// carrier stays 40 minutes at place 1
		Path: []UserPath{
			{ID: 1, LocationID: 1, Timestamp: baseTime},
			{ID: 2, LocationID: 1, Timestamp: baseTime.Add(40 * time.Minute)},
			{ID: 3, LocationID: 2, Timestamp: baseTime.Add(time.Hour)},
		},
		// device seen there for 20 minutes
		Records: []DeviceLocationRecord{
			{ID: 1, DeviceID: 7, LocationID: 1, Timestamp: baseTime.Add(5 * time.Minute)},
			{ID: 2, DeviceID: 7, LocationID: 1, Timestamp: baseTime.Add(25 * time.Minute)},
			{ID: 3, DeviceID: 7, LocationID: 2, Timestamp: baseTime.Add(time.Hour + time.Minute)},
		},
	}

	got := NewMovementCorrelationCalculator().Calculate(in)
	// place 1: 20/40 = 0.5, place 2: both instantaneous = 1
	if math.Abs(got.Dwell-0.75) > 1e-9 {
		t.Errorf("Dwell = %v, want 0.75", got.Dwell)
	}
}

func TestMovementCorrelation_Configure(t *testing.T) {
	c := NewMovementCorrelationCalculator()
	c.Configure(MovementConfig{SyncWindow: time.Minute, SyncWeight: 1})

	got := c.Calculate(followingInput())
	if got.MovementSync != 0 {
		t.Errorf("MovementSync = %v, want 0 with a 1 minute window", got.MovementSync)
	}
	if got.Score != 0 {
		t.Errorf("Score = %v, want 0 when only sync is weighted", got.Score)
	}
}
