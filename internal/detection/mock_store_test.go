// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"context"
	"sort"
	"sync"
	"time"
)

// mockStore implements Store for testing and records which device ids each
// per-device query was called with.
type mockStore struct {
	mu sync.Mutex

	candidates       []ScannedDevice
	devices          map[int64]ScannedDevice
	locationsByDev   map[int64][]Location
	recordsByDev     map[int64][]DeviceLocationRecord
	places           []Location
	path             []UserPath
	whitelist        []int64
	shadowKeys       []string
	shadowDevices    map[string][]ScannedDevice
	shadowByLocation map[string]map[int64][]int64

	candidatesErr error
	locationsErr  error

	// call tracking
	locationCalls   [][]int64
	recordCalls     [][]int64
	shadowKeyCalls  int
	carrierCalls    int
	linkedCalls     []int64
	blockLocations  chan struct{}
	locationStarted chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{
		devices:          make(map[int64]ScannedDevice),
		locationsByDev:   make(map[int64][]Location),
		recordsByDev:     make(map[int64][]DeviceLocationRecord),
		shadowDevices:    make(map[string][]ScannedDevice),
		shadowByLocation: make(map[string]map[int64][]int64),
	}
}

func (m *mockStore) addDevice(d ScannedDevice, locations []Location) {
	m.devices[d.ID] = d
	m.candidates = append(m.candidates, d)
	m.locationsByDev[d.ID] = locations
	m.places = append(m.places, locations...)
}

func (m *mockStore) CandidateDevices(_ context.Context, minLocations int) ([]ScannedDevice, error) {
	if m.candidatesErr != nil {
		return nil, m.candidatesErr
	}
	var out []ScannedDevice
	for _, d := range m.candidates {
		if len(m.locationsByDev[d.ID]) >= minLocations {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) Device(_ context.Context, id int64) (*ScannedDevice, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *mockStore) DevicesLinkedTo(_ context.Context, primaryID int64) ([]ScannedDevice, error) {
	m.mu.Lock()
	m.linkedCalls = append(m.linkedCalls, primaryID)
	m.mu.Unlock()

	var out []ScannedDevice
	for _, d := range m.devices {
		if d.LinkedDeviceID != nil && *d.LinkedDeviceID == primaryID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) DevicesByFingerprint(_ context.Context, fingerprint string) ([]ScannedDevice, error) {
	var out []ScannedDevice
	for _, d := range m.devices {
		if d.PayloadFingerprint == fingerprint {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) WhitelistedDeviceIDs(context.Context) ([]int64, error) {
	return m.whitelist, nil
}

func (m *mockStore) LocationsForDevices(ctx context.Context, ids []int64) ([]Location, error) {
	m.mu.Lock()
	m.locationCalls = append(m.locationCalls, append([]int64(nil), ids...))
	m.mu.Unlock()

	if m.locationStarted != nil {
		m.locationStarted <- struct{}{}
	}
	if m.blockLocations != nil {
		select {
		case <-m.blockLocations:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.locationsErr != nil {
		return nil, m.locationsErr
	}

	seen := make(map[int64]struct{})
	var out []Location
	for _, id := range ids {
		for _, l := range m.locationsByDev[id] {
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockStore) RecordsForDevices(_ context.Context, ids []int64) ([]DeviceLocationRecord, error) {
	m.mu.Lock()
	m.recordCalls = append(m.recordCalls, append([]int64(nil), ids...))
	m.mu.Unlock()

	var out []DeviceLocationRecord
	for _, id := range ids {
		out = append(out, m.recordsByDev[id]...)
	}
	return out, nil
}

func (m *mockStore) AllLocations(context.Context) ([]Location, error) {
	m.mu.Lock()
	m.carrierCalls++
	m.mu.Unlock()
	return m.places, nil
}

func (m *mockStore) LocationsByIDs(_ context.Context, ids []int64) ([]Location, error) {
	byID := make(map[int64]Location, len(m.places))
	for _, p := range m.places {
		byID[p.ID] = p
	}
	var out []Location
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockStore) PathSince(_ context.Context, since time.Time) ([]UserPath, error) {
	var out []UserPath
	for _, p := range m.path {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) ShadowKeysWithMinLocations(_ context.Context, minLocations int) ([]string, error) {
	var out []string
	for _, k := range m.shadowKeys {
		if len(m.shadowByLocation[k]) >= minLocations {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) DeviceIDsByLocationForShadowKey(_ context.Context, key string) (map[int64][]int64, error) {
	m.mu.Lock()
	m.shadowKeyCalls++
	m.mu.Unlock()
	return m.shadowByLocation[key], nil
}

func (m *mockStore) DevicesByShadowKey(_ context.Context, key string) ([]ScannedDevice, error) {
	return m.shadowDevices[key], nil
}

func (m *mockStore) calledLocationsFor(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.locationCalls {
		for _, got := range call {
			if got == id {
				return true
			}
		}
	}
	return false
}

// mockScorer returns a fixed breakdown total.
type mockScorer struct {
	total float64
	mu    sync.Mutex
	calls int
}

func (s *mockScorer) CalculateEnhancedWithBreakdown(*ScannedDevice, []Location, []float64, MovementInput) ThreatBreakdown {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return ThreatBreakdown{Total: s.total}
}

// Fixture helpers.

var baseTime = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

// metersPerDegreeLat matches the great-circle length of one degree of latitude.
const metersPerDegreeLat = 111194.93

// placeAt returns a place northMeters north of the reference point.
func placeAt(id int64, northMeters float64, at time.Time) Location {
	return Location{
		ID:        id,
		Latitude:  52.5200 + northMeters/metersPerDegreeLat,
		Longitude: 13.4050,
		Accuracy:  10,
		Timestamp: at,
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
