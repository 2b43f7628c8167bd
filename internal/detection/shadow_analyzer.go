// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

const (
	shadowPersistenceWeight = 0.7
	shadowRotationWeight    = 0.3

	// shadowLocationSaturation is the place count at which persistence
	// stops growing with more places.
	shadowLocationSaturation = 5
)

// ShadowAnalyzer looks for device profiles (shadow keys) that keep showing
// up across the carrier's places, even when the MAC address changes.
type ShadowAnalyzer struct {
	store    ShadowStore
	rotation *MacRotationDetector
}

// NewShadowAnalyzer creates an analyzer over store. A nil rotation detector
// gets the default one.
func NewShadowAnalyzer(store ShadowStore, rotation *MacRotationDetector) *ShadowAnalyzer {
	if rotation == nil {
		rotation = NewMacRotationDetector()
	}
	return &ShadowAnalyzer{store: store, rotation: rotation}
}

// FindSuspiciousShadows evaluates every shadow key seen at no fewer than
// minLocationCount places. Whitelisted devices are removed before scoring,
// and a key whose devices are all whitelisted is dropped. Results are
// ordered by combined score, highest first. No qualifying keys yields an
// empty slice.
func (a *ShadowAnalyzer) FindSuspiciousShadows(ctx context.Context, minLocationCount int, whitelist map[int64]struct{}) ([]ShadowAnalysisResult, error) {
	keys, err := a.store.ShadowKeysWithMinLocations(ctx, minLocationCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list shadow keys: %w", err)
	}

	results := make([]ShadowAnalysisResult, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		metrics.ShadowKeysEvaluated.Inc()

		r, ok, err := a.analyzeKey(ctx, key, minLocationCount, whitelist)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore == results[j].CombinedScore {
			return results[i].ShadowKey < results[j].ShadowKey
		}
		return results[i].CombinedScore > results[j].CombinedScore
	})
	return results, nil
}

func (a *ShadowAnalyzer) analyzeKey(ctx context.Context, key string, minLocationCount int, whitelist map[int64]struct{}) (ShadowAnalysisResult, bool, error) {
	devices, err := a.store.DevicesByShadowKey(ctx, key)
	if err != nil {
		return ShadowAnalysisResult{}, false, fmt.Errorf("failed to get devices for shadow key %q: %w", key, err)
	}

	active := make([]ScannedDevice, 0, len(devices))
	for _, d := range devices {
		if _, skip := whitelist[d.ID]; !skip {
			active = append(active, d)
		}
	}
	if len(active) == 0 {
		logging.Debug().Str("shadow_key", key).Int("devices", len(devices)).Msg("shadow key skipped: all devices whitelisted")
		return ShadowAnalysisResult{}, false, nil
	}

	byLocation, err := a.store.DeviceIDsByLocationForShadowKey(ctx, key)
	if err != nil {
		return ShadowAnalysisResult{}, false, fmt.Errorf("failed to get location counts for shadow key %q: %w", key, err)
	}

	counts := make(map[int64]int, len(byLocation))
	for loc, ids := range byLocation {
		n := 0
		for _, id := range ids {
			if _, skip := whitelist[id]; !skip {
				n++
			}
		}
		if n > 0 {
			counts[loc] = n
		}
	}
	if len(counts) == 0 || len(counts) < minLocationCount {
		return ShadowAnalysisResult{}, false, nil
	}

	values := make([]int, 0, len(counts))
	for _, n := range counts {
		values = append(values, n)
	}

	rotation := a.rotation.DetectRotation(active)
	persistence := PersistenceScore(values)

	return ShadowAnalysisResult{
		ShadowKey:              key,
		LocationCount:          len(counts),
		DeviceCountsByLocation: counts,
		PersistenceScore:       persistence,
		RotationScore:          rotation.Score,
		CombinedScore:          clamp01(shadowPersistenceWeight*persistence + shadowRotationWeight*rotation.Score),
		RepresentativeDevice:   mostRecentlySeen(active),
		DeviceCount:            len(active),
		Rotation:               &rotation,
	}, true, nil
}

// PersistenceScore rates per-place device counts. Counts that stay near 1
// mean one device keeps coming back; counts that are high or vary widely
// look like a popular device model.
//
//	persistence = (1/mean) * 1/(1+cv) * min(places/5, 1)
func PersistenceScore(countsPerLocation []int) float64 {
	if len(countsPerLocation) == 0 {
		return 0
	}
	values := make([]float64, 0, len(countsPerLocation))
	for _, c := range countsPerLocation {
		if c > 0 {
			values = append(values, float64(c))
		}
	}
	if len(values) == 0 {
		return 0
	}

	mean, _, cv := intervalStats(values)
	coverage := math.Min(float64(len(values))/shadowLocationSaturation, 1)
	return clamp01((1 / mean) * (1 / (1 + cv)) * coverage)
}

func mostRecentlySeen(devices []ScannedDevice) ScannedDevice {
	best := devices[0]
	for _, d := range devices[1:] {
		if d.LastSeen.After(best.LastSeen) || (d.LastSeen.Equal(best.LastSeen) && d.ID > best.ID) {
			best = d
		}
	}
	return best
}
