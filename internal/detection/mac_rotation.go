// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"math"
	"sort"
	"sync"
	"time"
)

// RotationConfig configures MAC hand-off detection.
type RotationConfig struct {
	// HandoffTolerance is the largest gap between one address disappearing
	// and the next appearing that still counts as a hand-off.
	HandoffTolerance time.Duration `json:"handoff_tolerance"`

	// ExpectedPeriod is the platform-typical address rotation period.
	ExpectedPeriod time.Duration `json:"expected_period"`

	// RegularCV is the coefficient of variation below which rotation is regular.
	RegularCV float64 `json:"regular_cv"`
}

// DefaultRotationConfig returns the stock rotation parameters.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		HandoffTolerance: 5 * time.Minute,
		ExpectedPeriod:   15 * time.Minute,
		RegularCV:        0.25,
	}
}

const (
	rotationRegularityWeight = 0.6
	rotationPeriodWeight     = 0.4
)

// MacRotationDetector looks for one radio cycling through addresses: each
// address goes quiet just before the next one shows up, at a steady period.
type MacRotationDetector struct {
	config RotationConfig
	mu     sync.RWMutex
}

// NewMacRotationDetector creates a detector with the default configuration.
func NewMacRotationDetector() *MacRotationDetector {
	return &MacRotationDetector{config: DefaultRotationConfig()}
}

// Configure replaces the configuration.
func (d *MacRotationDetector) Configure(cfg RotationConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// DetectRotation scores the hand-off timing of devices. Devices are ordered
// by first-seen time; a hand-off between neighbours i and i+1 exists when
// firstSeen(i+1) - lastSeen(i) is in [0, HandoffTolerance].
//
// With fewer than two hand-offs the score is 0. Otherwise the intervals
// firstSeen(i+1) - firstSeen(i) over the hand-off pairs give
//
//	score = 0.6*max(0, 1-cv) + 0.4*exp(-|mean-ExpectedPeriod|/ExpectedPeriod)
//
// Devices without first/last seen times, or whose last seen precedes first
// seen, are ignored.
func (d *MacRotationDetector) DetectRotation(devices []ScannedDevice) RotationResult {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	valid := make([]ScannedDevice, 0, len(devices))
	for _, dev := range devices {
		if dev.FirstSeen.IsZero() || dev.LastSeen.IsZero() || dev.LastSeen.Before(dev.FirstSeen) {
			continue
		}
		valid = append(valid, dev)
	}
	if len(valid) < 2 {
		return RotationResult{}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].FirstSeen.Equal(valid[j].FirstSeen) {
			return valid[i].ID < valid[j].ID
		}
		return valid[i].FirstSeen.Before(valid[j].FirstSeen)
	})

	var intervals []float64
	for i := 0; i+1 < len(valid); i++ {
		gap := valid[i+1].FirstSeen.Sub(valid[i].LastSeen)
		if gap < 0 || gap > cfg.HandoffTolerance {
			continue
		}
		intervals = append(intervals, valid[i+1].FirstSeen.Sub(valid[i].FirstSeen).Seconds())
	}

	result := RotationResult{HandOffCount: len(intervals)}
	if len(intervals) == 0 {
		return result
	}

	mean, _, cv := intervalStats(intervals)
	result.AverageInterval = time.Duration(mean * float64(time.Second))
	if len(intervals) < 2 || mean <= 0 {
		return result
	}

	regularity := math.Max(0, 1-cv)
	closeness := 0.0
	if period := cfg.ExpectedPeriod.Seconds(); period > 0 {
		closeness = math.Exp(-math.Abs(mean-period) / period)
	}

	result.Score = clamp01(rotationRegularityWeight*regularity + rotationPeriodWeight*closeness)
	result.IsRegular = cv < cfg.RegularCV
	return result
}
