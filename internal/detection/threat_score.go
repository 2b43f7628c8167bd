// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"math"
	"time"

	"github.com/tomtom215/trackguard/internal/geo"
)

// Factor caps. They sum to exactly 1.0.
const (
	maxLocationCountScore = 0.30
	maxDistanceScore      = 0.25
	maxTimeSpanScore      = 0.20
	maxRegularityScore    = 0.15
	maxDeviceTypeScore    = 0.10

	locationCountSaturation = 10
	distanceSaturation      = 10000.0 // meters

	// Enhanced scoring blends base factors and movement correlation.
	enhancedBaseWeight     = 0.8
	enhancedMovementWeight = 0.2
)

// ThreatScorer produces the enhanced threat breakdown for one device.
// ThreatScoreCalculator is the production implementation.
type ThreatScorer interface {
	CalculateEnhancedWithBreakdown(device *ScannedDevice, locations []Location, distances []float64, movement MovementInput) ThreatBreakdown
}

// ThreatScoreCalculator combines location count, distance, time span,
// regularity, device type and movement correlation into one score.
type ThreatScoreCalculator struct {
	patterns *PatternMatcher
	movement *MovementCorrelationCalculator
}

var _ ThreatScorer = (*ThreatScoreCalculator)(nil)

// NewThreatScoreCalculator creates a calculator. Nil collaborators get
// default instances.
func NewThreatScoreCalculator(patterns *PatternMatcher, movement *MovementCorrelationCalculator) *ThreatScoreCalculator {
	if patterns == nil {
		patterns = NewPatternMatcher()
	}
	if movement == nil {
		movement = NewMovementCorrelationCalculator()
	}
	return &ThreatScoreCalculator{patterns: patterns, movement: movement}
}

// Calculate returns the base threat score clamped to [0,1].
func (c *ThreatScoreCalculator) Calculate(device *ScannedDevice, locations []Location, distances []float64) float64 {
	return clamp01(c.CalculateWithBreakdown(device, locations, distances).Total)
}

// CalculateWithBreakdown itemizes the five base factors. Movement is 0.
func (c *ThreatScoreCalculator) CalculateWithBreakdown(device *ScannedDevice, locations []Location, distances []float64) ThreatBreakdown {
	maxDist, _ := geo.DistanceStats(distances)
	b := ThreatBreakdown{
		LocationCount: LocationCountScore(len(locations)),
		Distance:      DistanceScore(maxDist),
		TimeSpan:      TimeSpanScore(timeSpan(locations)),
		Regularity:    RegularityScore(c.patterns.AnalyzeTemporalPattern(locations)),
		DeviceType:    DeviceTypeScore(device),
	}
	b.Total = b.sum()
	return b
}

// CalculateEnhanced returns the enhanced score clamped to [0,1]. Without
// movement data it equals Calculate.
func (c *ThreatScoreCalculator) CalculateEnhanced(device *ScannedDevice, locations []Location, distances []float64, movement MovementInput) float64 {
	return clamp01(c.CalculateEnhancedWithBreakdown(device, locations, distances, movement).Total)
}

// CalculateEnhancedWithBreakdown scales every base factor by 0.8 and adds
// 0.2 * movement correlation when movement data exists. Total remains the
// exact sum of the itemized factors.
func (c *ThreatScoreCalculator) CalculateEnhancedWithBreakdown(device *ScannedDevice, locations []Location, distances []float64, movement MovementInput) ThreatBreakdown {
	b := c.CalculateWithBreakdown(device, locations, distances)
	if !movement.HasData() {
		return b
	}

	mc := c.movement.Calculate(movement)
	b.LocationCount *= enhancedBaseWeight
	b.Distance *= enhancedBaseWeight
	b.TimeSpan *= enhancedBaseWeight
	b.Regularity *= enhancedBaseWeight
	b.DeviceType *= enhancedBaseWeight
	b.Movement = mc.Score * enhancedMovementWeight
	b.Total = b.sum()
	return b
}

func (b ThreatBreakdown) sum() float64 {
	return b.LocationCount + b.Distance + b.TimeSpan + b.Regularity + b.DeviceType + b.Movement
}

// LocationCountScore is min(count/10, 1) * 0.30.
func LocationCountScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(float64(count)/locationCountSaturation, 1) * maxLocationCountScore
}

// DistanceScore is min(maxDistanceMeters/10000, 1) * 0.25.
func DistanceScore(maxDistanceMeters float64) float64 {
	if maxDistanceMeters <= 0 || math.IsNaN(maxDistanceMeters) {
		return 0
	}
	return math.Min(maxDistanceMeters/distanceSaturation, 1) * maxDistanceScore
}

// TimeSpanScore steps: under an hour 0.05, under a day 0.15, otherwise 0.20.
// A negative span (no usable timestamps) scores 0.
func TimeSpanScore(span time.Duration) float64 {
	switch {
	case span < 0:
		return 0
	case span < time.Hour:
		return 0.05
	case span < 24*time.Hour:
		return 0.15
	default:
		return maxTimeSpanScore
	}
}

// RegularityScore maps a temporal pattern to its factor. Frequent sightings
// (mean interval under an hour) always score the maximum.
func RegularityScore(p TemporalPattern) float64 {
	if p.Type == PatternInsufficientData || p.Type == "" {
		return 0
	}
	if p.MeanInterval < time.Hour {
		return maxRegularityScore
	}
	switch p.Type {
	case PatternVeryRegular:
		return 0.12
	case PatternRegular:
		return 0.10
	default:
		return 0.05
	}
}

// DeviceTypeScore maps the device category to its factor. Unknown and
// absent types score 0.07.
func DeviceTypeScore(device *ScannedDevice) float64 {
	if device == nil {
		return 0.07
	}
	switch device.DeviceType {
	case DeviceTypePhone, DeviceTypeTablet:
		return maxDeviceTypeScore
	case DeviceTypeWatch, DeviceTypeTracker:
		return 0.08
	case DeviceTypeHeadphones:
		return 0.05
	default:
		return 0.07
	}
}

// timeSpan returns last - first over non-zero timestamps, or -1 when none exist.
func timeSpan(locations []Location) time.Duration {
	var first, last time.Time
	for _, l := range locations {
		if l.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || l.Timestamp.Before(first) {
			first = l.Timestamp
		}
		if last.IsZero() || l.Timestamp.After(last) {
			last = l.Timestamp
		}
	}
	if first.IsZero() {
		return -1
	}
	return last.Sub(first)
}
