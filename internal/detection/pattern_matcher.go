// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"iter"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/trackguard/internal/geo"
)

// PatternConfig configures spatial clustering and temporal analysis.
type PatternConfig struct {
	// ClusterRadiusMeters is the maximum distance from a cluster center for
	// a place to join that cluster.
	ClusterRadiusMeters float64 `json:"cluster_radius_meters"`

	// TemporalSeparation is the minimum gap between the mean timestamps of
	// consecutive clusters for a following pattern.
	TemporalSeparation time.Duration `json:"temporal_separation"`

	// MinClusters is the default cluster count for HasFollowingPattern.
	MinClusters int `json:"min_clusters"`

	// VeryRegularCV and RegularCV are the coefficient-of-variation cutoffs.
	VeryRegularCV float64 `json:"very_regular_cv"`
	RegularCV     float64 `json:"regular_cv"`

	// SimilarityDistanceScale and SimilarityTimeScale are the decay scales
	// used by CalculatePatternSimilarity.
	SimilarityDistanceScale float64       `json:"similarity_distance_scale"`
	SimilarityTimeScale     time.Duration `json:"similarity_time_scale"`

	// DiversityDistanceScale is the mean center distance at which the
	// distance half of the diversity score reaches 0.5.
	DiversityDistanceScale float64 `json:"diversity_distance_scale"`
}

// DefaultPatternConfig returns the stock clustering parameters.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		ClusterRadiusMeters:     100,
		TemporalSeparation:      time.Hour,
		MinClusters:             3,
		VeryRegularCV:           0.1,
		RegularCV:               0.5,
		SimilarityDistanceScale: 500,
		SimilarityTimeScale:     time.Hour,
		DiversityDistanceScale:  1000,
	}
}

// PatternMatcher groups places into clusters and classifies how regularly
// they were visited. It holds no per-call state.
type PatternMatcher struct {
	config PatternConfig
	mu     sync.RWMutex
}

// NewPatternMatcher creates a matcher with the default configuration.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{config: DefaultPatternConfig()}
}

// Configure replaces the configuration.
func (m *PatternMatcher) Configure(cfg PatternConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// Config returns the current configuration.
func (m *PatternMatcher) Config() PatternConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ClusterLocations greedily clusters places in input order. A place joins
// the nearest existing cluster whose center is within ClusterRadiusMeters,
// otherwise it starts a new cluster. Places with invalid or unknown (0,0)
// coordinates are skipped.
//
// The sequence is lazy: nothing is computed until it is ranged over, and
// every range re-runs the pass.
func (m *PatternMatcher) ClusterLocations(locations []Location) iter.Seq[LocationCluster] {
	radius := m.Config().ClusterRadiusMeters
	return func(yield func(LocationCluster) bool) {
		for _, c := range clusterLocations(locations, radius) {
			if !yield(c) {
				return
			}
		}
	}
}

func clusterLocations(locations []Location, radius float64) []LocationCluster {
	if len(locations) == 0 {
		return nil
	}

	grid := geo.NewGrid(radius)
	var clusters []LocationCluster
	for _, loc := range locations {
		if !usableCoordinates(loc) {
			continue
		}
		if e, _, ok := grid.Nearest(loc.Latitude, loc.Longitude, radius); ok {
			clusters[e.ID].Members = append(clusters[e.ID].Members, loc)
			continue
		}
		grid.Insert(len(clusters), loc.Latitude, loc.Longitude)
		clusters = append(clusters, LocationCluster{Center: loc, Members: []Location{loc}})
	}
	return clusters
}

func usableCoordinates(l Location) bool {
	return geo.IsValid(l.Latitude, l.Longitude) && !geo.IsUnknown(l.Latitude, l.Longitude)
}

// HasFollowingPattern reports whether the places form at least minClusters
// distinct clusters visited at clearly separate times. A non-positive
// minClusters uses the configured default.
func (m *PatternMatcher) HasFollowingPattern(locations []Location, minClusters int) bool {
	cfg := m.Config()
	if minClusters <= 0 {
		minClusters = cfg.MinClusters
	}
	if len(locations) < 2 {
		return false
	}

	clusters := clusterLocations(locations, cfg.ClusterRadiusMeters)
	if len(clusters) < minClusters {
		return false
	}

	means := make([]time.Time, len(clusters))
	for i, c := range clusters {
		means[i] = c.MeanTimestamp()
	}
	sort.Slice(means, func(i, j int) bool { return means[i].Before(means[j]) })

	for i := 1; i < len(means); i++ {
		if means[i].Sub(means[i-1]) < cfg.TemporalSeparation {
			return false
		}
	}
	return true
}

// CalculateLocationDiversity scores how spread out the places are, in
// [0,1]. It is 0 for one place or when every place has the same coordinates,
// and grows with both cluster count and mean distance between cluster
// centers, saturating towards 1.
func (m *PatternMatcher) CalculateLocationDiversity(locations []Location) float64 {
	if len(locations) <= 1 || allSameCoordinates(locations) {
		return 0
	}

	cfg := m.Config()
	clusters := clusterLocations(locations, cfg.ClusterRadiusMeters)
	if len(clusters) <= 1 {
		return 0
	}

	centers := make([]Location, len(clusters))
	for i, c := range clusters {
		centers[i] = c.Center
	}
	_, meanDist := geo.DistanceStats(geo.PairwiseDistances(centers))

	countScore := 1 - 1/float64(len(clusters))
	distScore := meanDist / (meanDist + cfg.DiversityDistanceScale)
	return clamp01(0.5*countScore + 0.5*distScore)
}

func allSameCoordinates(locations []Location) bool {
	first := locations[0]
	for _, l := range locations[1:] {
		if !geo.SameCoordinates(first.Latitude, first.Longitude, l.Latitude, l.Longitude) {
			return false
		}
	}
	return true
}

// AnalyzeTemporalPattern classifies the intervals between consecutive place
// timestamps. Places with a zero timestamp are ignored.
func (m *PatternMatcher) AnalyzeTemporalPattern(locations []Location) TemporalPattern {
	times := make([]time.Time, 0, len(locations))
	for _, l := range locations {
		if !l.Timestamp.IsZero() {
			times = append(times, l.Timestamp)
		}
	}
	return m.classifyIntervals(times)
}

func (m *PatternMatcher) classifyIntervals(times []time.Time) TemporalPattern {
	insufficient := TemporalPattern{Type: PatternInsufficientData}
	if len(times) < 2 {
		return insufficient
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Seconds())
	}

	mean, variance, cv := intervalStats(intervals)
	if mean <= 0 {
		return insufficient
	}

	cfg := m.Config()
	p := TemporalPattern{
		MeanInterval:           time.Duration(mean * float64(time.Second)),
		Variance:               variance,
		CoefficientOfVariation: cv,
	}
	switch {
	case cv < cfg.VeryRegularCV:
		p.Type = PatternVeryRegular
		p.IsRegular = true
	case cv < cfg.RegularCV:
		p.Type = PatternRegular
		p.IsRegular = true
	default:
		p.Type = PatternIrregular
	}
	return p
}

// intervalStats returns the mean, population variance and coefficient of
// variation. cv is 0 when the mean is 0.
func intervalStats(values []float64) (mean, variance, cv float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}
	return mean, variance, cv
}

// CalculatePatternSimilarity compares two visit sequences. Each place is
// matched with its best counterpart in the other sequence, scored by
// exp(-distance/DistanceScale) * exp(-|dt|/TimeScale); the result is the
// mean of both directions. Disjoint sequences score near 0.
func (m *PatternMatcher) CalculatePatternSimilarity(a, b []Location) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	cfg := m.Config()
	ab := bestMatchMean(a, b, cfg)
	ba := bestMatchMean(b, a, cfg)
	return clamp01((ab + ba) / 2)
}

func bestMatchMean(from, to []Location, cfg PatternConfig) float64 {
	var sum float64
	for _, x := range from {
		best := 0.0
		for _, y := range to {
			if s := visitSimilarity(x, y, cfg); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

func visitSimilarity(x, y Location, cfg PatternConfig) float64 {
	if !usableCoordinates(x) || !usableCoordinates(y) {
		return 0
	}
	d := geo.DistanceMeters(x.Latitude, x.Longitude, y.Latitude, y.Longitude)
	spatial := math.Exp(-d / cfg.SimilarityDistanceScale)

	temporal := 1.0
	if !x.Timestamp.IsZero() && !y.Timestamp.IsZero() && cfg.SimilarityTimeScale > 0 {
		dt := math.Abs(x.Timestamp.Sub(y.Timestamp).Seconds())
		temporal = math.Exp(-dt / cfg.SimilarityTimeScale.Seconds())
	}
	return spatial * temporal
}
