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

// MovementConfig configures movement correlation.
type MovementConfig struct {
	// SyncWindow is how soon after the carrier arrives somewhere a sighting
	// there must occur to count as moving in sync.
	SyncWindow time.Duration `json:"sync_window"`

	SyncWeight        float64 `json:"sync_weight"`
	RouteWeight       float64 `json:"route_weight"`
	DwellWeight       float64 `json:"dwell_weight"`
	TimePatternWeight float64 `json:"time_pattern_weight"`
}

// DefaultMovementConfig returns the stock weights (0.4/0.3/0.15/0.15) and a
// 10 minute sync window.
func DefaultMovementConfig() MovementConfig {
	return MovementConfig{
		SyncWindow:        10 * time.Minute,
		SyncWeight:        0.4,
		RouteWeight:       0.3,
		DwellWeight:       0.15,
		TimePatternWeight: 0.15,
	}
}

// MovementCorrelationCalculator scores how closely a device's sightings
// follow the carrier's own movement.
type MovementCorrelationCalculator struct {
	config MovementConfig
	mu     sync.RWMutex
}

// NewMovementCorrelationCalculator creates a calculator with the default configuration.
func NewMovementCorrelationCalculator() *MovementCorrelationCalculator {
	return &MovementCorrelationCalculator{config: DefaultMovementConfig()}
}

// Configure replaces the configuration.
func (c *MovementCorrelationCalculator) Configure(cfg MovementConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
}

// visit is one stretch of consecutive entries at the same place.
type visit struct {
	placeID int64
	start   time.Time
	end     time.Time
}

// Calculate computes all four sub-scores and their weighted, clamped sum.
// Records and breadcrumbs that reference unknown places or carry a zero
// timestamp are dropped first; a sub-score with nothing left to compare is 0.
func (c *MovementCorrelationCalculator) Calculate(in MovementInput) MovementCorrelation {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	places := make(map[int64]struct{}, len(in.Places))
	for _, p := range in.Places {
		places[p.ID] = struct{}{}
	}

	var sightings []stamped
	for _, r := range in.Records {
		if _, ok := places[r.LocationID]; ok && !r.Timestamp.IsZero() {
			sightings = append(sightings, stamped{r.LocationID, r.Timestamp})
		}
	}
	var crumbs []stamped
	for _, p := range in.Path {
		if _, ok := places[p.LocationID]; ok && !p.Timestamp.IsZero() {
			crumbs = append(crumbs, stamped{p.LocationID, p.Timestamp})
		}
	}
	sortStamped(sightings)
	sortStamped(crumbs)

	deviceVisits := toVisits(sightings)
	carrierVisits := toVisits(crumbs)

	mc := MovementCorrelation{
		MovementSync: movementSyncScore(crumbs, sightings, cfg.SyncWindow),
		Route:        routeScore(deviceVisits, carrierVisits),
		Dwell:        dwellScore(deviceVisits, carrierVisits),
		TimePattern:  timePatternScore(sightings, carrierVisits),
	}
	mc.Score = clamp01(cfg.SyncWeight*mc.MovementSync +
		cfg.RouteWeight*mc.Route +
		cfg.DwellWeight*mc.Dwell +
		cfg.TimePatternWeight*mc.TimePattern)
	return mc
}

type stamped struct {
	placeID int64
	at      time.Time
}

func sortStamped(s []stamped) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].at.Before(s[j].at) })
}

func toVisits(s []stamped) []visit {
	var out []visit
	for _, e := range s {
		if n := len(out); n > 0 && out[n-1].placeID == e.placeID {
			out[n-1].end = e.at
			continue
		}
		out = append(out, visit{placeID: e.placeID, start: e.at, end: e.at})
	}
	return out
}

// movementSyncScore is the fraction of carrier moves (a breadcrumb at a
// different place than the one before) followed within window by a
// sighting at the new place.
func movementSyncScore(crumbs, sightings []stamped, window time.Duration) float64 {
	var moves, matched int
	for i := 1; i < len(crumbs); i++ {
		if crumbs[i].placeID == crumbs[i-1].placeID {
			continue
		}
		moves++
		arrived := crumbs[i].at
		deadline := arrived.Add(window)
		// sightings are sorted; find the first at or after arrival.
		j := sort.Search(len(sightings), func(k int) bool { return !sightings[k].at.Before(arrived) })
		for ; j < len(sightings) && !sightings[j].at.After(deadline); j++ {
			if sightings[j].placeID == crumbs[i].placeID {
				matched++
				break
			}
		}
	}
	if moves == 0 {
		return 0
	}
	return float64(matched) / float64(moves)
}

// routeScore is LCS(device places, carrier places) / len(device places).
func routeScore(device, carrier []visit) float64 {
	if len(device) == 0 || len(carrier) == 0 {
		return 0
	}
	return clamp01(float64(lcsLength(device, carrier)) / float64(len(device)))
}

func lcsLength(a, b []visit) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1].placeID == b[j-1].placeID:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// dwellScore averages min/max of total dwell time over places both the
// device and the carrier visited. Two instantaneous visits count as equal.
func dwellScore(device, carrier []visit) float64 {
	dd := dwellByPlace(device)
	cd := dwellByPlace(carrier)

	var sum float64
	var shared int
	for place, d := range dd {
		c, ok := cd[place]
		if !ok {
			continue
		}
		shared++
		lo, hi := math.Min(d, c), math.Max(d, c)
		if hi == 0 {
			sum++
			continue
		}
		sum += lo / hi
	}
	if shared == 0 {
		return 0
	}
	return sum / float64(shared)
}

func dwellByPlace(visits []visit) map[int64]float64 {
	out := make(map[int64]float64, len(visits))
	for _, v := range visits {
		out[v.placeID] += v.end.Sub(v.start).Seconds()
	}
	return out
}

// timePatternScore compares sighting intervals with the intervals between
// carrier moves: half mean-interval ratio, half closeness of their
// coefficients of variation.
func timePatternScore(sightings []stamped, carrier []visit) float64 {
	var di []float64
	for i := 1; i < len(sightings); i++ {
		if d := sightings[i].at.Sub(sightings[i-1].at).Seconds(); d > 0 {
			di = append(di, d)
		}
	}
	var ci []float64
	for i := 1; i < len(carrier); i++ {
		if d := carrier[i].start.Sub(carrier[i-1].start).Seconds(); d > 0 {
			ci = append(ci, d)
		}
	}
	if len(di) == 0 || len(ci) == 0 {
		return 0
	}

	dm, _, dcv := intervalStats(di)
	cm, _, ccv := intervalStats(ci)
	ratio := math.Min(dm, cm) / math.Max(dm, cm)
	cvCloseness := 1 - math.Min(math.Abs(dcv-ccv), 1)
	return clamp01(0.5*ratio + 0.5*cvCloseness)
}
