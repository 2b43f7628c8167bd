// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package geo

import (
	"math"
	"sync"
)

// metersPerDegree is the approximate length of one degree of latitude.
const metersPerDegree = 111320.0

// Grid divides geographic space into square cells for fast proximity queries.
// Instead of comparing a point against every entry, only the cells around
// the query point are visited.
//
// Time Complexity:
//   - Insert: O(1)
//   - Nearest/Within: O(k) where k = entries in the visited cells
type Grid struct {
	mu       sync.RWMutex
	cells    map[cellKey][]GridEntry
	cellSize float64 // degrees
	size     int
}

type cellKey struct {
	X, Y int
}

// GridEntry is one point stored in the grid.
type GridEntry struct {
	ID  int
	Lat float64
	Lon float64
}

// NewGrid creates a grid whose cells are roughly cellSizeMeters wide.
// A non-positive size falls back to 100m.
func NewGrid(cellSizeMeters float64) *Grid {
	if cellSizeMeters <= 0 {
		cellSizeMeters = 100
	}
	return &Grid{
		cells:    make(map[cellKey][]GridEntry),
		cellSize: cellSizeMeters / metersPerDegree,
	}
}

func (g *Grid) key(lat, lon float64) cellKey {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return cellKey{
		X: int(math.Floor(lon / g.cellSize)),
		Y: int(math.Floor(lat / g.cellSize)),
	}
}

// Insert adds a point. IDs are caller-defined and not deduplicated.
func (g *Grid) Insert(id int, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := g.key(lat, lon)
	g.cells[k] = append(g.cells[k], GridEntry{ID: id, Lat: lat, Lon: lon})
	g.size++
}

// Nearest returns the closest entry within radiusMeters of the point.
// Ties are broken by the lower ID so results are deterministic.
func (g *Grid) Nearest(lat, lon, radiusMeters float64) (GridEntry, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var best GridEntry
	bestDist := math.Inf(1)
	found := false

	g.visit(lat, lon, radiusMeters, func(e GridEntry) {
		d := DistanceMeters(lat, lon, e.Lat, e.Lon)
		if d > radiusMeters {
			return
		}
		if d < bestDist || (d == bestDist && e.ID < best.ID) {
			best, bestDist, found = e, d, true
		}
	})

	return best, bestDist, found
}

// Within returns every entry within radiusMeters of the point.
func (g *Grid) Within(lat, lon, radiusMeters float64) []GridEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []GridEntry
	g.visit(lat, lon, radiusMeters, func(e GridEntry) {
		if DistanceMeters(lat, lon, e.Lat, e.Lon) <= radiusMeters {
			out = append(out, e)
		}
	})
	return out
}

// columns returns the first X index and the number of cell columns
// around the globe.
func (g *Grid) columns() (int, int) {
	minX := int(math.Floor(-180 / g.cellSize))
	maxX := int(math.Floor(math.Nextafter(180, 0) / g.cellSize))
	return minX, maxX - minX + 1
}

// visit calls fn for every entry in the cells overlapping the search box
// (caller must hold the lock). Columns wrap at the antimeridian; close to
// the poles every cell in the latitude band is scanned.
func (g *Grid) visit(lat, lon, radiusMeters float64, fn func(GridEntry)) {
	span := int(math.Ceil(radiusMeters/metersPerDegree/g.cellSize)) + 1
	minX, cols := g.columns()

	// Longitude degrees shrink towards the poles.
	lonSpan := cols
	if c := math.Cos(lat * math.Pi / 180); c > 0.01 {
		lonSpan = int(math.Ceil(float64(span)/c)) + 1
	}

	center := g.key(lat, lon)
	if 2*lonSpan+1 >= cols {
		for k, entries := range g.cells {
			if k.Y < center.Y-span || k.Y > center.Y+span {
				continue
			}
			for _, e := range entries {
				fn(e)
			}
		}
		return
	}

	for dx := -lonSpan; dx <= lonSpan; dx++ {
		x := minX + mod(center.X+dx-minX, cols)
		for dy := -span; dy <= span; dy++ {
			for _, e := range g.cells[cellKey{X: x, Y: center.Y + dy}] {
				fn(e)
			}
		}
	}
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// Size returns the number of entries.
func (g *Grid) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size
}

// NumCells returns the number of non-empty cells.
func (g *Grid) NumCells() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cells)
}
