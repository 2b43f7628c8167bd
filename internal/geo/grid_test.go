// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package geo

import (
	"sync"
	"testing"
)

func TestGrid_Nearest(t *testing.T) {
	t.Parallel()

	g := NewGrid(100)
	g.Insert(1, 52.5200, 13.4050)
	g.Insert(2, 52.5205, 13.4050) // ~55m north
	g.Insert(3, 52.6000, 13.4050) // ~9km north

	e, d, ok := g.Nearest(52.5204, 13.4050, 100)
	if !ok {
		t.Fatal("Nearest() found nothing")
	}
	if e.ID != 2 {
		t.Errorf("Nearest().ID = %d, want 2 (distance %.1f)", e.ID, d)
	}

	if _, _, ok := g.Nearest(52.5600, 13.4050, 100); ok {
		t.Error("Nearest() should find nothing 4km from every entry")
	}
}

func TestGrid_Within(t *testing.T) {
	t.Parallel()

	g := NewGrid(100)
	g.Insert(1, 40.7128, -74.0060)
	g.Insert(2, 40.7130, -74.0062)
	g.Insert(3, 40.7580, -73.9855)

	got := g.Within(40.7128, -74.0060, 200)
	if len(got) != 2 {
		t.Errorf("Within() returned %d entries, want 2", len(got))
	}
	if g.Size() != 3 {
		t.Errorf("Size() = %d, want 3", g.Size())
	}
	if g.NumCells() < 2 {
		t.Errorf("NumCells() = %d, want at least 2", g.NumCells())
	}
}

func TestGrid_CellBoundary(t *testing.T) {
	t.Parallel()

	// Two points a few meters apart straddling a cell edge must still match.
	g := NewGrid(100)
	edge := 100.0 / metersPerDegree
	g.Insert(1, edge-0.00001, 0.5)

	if _, _, ok := g.Nearest(edge+0.00001, 0.5, 50); !ok {
		t.Error("Nearest() missed an entry in the adjacent cell")
	}
}

func TestGrid_Wraparound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stored   [2]float64
		query    [2]float64
		radiusM  float64
		wantSeen bool
	}{
		{"east to west across antimeridian", [2]float64{0, 179.9996}, [2]float64{0, -179.9996}, 150, true},
		{"west to east across antimeridian", [2]float64{-33.86, -179.9997}, [2]float64{-33.86, 179.9997}, 150, true},
		{"lon 180 matches lon -180", [2]float64{12, 180}, [2]float64{12, -180}, 1, true},
		{"across the north pole", [2]float64{89.9995, 0}, [2]float64{89.9995, 180}, 150, true},
		{"near pole but too far", [2]float64{89.99, 0}, [2]float64{89.99, 180}, 150, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(100)
			g.Insert(1, tt.stored[0], tt.stored[1])

			got := len(g.Within(tt.query[0], tt.query[1], tt.radiusM)) == 1
			if got != tt.wantSeen {
				t.Errorf("Within() found entry = %v, want %v (distance %.1fm)",
					got, tt.wantSeen, DistanceMeters(tt.stored[0], tt.stored[1], tt.query[0], tt.query[1]))
			}
		})
	}
}

func TestGrid_DefaultCellSize(t *testing.T) {
	t.Parallel()

	g := NewGrid(0)
	g.Insert(1, 10, 10)
	if _, _, ok := g.Nearest(10, 10, 1); !ok {
		t.Error("grid with default cell size should find an exact match")
	}
}

func TestGrid_Concurrent(t *testing.T) {
	t.Parallel()

	g := NewGrid(500)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.Insert(i*100+j, 48.0+float64(j)*0.001, 11.0)
				g.Nearest(48.0, 11.0, 1000)
			}
		}(i)
	}
	wg.Wait()

	if g.Size() != 400 {
		t.Errorf("Size() = %d, want 400", g.Size())
	}
}
