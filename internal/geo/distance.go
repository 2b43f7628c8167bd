// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// CoordinateEpsilon is the threshold for treating a coordinate as zero.
// 1e-7 degrees is about 1.1cm at the equator, well below GPS accuracy.
const CoordinateEpsilon = 1e-7

// IsUnknown reports whether the coordinates are the (0, 0) sentinel.
func IsUnknown(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// IsValid reports whether lat/lon are finite and inside the WGS84 range.
func IsValid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceMeters returns the great-circle distance between two points in meters.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// SameCoordinates reports whether two points are equal within CoordinateEpsilon.
func SameCoordinates(lat1, lon1, lat2, lon2 float64) bool {
	return math.Abs(lat1-lat2) < CoordinateEpsilon && math.Abs(lon1-lon2) < CoordinateEpsilon
}

// Point is anything with a latitude and longitude in degrees.
type Point interface {
	Lat() float64
	Lon() float64
}

// PairwiseDistances returns the distance between every unordered pair of
// points, in index order (0-1, 0-2, ..., 1-2, ...). Points with invalid
// coordinates are skipped.
func PairwiseDistances[P Point](points []P) []float64 {
	valid := make([]P, 0, len(points))
	for _, p := range points {
		if IsValid(p.Lat(), p.Lon()) {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return nil
	}

	out := make([]float64, 0, len(valid)*(len(valid)-1)/2)
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			out = append(out, DistanceMeters(valid[i].Lat(), valid[i].Lon(), valid[j].Lat(), valid[j].Lon()))
		}
	}
	return out
}

// DistanceStats summarizes a set of distances. Negative and non-finite
// values are ignored.
func DistanceStats(distances []float64) (maxDist, avgDist float64) {
	var sum float64
	var n int
	for _, d := range distances {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		if d > maxDist {
			maxDist = d
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return maxDist, sum / float64(n)
}
