// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

// Package geo provides the geometric primitives used by the detection engine.
//
// Distances are great-circle distances in meters computed on the S2 sphere
// (github.com/golang/geo/s2). The Grid type is a spatial hash used to find
// nearby points without scanning every candidate, which keeps greedy place
// clustering close to linear in the number of places.
//
// Coordinates follow the convention used across the repository: (0, 0) is a
// sentinel for "unknown", see IsUnknown.
package geo
