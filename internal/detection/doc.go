// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

// Package detection is the covert-tracker detection and correlation engine.
//
// It turns stored sightings of Bluetooth devices into a ranked list of
// devices that appear to be following the carrier, each with an explained
// threat score.
//
// Architecture:
//
//	DeviceStore / LocationStore / PathStore / ShadowStore
//	        |
//	        v
//	Algorithm ──> PatternMatcher, MacRotationDetector, ShadowKeyGenerator
//	        |        (pure, per-call)
//	        v
//	ThreatScoreCalculator, ShadowAnalyzer
//	        |
//	        v
//	[]DetectionResult (sorted by threat score)
//
// The engine only reads. Every run takes a point-in-time view of the store,
// scores devices concurrently, and merges in shadow-profile findings for
// trackers that rotate their MAC address. A device or shadow profile that
// appears only near the carrier (all sightings within
// MinDetectionDistanceMeters) or at fewer than AlertThreshold places is
// never reported.
//
// Threat score factors:
//
//	Factor          Formula                                Cap
//	location count  min(count/10, 1) * 0.30                0.30
//	max distance    min(maxMeters/10000, 1) * 0.25         0.25
//	time span       <1h 0.05, <24h 0.15, else 0.20         0.20
//	regularity      mean <1h 0.15, VERY_REGULAR 0.12,      0.15
//	                REGULAR 0.10, IRREGULAR 0.05
//	device type     PHONE/TABLET 0.10, WATCH/TRACKER 0.08, 0.10
//	                HEADPHONES 0.05, other 0.07
//
// When movement data is available the enhanced score is
// 0.8 * base + 0.2 * movement correlation.
//
// Missing data never produces an error: empty inputs score 0 and malformed
// records are skipped. Store failures are returned wrapped; calls rejected by
// the store circuit breaker wrap ErrStoreUnavailable.
package detection
