// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LinkDecision is the outcome of comparing a newly seen address with an
// existing device. It is one of FingerprintMatch, NameMatch, TemporalScore
// or NoMatch.
type LinkDecision interface {
	// Strength is the link strength to record, or "" when no link should be made.
	Strength() LinkStrength
	// Reason is a human-readable explanation stored with the link.
	Reason() string

	isLinkDecision()
}

// FingerprintMatch means both payload fingerprints are identical.
type FingerprintMatch struct {
	Fingerprint string
}

func (FingerprintMatch) Strength() LinkStrength { return LinkStrong }
func (m FingerprintMatch) Reason() string {
	return fmt.Sprintf("payload fingerprint %s", m.Fingerprint)
}
func (FingerprintMatch) isLinkDecision() {}

// NameMatch means both devices advertise the same non-empty name.
type NameMatch struct {
	Name string
}

func (NameMatch) Strength() LinkStrength { return LinkWeak }
func (m NameMatch) Reason() string       { return fmt.Sprintf("advertised name %q", m.Name) }
func (NameMatch) isLinkDecision()        {}

// TemporalScore means the new address appeared right after the old one went
// quiet with a similar signal. Only scores at or above the link threshold
// produce a link.
type TemporalScore struct {
	Score     float64
	Threshold float64
}

func (s TemporalScore) Strength() LinkStrength {
	if s.Score >= s.Threshold {
		return LinkWeak
	}
	return ""
}
func (s TemporalScore) Reason() string {
	return fmt.Sprintf("temporal hand-off score %.2f", s.Score)
}
func (TemporalScore) isLinkDecision() {}

// NoMatch means there is no evidence for a link.
type NoMatch struct{}

func (NoMatch) Strength() LinkStrength { return "" }
func (NoMatch) Reason() string         { return "no match" }
func (NoMatch) isLinkDecision()        {}

// LinkConfig configures LinkDecider.
type LinkConfig struct {
	// MaxGap is the longest quiet period between the two addresses.
	MaxGap time.Duration `json:"max_gap"`
	// MaxRSSIDelta is the largest signal difference in dB still considered
	// the same radio.
	MaxRSSIDelta float64 `json:"max_rssi_delta"`
	// MinTemporalScore is the score a TemporalScore needs to produce a link.
	MinTemporalScore float64 `json:"min_temporal_score"`
}

// DefaultLinkConfig returns the stock link parameters.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		MaxGap:           5 * time.Minute,
		MaxRSSIDelta:     15,
		MinTemporalScore: 0.6,
	}
}

// LinkDecider decides whether a candidate address belongs to an existing device.
type LinkDecider struct {
	config LinkConfig
}

// NewLinkDecider creates a decider. A zero config uses the defaults.
func NewLinkDecider(cfg LinkConfig) *LinkDecider {
	if cfg == (LinkConfig{}) {
		cfg = DefaultLinkConfig()
	}
	return &LinkDecider{config: cfg}
}

// DecideLink checks, in order: identical payload fingerprints, identical
// advertised names, then hand-off timing and signal similarity.
func (l *LinkDecider) DecideLink(candidate, existing *ScannedDevice) LinkDecision {
	if candidate == nil || existing == nil || candidate.ID == existing.ID {
		return NoMatch{}
	}

	if fp := candidate.PayloadFingerprint; fp != "" && fp == existing.PayloadFingerprint {
		return FingerprintMatch{Fingerprint: fp}
	}

	if name := strings.TrimSpace(candidate.Name); name != "" && strings.EqualFold(name, strings.TrimSpace(existing.Name)) {
		return NameMatch{Name: name}
	}

	if score, ok := l.temporalScore(candidate, existing); ok {
		return TemporalScore{Score: score, Threshold: l.config.MinTemporalScore}
	}
	return NoMatch{}
}

// temporalScore averages gap closeness and RSSI closeness. It requires the
// candidate to appear after the existing device was last seen, within MaxGap.
func (l *LinkDecider) temporalScore(candidate, existing *ScannedDevice) (float64, bool) {
	if candidate.FirstSeen.IsZero() || existing.LastSeen.IsZero() {
		return 0, false
	}
	gap := candidate.FirstSeen.Sub(existing.LastSeen)
	if gap < 0 || gap > l.config.MaxGap || l.config.MaxGap <= 0 {
		return 0, false
	}

	gapScore := 1 - gap.Seconds()/l.config.MaxGap.Seconds()

	rssiScore := 0.0
	if l.config.MaxRSSIDelta > 0 {
		delta := math.Abs(float64(candidate.HighestRSSI - existing.HighestRSSI))
		rssiScore = math.Max(0, 1-delta/l.config.MaxRSSIDelta)
	}
	return clamp01(0.5*gapScore + 0.5*rssiScore), true
}
