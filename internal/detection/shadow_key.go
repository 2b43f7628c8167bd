// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// ShadowKeySeparator joins shadow key tokens.
	ShadowKeySeparator = "|"

	// MaxShadowKeyTokens is the number of distinct attributes a key can carry.
	MaxShadowKeyTokens = 8

	// minShadowKeyTokens below which a profile is too generic to group by.
	minShadowKeyTokens = 2

	serviceUUIDPrefixLen = 8
)

// ShadowKeyGenerator derives MAC-independent profile keys from stable
// advertisement attributes. It is stateless.
type ShadowKeyGenerator struct{}

// NewShadowKeyGenerator returns a generator.
func NewShadowKeyGenerator() *ShadowKeyGenerator {
	return &ShadowKeyGenerator{}
}

// Generate builds the shadow key for a device. Each present attribute adds
// one token:
//
//	M:%04X   manufacturer id (omitted when 0)
//	T:<type> device type (omitted when unknown)
//	AC:%02X  Apple continuity type
//	TR:1     tracker flag
//	FM:1     Find My separated flag
//	B:<type> beacon type
//	TX:<dBm> TX power level
//	S:<hex>  first 8 hex digits of the first service UUID
//
// Tokens are sorted and joined with "|". Fewer than two tokens yields
// ("", false).
func (g *ShadowKeyGenerator) Generate(d *ScannedDevice) (string, bool) {
	if d == nil {
		return "", false
	}

	tokens := make([]string, 0, MaxShadowKeyTokens)
	if d.ManufacturerID != 0 {
		tokens = append(tokens, fmt.Sprintf("M:%04X", d.ManufacturerID))
	}
	if d.DeviceType.Known() {
		tokens = append(tokens, "T:"+string(d.DeviceType))
	}
	if d.AppleContinuityType != nil {
		tokens = append(tokens, fmt.Sprintf("AC:%02X", *d.AppleContinuityType))
	}
	if d.IsTracker {
		tokens = append(tokens, "TR:1")
	}
	if d.FindMySeparated {
		tokens = append(tokens, "FM:1")
	}
	if b := strings.TrimSpace(d.BeaconType); b != "" {
		tokens = append(tokens, "B:"+b)
	}
	if d.TxPowerLevel != nil {
		tokens = append(tokens, "TX:"+strconv.Itoa(*d.TxPowerLevel))
	}
	if s := serviceUUIDPrefix(d.ServiceUUIDs); s != "" {
		tokens = append(tokens, "S:"+s)
	}

	if len(tokens) < minShadowKeyTokens {
		return "", false
	}
	sort.Strings(tokens)
	return strings.Join(tokens, ShadowKeySeparator), true
}

func serviceUUIDPrefix(uuids []string) string {
	if len(uuids) == 0 {
		return ""
	}
	hex := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(uuids[0]), "-", ""))
	if len(hex) > serviceUUIDPrefixLen {
		hex = hex[:serviceUUIDPrefixLen]
	}
	return hex
}

// SpecificityScore is the token count of key divided by MaxShadowKeyTokens.
func SpecificityScore(key string) float64 {
	if key == "" {
		return 0
	}
	n := len(strings.Split(key, ShadowKeySeparator))
	return clamp01(float64(n) / MaxShadowKeyTokens)
}

// ShouldReplace reports whether a stored shadow key should be overwritten
// by a newly computed one. A key is only ever replaced by a strictly more
// specific key, so specificity never goes down.
func ShouldReplace(existing, candidate string) bool {
	if candidate == "" {
		return false
	}
	if existing == "" {
		return true
	}
	return SpecificityScore(candidate) > SpecificityScore(existing)
}
