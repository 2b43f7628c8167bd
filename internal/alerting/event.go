// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package alerting

import (
	"fmt"
	"time"

	"github.com/tomtom215/trackguard/internal/detection"
)

// Message metadata keys.
const (
	MetadataDeviceID  = "device_id"
	MetadataSource    = "source"
	MetadataShadowKey = "shadow_key"
)

// Alert is the bus payload for one detection result.
type Alert struct {
	DetectionID string                    `json:"detection_id"`
	RunAt       time.Time                 `json:"run_at"`
	Result      detection.DetectionResult `json:"result"`
}

// CooldownKey identifies what an alert is about. Shadow results are keyed
// by profile, not address, so a rotating tracker does not re-alert on every
// new MAC.
func (a *Alert) CooldownKey() string {
	if a.Result.Source == detection.SourceShadow && a.Result.ShadowKey != "" {
		return "shadow:" + a.Result.ShadowKey
	}
	return fmt.Sprintf("device:%d", a.Result.Device.ID)
}
