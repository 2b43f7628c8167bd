// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
)

// SettingsProvider serves detection thresholds from loaded configuration
// and lets them be replaced at runtime. Each detection run reads a fresh
// copy, so an update takes effect on the next run.
type SettingsProvider struct {
	mu       sync.RWMutex
	settings detection.Settings
}

// NewSettingsProvider seeds the provider from cfg.
func NewSettingsProvider(cfg *Config) *SettingsProvider {
	return &SettingsProvider{settings: cfg.DetectionSettings()}
}

// Settings implements detection.SettingsProvider.
func (p *SettingsProvider) Settings(ctx context.Context) (detection.Settings, error) {
	if err := ctx.Err(); err != nil {
		return detection.Settings{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings, nil
}

// Update replaces the thresholds after validating them.
func (p *SettingsProvider) Update(s detection.Settings) error {
	if s.AlertThreshold < 2 {
		return fmt.Errorf("alert threshold must be at least 2, got %d", s.AlertThreshold)
	}
	if s.MinDetectionDistanceMeters < 0 {
		return fmt.Errorf("min detection distance must not be negative, got %.1f", s.MinDetectionDistanceMeters)
	}
	if s.MinThreatScore < 0 || s.MinThreatScore > 1 {
		return fmt.Errorf("min threat score must be between 0 and 1, got %.3f", s.MinThreatScore)
	}
	if s.MinShadowScore < 0 || s.MinShadowScore > 1 {
		return fmt.Errorf("min shadow score must be between 0 and 1, got %.3f", s.MinShadowScore)
	}
	if s.PathLookback < 0 {
		return fmt.Errorf("path lookback must not be negative, got %s", s.PathLookback)
	}

	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()

	logging.Info().
		Int("alert_threshold", s.AlertThreshold).
		Float64("min_distance_meters", s.MinDetectionDistanceMeters).
		Float64("min_threat_score", s.MinThreatScore).
		Msg("Detection settings updated")
	return nil
}
