// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/trackguard/internal/validation"
)

// movementWeightTolerance absorbs float rounding in YAML-supplied weights.
const movementWeightTolerance = 1e-9

// Validate checks that configuration is present and valid. Field-level
// rules live in the validate struct tags; the cross-field rules below cover
// what tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validatePattern(); err != nil {
		return err
	}

	if err := c.validateMovement(); err != nil {
		return err
	}

	return c.validateDatabase()
}

// validatePattern requires the CV cutoffs to be ordered.
func (c *Config) validatePattern() error {
	if c.Pattern.VeryRegularCV >= c.Pattern.RegularCV {
		return fmt.Errorf("pattern.very_regular_cv (%.3f) must be less than pattern.regular_cv (%.3f)",
			c.Pattern.VeryRegularCV, c.Pattern.RegularCV)
	}
	return nil
}

// validateMovement requires the movement sub-score weights to sum to 1.
func (c *Config) validateMovement() error {
	m := c.Movement
	sum := m.SyncWeight + m.RouteWeight + m.DwellWeight + m.TimePatternWeight
	if math.Abs(sum-1) > movementWeightTolerance {
		return fmt.Errorf("movement weights must sum to 1, got %.4f", sum)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DB_PATH is required (use :memory: for an in-memory store)")
	}
	if c.Database.Breaker.MaxRequests > c.Database.Breaker.MinRequests {
		return fmt.Errorf("database.breaker.max_requests (%d) must not exceed database.breaker.min_requests (%d)",
			c.Database.Breaker.MaxRequests, c.Database.Breaker.MinRequests)
	}
	return nil
}
