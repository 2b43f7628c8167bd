// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package alerting

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/trackguard/internal/detection"
)

func openTestCooldown(t *testing.T, window time.Duration) *Cooldown {
	t.Helper()
	c, err := OpenCooldown("", window)
	if err != nil {
		t.Fatalf("OpenCooldown() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCooldownAllow(t *testing.T) {
	t.Parallel()

	c := openTestCooldown(t, time.Hour)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	steps := []struct {
		name string
		key  string
		at   time.Duration
		want bool
	}{
		{"first alert", "device:1", 0, true},
		{"inside window", "device:1", 30 * time.Minute, false},
		{"other subject", "device:2", 30 * time.Minute, true},
		{"just before expiry", "device:1", 59 * time.Minute, false},
		{"window elapsed", "device:1", time.Hour, true},
		{"window restarts", "device:1", 90 * time.Minute, false},
	}

	for _, s := range steps {
		got, err := c.Allow(s.key, base.Add(s.at))
		if err != nil {
			t.Fatalf("%s: Allow() error = %v", s.name, err)
		}
		if got != s.want {
			t.Errorf("%s: Allow(%q, +%v) = %v, want %v", s.name, s.key, s.at, got, s.want)
		}
	}
}

func TestCooldownZeroWindow(t *testing.T) {
	t.Parallel()

	c := openTestCooldown(t, 0)
	now := time.Now()
	for i := range 3 {
		ok, err := c.Allow("device:1", now)
		if err != nil || !ok {
			t.Fatalf("call %d: Allow() = %v, %v; want true, nil", i, ok, err)
		}
	}
}

func TestCooldownReset(t *testing.T) {
	t.Parallel()

	c := openTestCooldown(t, time.Hour)
	now := time.Now()

	if ok, _ := c.Allow("shadow:k", now); !ok {
		t.Fatal("first Allow() = false")
	}
	if ok, _ := c.Allow("shadow:k", now); ok {
		t.Fatal("second Allow() = true, want suppressed")
	}
	if err := c.Reset("shadow:k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if ok, _ := c.Allow("shadow:k", now); !ok {
		t.Error("Allow() after Reset = false, want true")
	}
	if err := c.Reset("never-seen"); err != nil {
		t.Errorf("Reset(unknown) error = %v", err)
	}
}

func TestCooldownClosed(t *testing.T) {
	t.Parallel()

	c, err := OpenCooldown("", time.Hour)
	if err != nil {
		t.Fatalf("OpenCooldown() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = c.Allow("device:1", time.Now())
	if !errors.Is(err, ErrCooldownClosed) {
		t.Errorf("Allow() after Close error = %v, want ErrCooldownClosed", err)
	}
}

func TestCooldownOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()

	c, err := OpenCooldown(dir, time.Hour)
	if err != nil {
		t.Fatalf("OpenCooldown() error = %v", err)
	}
	if ok, _ := c.Allow("device:7", now); !ok {
		t.Fatal("first Allow() = false")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenCooldown(dir, time.Hour)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if ok, _ := reopened.Allow("device:7", now.Add(time.Minute)); ok {
		t.Error("Allow() after reopen = true, want cooldown to survive restart")
	}
}

func TestAlertCooldownKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result detection.DetectionResult
		want   string
	}{
		{
			name:   "device result",
			result: detection.DetectionResult{Device: detection.ScannedDevice{ID: 42}, Source: detection.SourceDevice},
			want:   "device:42",
		},
		{
			name: "shadow result",
			result: detection.DetectionResult{
				Device:    detection.ScannedDevice{ID: 42},
				Source:    detection.SourceShadow,
				ShadowKey: "M:004C|T:TRACKER",
			},
			want: "shadow:M:004C|T:TRACKER",
		},
		{
			name:   "shadow without key",
			result: detection.DetectionResult{Device: detection.ScannedDevice{ID: 9}, Source: detection.SourceShadow},
			want:   "device:9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Alert{Result: tt.result}
			if got := a.CooldownKey(); got != tt.want {
				t.Errorf("CooldownKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
