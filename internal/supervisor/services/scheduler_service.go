// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
)

// ErrTriggerLimited is returned by Trigger when on-demand runs are
// requested faster than the configured rate.
var ErrTriggerLimited = errors.New("detection run rate limit exceeded")

// Detector runs one detection pass. Satisfied by *detection.Algorithm.
type Detector interface {
	RunDetection(ctx context.Context) ([]detection.DetectionResult, error)
}

// AlertPublisher receives the results of every completed run. Satisfied by
// *alerting.Publisher.
type AlertPublisher interface {
	Publish(ctx context.Context, runAt time.Time, results []detection.DetectionResult) (int, error)
}

// Snapshot is the outcome of one detection run.
type Snapshot struct {
	RunAt    time.Time                   `json:"run_at"`
	Duration time.Duration               `json:"duration_ns"`
	Trigger  string                      `json:"trigger"`
	Partial  bool                        `json:"partial"`
	Results  []detection.DetectionResult `json:"results"`
}

// Run trigger labels.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// SchedulerConfig configures a SchedulerService.
type SchedulerConfig struct {
	// Interval between scheduled runs. Zero disables the schedule; Trigger
	// still works.
	Interval time.Duration

	// RunTimeout bounds one run.
	RunTimeout time.Duration

	// TriggerRate and TriggerBurst limit on-demand runs.
	TriggerRate  float64
	TriggerBurst int
}

// SchedulerService runs detection on a fixed interval and on demand, keeps
// the latest snapshot for the API, and publishes results as alerts.
//
// Runs never overlap. A run that fails outright keeps the previous
// snapshot; a cancelled run replaces it with its partial results.
type SchedulerService struct {
	detector  Detector
	publisher AlertPublisher
	config    SchedulerConfig
	limiter   *rate.Limiter
	now       func() time.Time

	runMu sync.Mutex

	mu      sync.RWMutex
	latest  *Snapshot
	lastErr error
	runs    int

	name string
}

// NewSchedulerService creates the scheduler. publisher may be nil when
// alerting is disabled.
func NewSchedulerService(detector Detector, publisher AlertPublisher, cfg SchedulerConfig) *SchedulerService {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.TriggerRate <= 0 {
		cfg.TriggerRate = 0.2
	}
	if cfg.TriggerBurst < 1 {
		cfg.TriggerBurst = 1
	}
	return &SchedulerService{
		detector:  detector,
		publisher: publisher,
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.TriggerRate), cfg.TriggerBurst),
		now:       time.Now,
		name:      "detection-scheduler",
	}
}

// Serve implements suture.Service. The first run starts immediately.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if s.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Info().Dur("interval", s.config.Interval).Msg("Detection scheduler started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.run(ctx, TriggerScheduled); err != nil && ctx.Err() == nil {
			// Store outages are retried on the next tick rather than by
			// restarting the service.
			logging.Warn().Err(err).Msg("Scheduled detection run failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Trigger runs detection now and returns its snapshot. It returns
// ErrTriggerLimited without running when called too often.
func (s *SchedulerService) Trigger(ctx context.Context) (*Snapshot, error) {
	if !s.limiter.Allow() {
		return nil, ErrTriggerLimited
	}
	return s.run(ctx, TriggerManual)
}

// Latest returns the most recent snapshot, or nil before the first run.
func (s *SchedulerService) Latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// LastError returns the error of the most recent run, nil if it succeeded.
func (s *SchedulerService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Runs returns how many runs have completed, successfully or not.
func (s *SchedulerService) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

func (s *SchedulerService) run(ctx context.Context, trigger string) (*Snapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := s.now()
	results, err := s.detector.RunDetection(runCtx)
	snap := &Snapshot{
		RunAt:    start,
		Duration: s.now().Sub(start),
		Trigger:  trigger,
		Partial:  err != nil && runCtx.Err() != nil,
		Results:  results,
	}
	if snap.Results == nil {
		snap.Results = []detection.DetectionResult{}
	}

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	if err == nil || snap.Partial {
		s.latest = snap
	}
	s.mu.Unlock()

	if err != nil {
		if snap.Partial {
			return snap, fmt.Errorf("detection run incomplete: %w", err)
		}
		return nil, fmt.Errorf("detection run: %w", err)
	}

	if s.publisher != nil && len(results) > 0 {
		if _, err := s.publisher.Publish(ctx, start, results); err != nil {
			// The snapshot is still valid; only the alerts are lost.
			logging.Error().Err(err).Int("results", len(results)).Msg("Failed to publish detection alerts")
		}
	}
	return snap, nil
}

// String implements fmt.Stringer for suture's logs.
func (s *SchedulerService) String() string {
	return s.name
}
