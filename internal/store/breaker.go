// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trackguard/internal/config"
	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

// BreakerStore wraps a detection.Store with a circuit breaker. While the
// circuit is open every call fails fast with an error wrapping
// detection.ErrStoreUnavailable, so a dead database aborts a detection run
// at its first query instead of timing out per device.
//
// The breaker uses real time for its interval and timeout. Tests trip it
// with a failing inner store rather than by waiting.
type BreakerStore struct {
	inner detection.Store
	cb    *gobreaker.CircuitBreaker[interface{}]
	name  string
}

var _ detection.Store = (*BreakerStore)(nil)

// NewBreakerStore wraps inner. The circuit opens once at least
// cfg.MinRequests calls were made in the current interval and the failure
// ratio reaches cfg.FailureRatio.
func NewBreakerStore(inner detection.Store, cfg config.BreakerConfig) *BreakerStore {
	cbName := "snapshot-store"

	// Initialize circuit breaker state metrics
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.FailureRatio

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		// A cancelled run says nothing about database health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerStore{
		inner: inner,
		cb:    cb,
		name:  cbName,
	}
}

// State returns the current circuit state as "closed", "half-open" or "open".
func (b *BreakerStore) State() string {
	return stateToString(b.cb.State())
}

// execute runs fn under the breaker and records the outcome.
func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, fmt.Errorf("%w: %w", detection.ErrStoreUnavailable, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// call is execute with a typed result.
func call[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func (b *BreakerStore) CandidateDevices(ctx context.Context, minLocations int) ([]detection.ScannedDevice, error) {
	return call(b, func() ([]detection.ScannedDevice, error) {
		return b.inner.CandidateDevices(ctx, minLocations)
	})
}

func (b *BreakerStore) Device(ctx context.Context, id int64) (*detection.ScannedDevice, error) {
	return call(b, func() (*detection.ScannedDevice, error) {
		return b.inner.Device(ctx, id)
	})
}

func (b *BreakerStore) DevicesLinkedTo(ctx context.Context, primaryID int64) ([]detection.ScannedDevice, error) {
	return call(b, func() ([]detection.ScannedDevice, error) {
		return b.inner.DevicesLinkedTo(ctx, primaryID)
	})
}

func (b *BreakerStore) DevicesByFingerprint(ctx context.Context, fingerprint string) ([]detection.ScannedDevice, error) {
	return call(b, func() ([]detection.ScannedDevice, error) {
		return b.inner.DevicesByFingerprint(ctx, fingerprint)
	})
}

func (b *BreakerStore) WhitelistedDeviceIDs(ctx context.Context) ([]int64, error) {
	return call(b, func() ([]int64, error) {
		return b.inner.WhitelistedDeviceIDs(ctx)
	})
}

func (b *BreakerStore) LocationsForDevices(ctx context.Context, deviceIDs []int64) ([]detection.Location, error) {
	return call(b, func() ([]detection.Location, error) {
		return b.inner.LocationsForDevices(ctx, deviceIDs)
	})
}

func (b *BreakerStore) RecordsForDevices(ctx context.Context, deviceIDs []int64) ([]detection.DeviceLocationRecord, error) {
	return call(b, func() ([]detection.DeviceLocationRecord, error) {
		return b.inner.RecordsForDevices(ctx, deviceIDs)
	})
}

func (b *BreakerStore) AllLocations(ctx context.Context) ([]detection.Location, error) {
	return call(b, func() ([]detection.Location, error) {
		return b.inner.AllLocations(ctx)
	})
}

func (b *BreakerStore) LocationsByIDs(ctx context.Context, ids []int64) ([]detection.Location, error) {
	return call(b, func() ([]detection.Location, error) {
		return b.inner.LocationsByIDs(ctx, ids)
	})
}

func (b *BreakerStore) PathSince(ctx context.Context, since time.Time) ([]detection.UserPath, error) {
	return call(b, func() ([]detection.UserPath, error) {
		return b.inner.PathSince(ctx, since)
	})
}

func (b *BreakerStore) ShadowKeysWithMinLocations(ctx context.Context, minLocations int) ([]string, error) {
	return call(b, func() ([]string, error) {
		return b.inner.ShadowKeysWithMinLocations(ctx, minLocations)
	})
}

func (b *BreakerStore) DeviceIDsByLocationForShadowKey(ctx context.Context, shadowKey string) (map[int64][]int64, error) {
	return call(b, func() (map[int64][]int64, error) {
		return b.inner.DeviceIDsByLocationForShadowKey(ctx, shadowKey)
	})
}

func (b *BreakerStore) DevicesByShadowKey(ctx context.Context, shadowKey string) ([]detection.ScannedDevice, error) {
	return call(b, func() ([]detection.ScannedDevice, error) {
		return b.inner.DevicesByShadowKey(ctx, shadowKey)
	})
}
