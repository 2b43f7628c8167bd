// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/trackguard/internal/config"
	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/supervisor/services"
)

// Engine is the part of *detection.Algorithm the API calls directly.
type Engine interface {
	RunDetectionForDevice(ctx context.Context, id int64) (*detection.DetectionResult, error)
	FindSuspiciousShadows(ctx context.Context) ([]detection.ShadowAnalysisResult, error)
}

// Scheduler is the part of *services.SchedulerService the API uses.
type Scheduler interface {
	Trigger(ctx context.Context) (*services.Snapshot, error)
	Latest() *services.Snapshot
	LastError() error
}

// SettingsStore reads and replaces detection thresholds. Satisfied by
// *config.SettingsProvider.
type SettingsStore interface {
	Settings(ctx context.Context) (detection.Settings, error)
	Update(s detection.Settings) error
}

// Pinger reports store health. Satisfied by *store.SQLStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the Trackguard HTTP API.
type Handler struct {
	engine    Engine
	scheduler Scheduler
	settings  SettingsStore
	store     Pinger

	requestTimeout time.Duration
	startedAt      time.Time
}

// NewHandler creates a handler. requestTimeout bounds on-demand detection
// work done inside a request.
func NewHandler(engine Engine, scheduler Scheduler, settings SettingsStore, store Pinger, requestTimeout time.Duration) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Handler{
		engine:         engine,
		scheduler:      scheduler,
		settings:       settings,
		store:          store,
		requestTimeout: requestTimeout,
		startedAt:      time.Now(),
	}
}

// NewRouter builds the chi router.
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/detections
//	POST /api/v1/detections/run
//	GET  /api/v1/devices/{id}/detection
//	GET  /api/v1/shadows
//	GET  /api/v1/settings
//	PUT  /api/v1/settings
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(apiSecurityHeaders)

		r.Get("/detections", h.Detections)
		r.Post("/detections/run", h.RunDetection)
		r.Get("/devices/{id}/detection", h.DeviceDetection)
		r.Get("/shadows", h.Shadows)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
	})

	return r
}
