// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/trackguard/internal/alerting"
	"github.com/tomtom215/trackguard/internal/api"
	"github.com/tomtom215/trackguard/internal/config"
	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/store"
	"github.com/tomtom215/trackguard/internal/supervisor"
	"github.com/tomtom215/trackguard/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The default logger is in place until Init runs.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		logging.Fatal().Err(err).Msg("Trackguard exited with error")
	}
	logging.Info().Msg("Trackguard stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("db_driver", cfg.Database.Driver).
		Str("db_path", cfg.Database.Path).
		Bool("detection_enabled", cfg.Detection.Enabled).
		Dur("interval", cfg.Detection.Interval).
		Bool("alerting_enabled", cfg.Alerting.Enabled).
		Bool("http_enabled", cfg.Server.Enabled).
		Msg("Starting Trackguard")

	sqlStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := sqlStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing snapshot store")
		}
	}()

	if cfg.Database.SeedDemoData {
		logging.Warn().Msg("Demo data seeding enabled (SEED_DEMO_DATA=true)")
		if err := sqlStore.SeedDemo(ctx, time.Now()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	var detectionStore detection.Store = sqlStore
	if cfg.Database.Breaker.Enabled {
		detectionStore = store.NewBreakerStore(sqlStore, cfg.Database.Breaker)
	}

	settings := config.NewSettingsProvider(cfg)
	algorithm := newAlgorithm(cfg, detectionStore, settings)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	var publisher services.AlertPublisher
	if cfg.Alerting.Enabled {
		bus := alerting.NewBus(nil)
		defer func() { _ = bus.Close() }()

		cooldown, err := alerting.OpenCooldown(cfg.Alerting.CooldownPath, cfg.Alerting.Cooldown)
		if err != nil {
			return err
		}
		defer func() {
			if err := cooldown.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing cooldown store")
			}
		}()

		consumer, err := alerting.NewConsumer(bus, cfg.Alerting.Topic, cooldown, alerting.LogSink{}, nil)
		if err != nil {
			return err
		}
		tree.AddAlertingService(consumer)
		publisher = alerting.NewPublisher(bus, cfg.Alerting.Topic, cfg.Alerting.MinScore)
	}

	interval := cfg.Detection.Interval
	if !cfg.Detection.Enabled {
		interval = 0
	}
	scheduler := services.NewSchedulerService(algorithm, publisher, services.SchedulerConfig{
		Interval:     interval,
		RunTimeout:   cfg.Detection.RunTimeout,
		TriggerRate:  cfg.Detection.TriggerRate,
		TriggerBurst: cfg.Detection.TriggerBurst,
	})
	tree.AddDetectionService(scheduler)

	if cfg.Server.Enabled {
		handler := api.NewHandler(algorithm, scheduler, settings, sqlStore, cfg.Detection.RunTimeout)
		server := &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           api.NewRouter(handler, cfg.Server),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP API enabled")
	}

	watchConfig(settings)

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// newAlgorithm wires the detection components from configuration.
func newAlgorithm(cfg *config.Config, st detection.Store, settings detection.SettingsProvider) *detection.Algorithm {
	patterns := detection.NewPatternMatcher()
	patterns.Configure(cfg.PatternMatcherConfig())

	movement := detection.NewMovementCorrelationCalculator()
	movement.Configure(cfg.MovementCalculatorConfig())

	rotation := detection.NewMacRotationDetector()
	rotation.Configure(cfg.RotationDetectorConfig())

	algorithm := detection.NewAlgorithm(
		st,
		settings,
		detection.NewThreatScoreCalculator(patterns, movement),
		detection.NewShadowAnalyzer(st, rotation),
	)
	algorithm.Configure(cfg.AlgorithmConfig())
	algorithm.SetLinkDecider(detection.NewLinkDecider(cfg.LinkDeciderConfig()))
	return algorithm
}

// watchConfig reloads detection thresholds and the log level when the
// config file changes. Other settings need a restart.
func watchConfig(settings *config.SettingsProvider) {
	path := config.FindConfigFile()
	if path == "" {
		return
	}

	err := config.WatchConfigFile(path, func() {
		next, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid configuration change")
			return
		}
		if err := settings.Update(next.DetectionSettings()); err != nil {
			logging.Warn().Err(err).Msg("Ignoring invalid detection settings")
			return
		}
		logging.SetLevelString(next.Logging.Level)
		logging.Info().Str("path", path).Msg("Configuration reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watching disabled")
	}
}
