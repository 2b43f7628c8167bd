// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package services adapts Trackguard components to suture.Service.

# Available Services

SchedulerService:
  - Runs detection every Detection.Interval, starting immediately
  - Trigger runs on demand, limited by a golang.org/x/time/rate limiter
  - Keeps the latest snapshot for the API and publishes results as alerts
  - Never overlaps runs

HTTPServerService:
  - Wraps *http.Server, converting ListenAndServe to Serve
  - Drains open requests on shutdown

The alert consumer (*alerting.Consumer) already implements Serve and is
added to the tree directly.

# Usage

	sched := services.NewSchedulerService(algorithm, publisher, services.SchedulerConfig{
	    Interval:     cfg.Detection.Interval,
	    RunTimeout:   cfg.Detection.RunTimeout,
	    TriggerRate:  cfg.Detection.TriggerRate,
	    TriggerBurst: cfg.Detection.TriggerBurst,
	})
	tree.AddDetectionService(sched)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
*/
package services
