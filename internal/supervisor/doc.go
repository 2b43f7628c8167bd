// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package supervisor runs Trackguard's long-lived services under suture v4.

# Overview

	RootSupervisor ("trackguard")
	├── DetectionSupervisor ("detection-layer")
	│   └── SchedulerService
	├── AlertingSupervisor ("alerting-layer")
	│   └── alerting.Consumer (if ALERTING_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if HTTP_ENABLED)

Each layer restarts its own services with backoff. A consumer that keeps
crashing does not stop scheduled runs, and the API keeps serving the last
snapshot while the detection layer backs off.

Supervisor events are logged through sutureslog, backed by the zerolog
global logger via logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDetectionService(scheduler)
	tree.AddAlertingService(consumer)
	tree.AddAPIService(httpService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tree.Serve(ctx)

Services are in the services subpackage.
*/
package supervisor
