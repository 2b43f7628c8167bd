// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

// Package logging provides the zerolog-based structured logger used by every
// Trackguard component.
//
// JSON output is the default; console output is available for development.
// A detection run carries a short correlation ID in its context so every log
// line from that run can be grouped:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Int("results", len(results)).Msg("detection run complete")
//
// Two adapters route third-party logging into the same stream:
//   - SlogHandler for log/slog consumers such as sutureslog
//   - WatermillAdapter for the alert bus
//
// Always terminate event chains with Msg or Send, otherwise nothing is written.
package logging
