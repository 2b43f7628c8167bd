// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

/*
Package store provides the SQL snapshot store that detection reads from.

SQLStore implements detection.Store over database/sql with either the DuckDB
driver (github.com/duckdb/duckdb-go/v2, the default) or the pure-Go SQLite
driver (modernc.org/sqlite) for builds without cgo. Both share one schema
and one set of queries.

BreakerStore wraps any detection.Store with a sony/gobreaker circuit
breaker. Calls rejected by an open circuit return an error wrapping
detection.ErrStoreUnavailable.

# Usage

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
	    return err
	}
	defer s.Close()

	var src detection.Store = s
	if cfg.Database.Breaker.Enabled {
	    src = store.NewBreakerStore(s, cfg.Database.Breaker)
	}

# Metrics

Every query records trackguard_store_query_duration_seconds and, on
failure, trackguard_store_query_errors_total, labelled by operation.
*/
package store
