// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/trackguard/internal/config"
	"github.com/tomtom215/trackguard/internal/detection"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

// Supported drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

const memoryPath = ":memory:"

// SQLStore reads the scan snapshot from DuckDB or SQLite. It implements
// detection.Store. Apart from the Seed helpers it never writes.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ detection.Store = (*SQLStore)(nil)

// Open opens the database named by cfg and creates the schema if needed.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLStore, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite && cfg.Path == memoryPath {
		// every sqlite connection gets its own private in-memory database
		maxOpen = 1
	}
	if maxOpen > 0 {
		conn.SetMaxOpenConns(maxOpen)
		conn.SetMaxIdleConns(maxOpen)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := New(conn, cfg.Driver)

	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite && cfg.Path != memoryPath {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			logging.Warn().Err(err).Msg("Failed to enable sqlite WAL mode")
		}
	}

	if err := s.InitSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("driver", cfg.Driver).
		Str("path", cfg.Path).
		Int("max_open_conns", maxOpen).
		Msg("Snapshot store opened")

	return s, nil
}

// New wraps an already opened connection. driver selects dialect details
// and must be DriverDuckDB or DriverSQLite.
func New(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// dataSourceName builds the driver-specific connection string and makes
// sure the parent directory of a file database exists.
func dataSourceName(cfg config.DatabaseConfig) (string, error) {
	if cfg.Path != memoryPath {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return "", fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	switch cfg.Driver {
	case DriverDuckDB:
		threads := cfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		dsn := fmt.Sprintf("%s?threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false", cfg.Path, threads)
		if cfg.MaxMemory != "" {
			dsn += "&max_memory=" + cfg.MaxMemory
		}
		return dsn, nil
	case DriverSQLite:
		if cfg.Path == memoryPath {
			return memoryPath, nil
		}
		return "file:" + cfg.Path + "?_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Driver returns the dialect the store was opened with.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// observe records the duration and outcome of one store operation.
func observe(operation string, start time.Time, err error) {
	metrics.RecordStoreQuery(operation, time.Since(start), err)
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database")
	}
}
