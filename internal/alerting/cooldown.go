// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package alerting

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const cooldownKeyPrefix = "cooldown:"

// ErrCooldownClosed is returned after Close.
var ErrCooldownClosed = errors.New("cooldown store is closed")

// Cooldown remembers when each subject last alerted. Entries survive
// restarts when the store is opened on disk.
type Cooldown struct {
	db     *badger.DB
	window time.Duration
}

// OpenCooldown opens the cooldown store at path, or in memory when path
// is empty. A zero window disables suppression.
func OpenCooldown(path string, window time.Duration) (*Cooldown, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cooldown store: %w", err)
	}
	return &Cooldown{db: db, window: window}, nil
}

// Allow reports whether key may alert at now, and if so records now as its
// last alert time. Check and record happen in one transaction.
func (c *Cooldown) Allow(key string, now time.Time) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}
	if c.db.IsClosed() {
		return false, ErrCooldownClosed
	}

	allowed := false
	err := c.db.Update(func(txn *badger.Txn) error {
		k := []byte(cooldownKeyPrefix + key)

		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("get cooldown entry: %w", err)
		default:
			var last int64
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt cooldown entry for %s", key)
				}
				last = int64(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
			if now.Sub(time.UnixMilli(last)) < c.window {
				return nil
			}
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(now.UnixMilli()))
		// The TTL only lets badger drop stale entries; Allow compares times itself.
		if err := txn.SetEntry(badger.NewEntry(k, val).WithTTL(2 * c.window)); err != nil {
			return fmt.Errorf("set cooldown entry: %w", err)
		}
		allowed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Reset forgets key so its next alert is delivered.
func (c *Cooldown) Reset(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(cooldownKeyPrefix + key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete cooldown entry: %w", err)
		}
		return nil
	})
}

// Close closes the underlying store.
func (c *Cooldown) Close() error {
	return c.db.Close()
}
