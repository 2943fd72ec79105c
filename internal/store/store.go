// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package store persists threads, messages and invitations in BadgerDB.
//
// All accessors are transaction-scoped: they take a *badger.Txn so the
// coordinator can compose multi-document mutations into one serializable
// transaction. Badger detects read-write conflicts at commit time, which is
// what makes the one-thread-per-pair constraint authoritative: two racing
// creators both read the missing pair key, both write it, and exactly one
// commit succeeds while the loser observes badger.ErrConflict.
//
// Key layout:
//
//	thread:<id>                        thread document
//	pair:<a>|<b>                       unordered participant pair -> thread id
//	userthread:<userID>:<threadID>     per-user thread listing index
//	msg:<threadID>:<nano20>:<msgID>    message document, time-ordered per thread
//	msgid:<msgID>                      message id -> full msg key
//	inv:<id>                           invitation document
//	invthread:<threadID>:<invID>       thread -> invitation back-index
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/logging"
)

// Sentinel errors surfaced by the store. The coordinator and API layers
// compare with errors.Is.
var (
	// ErrThreadNotFound indicates the thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvitationNotFound indicates the invitation does not exist.
	ErrInvitationNotFound = errors.New("invitation not found")
)

// Store wraps the Badger instance holding all messaging documents.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database from configuration.
// With InMemory set, nothing touches disk; used by tests.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger logs through its own interface; route it to zerolog.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs a read-only transaction.
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// Update runs a read-write transaction. Returns badger.ErrConflict when a
// concurrent transaction committed a conflicting write first.
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

// IsConflict reports whether the error is a serialization conflict.
func IsConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

// RunGC runs the value-log garbage collector until the context is canceled.
// Badger requires periodic GC since it never reclaims value-log space on its
// own.
func (s *Store) RunGC(ctx context.Context, interval time.Duration, discardRatio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite is normal: nothing worth collecting.
			if err := s.db.RunValueLogGC(discardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log gc failed")
			}
		}
	}
}

// badgerLogger adapts Badger's logger interface to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
