// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/metrics"
	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/store"
)

// Reconciler repairs duplicate threads: when two threads exist for the same
// participant pair (legacy data, or a uniqueness race that predates the pair
// index), it merges them into a single canonical thread. The job is
// idempotent; a pass over a clean store changes nothing.
type Reconciler struct {
	store    *store.Store
	interval time.Duration
}

// NewReconciler creates a reconciler that sweeps at the given interval when
// run as a service. Run may also be invoked directly (admin trigger).
func NewReconciler(st *store.Store, interval time.Duration) *Reconciler {
	return &Reconciler{store: st, interval: interval}
}

// Report summarizes one reconciliation pass.
type Report struct {
	ThreadsScanned int `json:"threadsScanned"`
	DuplicatePairs int `json:"duplicatePairs"`
	Merged         int `json:"merged"`
	Failed         int `json:"failed"`
}

// Serve runs periodic passes until the context is canceled. Implements the
// supervisor's service contract.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				logging.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

func (*Reconciler) String() string { return "reconciler" }

// Run executes one full pass: scan all threads, group by participant pair,
// and merge every pair that maps to more than one thread. Each merge runs in
// its own transaction so one failing pair does not poison the rest.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	metrics.ReconcileRuns.Inc()
	report := &Report{}

	// Scan phase: read-only, collects pair -> thread ids.
	pairs := make(map[string][]string)
	err := r.store.View(func(txn *badger.Txn) error {
		return store.AllThreads(txn, func(t *models.Thread) error {
			report.ThreadsScanned++
			if pk := t.PairKeyFor(); pk != "" {
				pairs[pk] = append(pairs[pk], t.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Merge phase: one transaction per duplicate pair.
	for pair, ids := range pairs {
		if len(ids) < 2 {
			continue
		}
		report.DuplicatePairs++

		if err := r.mergePair(pair, ids); err != nil {
			report.Failed++
			metrics.ReconcileFailures.Inc()
			logging.Ctx(ctx).Error().Err(err).
				Str("pair", pair).
				Strs("thread_ids", ids).
				Msg("duplicate thread merge failed")
			continue
		}
		report.Merged++
		metrics.ReconcileMerges.Inc()
	}

	metrics.ReconcileLastSuccess.SetToCurrentTime()
	logging.Ctx(ctx).Info().
		Int("scanned", report.ThreadsScanned).
		Int("duplicate_pairs", report.DuplicatePairs).
		Int("merged", report.Merged).
		Int("failed", report.Failed).
		Msg("reconciliation pass complete")
	return report, nil
}

// mergePair folds all of a pair's threads into the most recently updated one.
func (r *Reconciler) mergePair(pair string, ids []string) error {
	return r.store.Update(func(txn *badger.Txn) error {
		// Reload inside the transaction; a previous pass or a concurrent
		// merge may have removed some of the scanned threads already.
		var threads []*models.Thread
		for _, id := range ids {
			t, err := store.GetThread(txn, id)
			if errors.Is(err, store.ErrThreadNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			threads = append(threads, t)
		}
		if len(threads) < 2 {
			return nil
		}

		canonical := threads[0]
		for _, t := range threads[1:] {
			if t.UpdatedAt.After(canonical.UpdatedAt) {
				canonical = t
			}
		}

		for _, dup := range threads {
			if dup.ID == canonical.ID {
				continue
			}
			if err := mergeThread(txn, canonical, dup); err != nil {
				return err
			}
		}

		if err := store.RepointPair(txn, pair, canonical.ID); err != nil {
			return err
		}
		return store.PutThread(txn, canonical)
	})
}

// mergeThread moves everything owned by dup into canonical and deletes dup.
// Runs inside the caller's transaction.
func mergeThread(txn *badger.Txn, canonical, dup *models.Thread) error {
	// Collect first, then move: the move rewrites keys under the prefix
	// being iterated.
	var msgs []*models.Message
	if err := store.MessagesAscending(txn, dup.ID, func(m *models.Message) error {
		msgs = append(msgs, m)
		return nil
	}); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := store.MoveMessage(txn, m, canonical.ID); err != nil {
			return err
		}
	}

	// Per-user max, not sum: both counters describe overlapping views of the
	// same conversation, so adding them would double-count.
	if canonical.UnreadCount == nil {
		canonical.UnreadCount = make(map[string]int, 2)
	}
	for user, n := range dup.UnreadCount {
		if n > canonical.UnreadCount[user] {
			canonical.UnreadCount[user] = n
		}
	}

	if dup.LastMessage != nil &&
		(canonical.LastMessage == nil || dup.LastMessage.Timestamp.After(canonical.LastMessage.Timestamp)) {
		canonical.LastMessage = dup.LastMessage
	}
	if dup.UpdatedAt.After(canonical.UpdatedAt) {
		canonical.UpdatedAt = dup.UpdatedAt
	}
	if dup.CreatedAt.Before(canonical.CreatedAt) {
		canonical.CreatedAt = dup.CreatedAt
	}
	if canonical.MatchRef == "" {
		canonical.MatchRef = dup.MatchRef
	}

	invIDs, err := store.InvitationIDsForThread(txn, dup.ID)
	if err != nil {
		return err
	}
	for _, id := range invIDs {
		inv, err := store.GetInvitation(txn, id)
		if errors.Is(err, store.ErrInvitationNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := store.RepointInvitation(txn, inv, canonical.ID); err != nil {
			return err
		}
	}

	return store.DeleteThread(txn, dup)
}
