// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/brewline/brewline/internal/models"
)

// GetThread loads a thread document by id.
func GetThread(txn *badger.Txn, id string) (*models.Thread, error) {
	item, err := txn.Get(threadKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}

	var thread models.Thread
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &thread)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal thread: %w", err)
	}
	return &thread, nil
}

// PutThread writes a thread document. The caller owns id assignment and
// timestamp maintenance.
func PutThread(txn *badger.Txn, thread *models.Thread) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	if err := txn.Set(threadKey(thread.ID), data); err != nil {
		return fmt.Errorf("set thread: %w", err)
	}
	return nil
}

// IndexThread writes the pair and per-user indexes for a thread. Must run in
// the same transaction that creates the thread so the uniqueness constraint
// on the pair key is enforced atomically.
func IndexThread(txn *badger.Txn, thread *models.Thread) error {
	if err := txn.Set(pairKey(thread.PairKeyFor()), []byte(thread.ID)); err != nil {
		return fmt.Errorf("set pair index: %w", err)
	}
	for _, p := range thread.Participants {
		if err := txn.Set(userThreadKey(p, thread.ID), []byte(thread.ID)); err != nil {
			return fmt.Errorf("set user thread index: %w", err)
		}
	}
	return nil
}

// ThreadIDForPair looks up the thread registered for an unordered
// participant pair. Returns empty string when no thread exists. The read is
// tracked by the transaction, so a later IndexThread by a racing writer
// conflicts at commit.
func ThreadIDForPair(txn *badger.Txn, a, b string) (string, error) {
	item, err := txn.Get(pairKey(models.PairKey(a, b)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pair index: %w", err)
	}

	var id string
	if err := item.Value(func(val []byte) error {
		id = string(val)
		return nil
	}); err != nil {
		return "", err
	}
	return id, nil
}

// ThreadIDsForUser lists the ids of all threads the user participates in.
func ThreadIDsForUser(txn *badger.Txn, userID string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	prefix := userThreadScan(userID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// AllThreads iterates every thread document. Used by the reconciler's
// duplicate scan.
func AllThreads(txn *badger.Txn, fn func(*models.Thread) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(threadKeyPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var thread models.Thread
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &thread)
		}); err != nil {
			return fmt.Errorf("unmarshal thread: %w", err)
		}
		if err := fn(&thread); err != nil {
			return err
		}
	}
	return nil
}

// DeleteThread removes a thread document and its per-user index entries.
// It does NOT touch the pair index: the caller decides whether the pair key
// is deleted or repointed (the reconciler repoints it at the survivor).
func DeleteThread(txn *badger.Txn, thread *models.Thread) error {
	if err := txn.Delete(threadKey(thread.ID)); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	for _, p := range thread.Participants {
		if err := txn.Delete(userThreadKey(p, thread.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete user thread index: %w", err)
		}
	}
	return nil
}

// RepointPair overwrites the pair index entry to reference a new thread id.
func RepointPair(txn *badger.Txn, pair, threadID string) error {
	if err := txn.Set(pairKey(pair), []byte(threadID)); err != nil {
		return fmt.Errorf("repoint pair index: %w", err)
	}
	return nil
}
