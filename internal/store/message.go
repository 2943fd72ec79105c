// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/brewline/brewline/internal/models"
)

// AppendMessage writes a message document plus its id lookup entry.
// The caller is responsible for updating the owning thread's lastMessage
// cache and unread counters in the same transaction.
func AppendMessage(txn *badger.Txn, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := messageKey(msg.ThreadID, msg.CreatedAt, msg.ID)
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set message: %w", err)
	}
	if err := txn.Set(messageIDKey(msg.ID), key); err != nil {
		return fmt.Errorf("set message id index: %w", err)
	}
	return nil
}

// GetMessage loads a message by id via the id lookup entry.
func GetMessage(txn *badger.Txn, id string) (*models.Message, error) {
	idItem, err := txn.Get(messageIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message id index: %w", err)
	}

	var key []byte
	if err := idItem.Value(func(val []byte) error {
		key = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return nil, err
	}

	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	var msg models.Message
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// PutMessage rewrites an existing message document in place (same thread,
// same creation time). Used for isRead flips and invitation status mirroring.
func PutMessage(txn *badger.Txn, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := txn.Set(messageKey(msg.ThreadID, msg.CreatedAt, msg.ID), data); err != nil {
		return fmt.Errorf("set message: %w", err)
	}
	return nil
}

// MessagesAscending iterates a thread's messages oldest-first.
// The callback may return ErrStopIteration to end the scan early.
func MessagesAscending(txn *badger.Txn, threadID string, fn func(*models.Message) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := messageScan(threadID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var msg models.Message
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		if err := fn(&msg); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ErrStopIteration ends a message scan early without error.
var ErrStopIteration = errors.New("stop iteration")

// MessagesBefore returns up to limit messages created strictly before the
// given instant, oldest-first. A zero "before" means "newest messages".
func MessagesBefore(txn *badger.Txn, threadID string, before time.Time, limit int) ([]*models.Message, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := messageScan(threadID)

	// In reverse mode the seek key must sort at or after every key of
	// interest. 0xFF is above any printable key byte.
	seek := append(append([]byte(nil), prefix...), 0xFF)
	if !before.IsZero() {
		seek = messageScanBefore(threadID, before)
	}

	var collected []*models.Message
	for it.Seek(seek); it.ValidForPrefix(prefix) && len(collected) < limit; it.Next() {
		var msg models.Message
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		collected = append(collected, &msg)
	}

	// Reverse into chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// CountMessages returns the number of messages in a thread.
func CountMessages(txn *badger.Txn, threadID string) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	prefix := messageScan(threadID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}

// MoveMessage rewrites a message under a new thread id, updating the id
// lookup entry and removing the old document. Used by the reconciler when
// merging duplicate threads.
func MoveMessage(txn *badger.Txn, msg *models.Message, newThreadID string) error {
	oldKey := messageKey(msg.ThreadID, msg.CreatedAt, msg.ID)

	msg.ThreadID = newThreadID
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	newKey := messageKey(newThreadID, msg.CreatedAt, msg.ID)
	if err := txn.Set(newKey, data); err != nil {
		return fmt.Errorf("set moved message: %w", err)
	}
	if err := txn.Set(messageIDKey(msg.ID), newKey); err != nil {
		return fmt.Errorf("update message id index: %w", err)
	}
	if err := txn.Delete(oldKey); err != nil {
		return fmt.Errorf("delete old message: %w", err)
	}
	return nil
}
