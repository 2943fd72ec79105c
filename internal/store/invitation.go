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

// GetInvitation loads an invitation document by id.
func GetInvitation(txn *badger.Txn, id string) (*models.Invitation, error) {
	item, err := txn.Get(invitationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	var inv models.Invitation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &inv)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal invitation: %w", err)
	}
	return &inv, nil
}

// PutInvitation writes an invitation document and, when it is linked to a
// thread, the thread back-index used by the reconciler's repoint pass.
func PutInvitation(txn *badger.Txn, inv *models.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}
	if err := txn.Set(invitationKey(inv.ID), data); err != nil {
		return fmt.Errorf("set invitation: %w", err)
	}
	if inv.ThreadID != "" {
		if err := txn.Set(invThreadKey(inv.ThreadID, inv.ID), []byte(inv.ID)); err != nil {
			return fmt.Errorf("set invitation thread index: %w", err)
		}
	}
	return nil
}

// InvitationIDsForThread lists invitations linked to a thread.
func InvitationIDsForThread(txn *badger.Txn, threadID string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	prefix := invThreadScan(threadID)
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

// RepointInvitation relinks an invitation from one thread to another,
// maintaining the back-index on both sides.
func RepointInvitation(txn *badger.Txn, inv *models.Invitation, newThreadID string) error {
	oldThreadID := inv.ThreadID

	inv.ThreadID = newThreadID
	if err := PutInvitation(txn, inv); err != nil {
		return err
	}

	if oldThreadID != "" && oldThreadID != newThreadID {
		if err := txn.Delete(invThreadKey(oldThreadID, inv.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete old invitation thread index: %w", err)
		}
	}
	return nil
}
