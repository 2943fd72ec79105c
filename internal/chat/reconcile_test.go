// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/store"
)

// plantDuplicateThread writes a second thread for an existing pair directly,
// bypassing the pair-index uniqueness the coordinator enforces. This is the
// shape of legacy data the reconciler exists to repair.
func plantDuplicateThread(t *testing.T, st *store.Store, a, b string, updatedAt time.Time) *models.Thread {
	t.Helper()

	dup := &models.Thread{
		ID:           uuid.NewString(),
		Participants: []string{a, b},
		UnreadCount:  map[string]int{a: 0, b: 0},
		Status:       models.ThreadStatusActive,
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}
	require.NoError(t, st.Update(func(txn *badger.Txn) error {
		if err := store.PutThread(txn, dup); err != nil {
			return err
		}
		// Per-user index only. The pair index keeps pointing at whichever
		// thread registered it, exactly like a pre-index duplicate.
		for _, p := range dup.Participants {
			dupID := dup.ID
			if err := txn.Set([]byte("userthread:"+p+":"+dupID), []byte(dupID)); err != nil {
				return err
			}
		}
		return nil
	}))
	return dup
}

func plantMessage(t *testing.T, st *store.Store, threadID, senderID, content string, at time.Time) *models.Message {
	t.Helper()

	msg := &models.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Content:   content,
		Type:      models.MessageTypeText,
		CreatedAt: at,
	}
	require.NoError(t, st.Update(func(txn *badger.Txn) error {
		return store.AppendMessage(txn, msg)
	}))
	return msg
}

func TestReconcilerMergesDuplicatePair(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	canonicalSummary, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	_, err = c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: canonicalSummary.ID, Content: "on the canonical thread", Type: models.MessageTypeText,
	})
	require.NoError(t, err)

	// A stale duplicate with its own history and unread state.
	dup := plantDuplicateThread(t, st, "alice", "bob", base)
	plantMessage(t, st, dup.ID, "bob", "from the duplicate, older", base.Add(time.Minute))
	plantMessage(t, st, dup.ID, "bob", "from the duplicate, newer", base.Add(2*time.Minute))
	require.NoError(t, st.Update(func(txn *badger.Txn) error {
		d, err := store.GetThread(txn, dup.ID)
		if err != nil {
			return err
		}
		d.UnreadCount["alice"] = 2
		return store.PutThread(txn, d)
	}))

	r := NewReconciler(st, time.Minute)
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatePairs)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 0, report.Failed)

	// The duplicate is gone.
	err = st.View(func(txn *badger.Txn) error {
		_, err := store.GetThread(txn, dup.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrThreadNotFound)

	// All messages live on the canonical thread, in chronological order.
	msgs, err := c.ListMessages(ctx, seeker("alice"), canonicalSummary.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}

	// Per-user max: alice had 0 unread on canonical and 2 on the duplicate.
	tv, err := c.GetThread(ctx, seeker("alice"), canonicalSummary.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tv.UnreadCount)

	// alice's thread list shows exactly one thread for the pair.
	list, err := c.ListThreads(ctx, seeker("alice"), true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, canonicalSummary.ID, list[0].ID)
}

func TestReconcilerCanonicalIsMostRecent(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	// The planted thread is newer than the indexed one, so it survives.
	indexed, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	newer := plantDuplicateThread(t, st, "alice", "bob", time.Now().UTC().Add(time.Hour))

	r := NewReconciler(st, time.Minute)
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)

	err = st.View(func(txn *badger.Txn) error {
		_, err := store.GetThread(txn, indexed.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrThreadNotFound)

	// The pair index now points at the survivor, so get-or-create reuses it.
	again, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, again.ID)
}

func TestReconcilerRepointsInvitations(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	// A newer duplicate wins the merge, so the invitation must follow.
	winner := plantDuplicateThread(t, st, "alice", "bob", time.Now().UTC().Add(time.Hour))

	r := NewReconciler(st, time.Minute)
	_, err = r.Run(ctx)
	require.NoError(t, err)

	got, err := c.GetInvitation(ctx, seeker("alice"), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ThreadID)
}

func TestReconcilerIdempotent(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	plantDuplicateThread(t, st, "alice", "bob", time.Now().UTC().Add(-time.Hour))

	r := NewReconciler(st, time.Minute)

	first, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Merged)

	second, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.DuplicatePairs)
	assert.Equal(t, 0, second.Merged)

	// The surviving thread is unchanged by the second pass.
	tv, err := c.GetThread(ctx, seeker("alice"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, tv.ID)
}

func TestReconcilerCleanStoreNoOp(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	_, err = c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "carol"})
	require.NoError(t, err)

	r := NewReconciler(st, time.Minute)
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ThreadsScanned)
	assert.Equal(t, 0, report.DuplicatePairs)
}
