// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewline/brewline/internal/models"
)

func sessionDetails() models.SessionDetails {
	return models.SessionDetails{
		ProposedDate: time.Now().UTC().Add(48 * time.Hour),
		Duration:     30,
		Topic:        "Breaking into fintech",
	}
}

func TestCreateInvitationLinksThreadAndAppendsMessage(t *testing.T) {
	c, _, sink := newTestCoordinator(t)
	ctx := context.Background()

	inv, view, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, inv.Status)
	require.NotEmpty(t, inv.ThreadID)

	assert.Equal(t, models.MessageTypeInvite, view.Type)
	require.NotNil(t, view.Metadata)
	assert.Equal(t, inv.ID, view.Metadata.InviteID)
	assert.Equal(t, "pending", view.Metadata.Status)

	// The receiver sees the invite as an unread message in the linked thread.
	tv, err := c.GetThread(ctx, professional("bob"), inv.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 1, tv.UnreadCount)

	assert.Equal(t, 1, sink.messageCount())
}

func TestCreateInvitationReusesExistingThread(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)
	assert.Equal(t, thread.ID, inv.ThreadID)
}

func TestRespondToInvitationAccept(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	updated, err := c.RespondToInvitation(ctx, professional("bob"), inv.ID, models.InvitationAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAccepted, updated.Status)

	// The thread log carries both the mirrored invite and the response.
	msgs, err := c.ListMessages(ctx, seeker("alice"), inv.ThreadID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	invite := msgs[0]
	assert.Equal(t, models.MessageTypeInvite, invite.Type)
	require.NotNil(t, invite.Metadata)
	assert.Equal(t, "accepted", invite.Metadata.Status, "original invite message mirrors the new status")

	response := msgs[1]
	assert.Equal(t, "Invitation accepted", response.Content)
	assert.Equal(t, "bob", response.Sender.ID)
}

func TestRespondToInvitationOnlyReceiver(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	// The sender cannot answer their own invitation.
	_, err = c.RespondToInvitation(ctx, seeker("alice"), inv.ID, models.InvitationAccepted)
	assert.ErrorIs(t, err, ErrNotReceiver)

	// Neither can a third party.
	_, err = c.RespondToInvitation(ctx, seeker("mallory"), inv.ID, models.InvitationDeclined)
	assert.ErrorIs(t, err, ErrNotReceiver)
}

func TestRespondToInvitationTerminalStatesFinal(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	_, err = c.RespondToInvitation(ctx, professional("bob"), inv.ID, models.InvitationDeclined)
	require.NoError(t, err)

	// The second decision loses loudly, not silently.
	_, err = c.RespondToInvitation(ctx, professional("bob"), inv.ID, models.InvitationAccepted)
	assert.ErrorIs(t, err, ErrInvitationClosed)

	// Cancellation after a response is likewise rejected.
	_, err = c.CancelInvitation(ctx, seeker("alice"), inv.ID)
	assert.ErrorIs(t, err, ErrInvitationClosed)
}

func TestRespondToInvitationInvalidDecision(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	_, err := c.RespondToInvitation(context.Background(), professional("bob"), "inv-x", models.InvitationCancelled)
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestCancelInvitation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	// Only the sender may cancel.
	_, err = c.CancelInvitation(ctx, professional("bob"), inv.ID)
	assert.ErrorIs(t, err, ErrNotSender)

	cancelled, err := c.CancelInvitation(ctx, seeker("alice"), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationCancelled, cancelled.Status)

	_, err = c.RespondToInvitation(ctx, professional("bob"), inv.ID, models.InvitationAccepted)
	assert.ErrorIs(t, err, ErrInvitationClosed)
}

func TestUnlockChat(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	// Pending invitations cannot be unlocked.
	_, err = c.UnlockChat(ctx, seeker("alice"), inv.ID)
	assert.ErrorIs(t, err, ErrNotAccepted)

	_, err = c.RespondToInvitation(ctx, professional("bob"), inv.ID, models.InvitationAccepted)
	require.NoError(t, err)

	// Receiver cannot unlock.
	_, err = c.UnlockChat(ctx, professional("bob"), inv.ID)
	assert.ErrorIs(t, err, ErrNotSender)

	unlocked, err := c.UnlockChat(ctx, seeker("alice"), inv.ID)
	require.NoError(t, err)
	assert.True(t, unlocked.ChatUnlocked)

	// Monotonic and idempotent.
	again, err := c.UnlockChat(ctx, seeker("alice"), inv.ID)
	require.NoError(t, err)
	assert.True(t, again.ChatUnlocked)
}

func TestGetInvitationVisibility(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	inv, _, err := c.CreateInvitation(ctx, seeker("alice"), CreateInvitationInput{
		ReceiverID:     "bob",
		SessionDetails: sessionDetails(),
	})
	require.NoError(t, err)

	for _, s := range []string{"alice", "bob"} {
		got, err := c.GetInvitation(ctx, seeker(s), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, got.ID)
	}

	_, err = c.GetInvitation(ctx, seeker("mallory"), inv.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}
