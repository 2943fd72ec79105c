// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/metrics"
	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/store"
)

// CreateInvitationInput is the request to propose a coffee chat.
type CreateInvitationInput struct {
	ReceiverID     string
	SessionDetails models.SessionDetails
}

// CreateInvitation creates a pending invitation, ensures the pair's thread
// exists, links the two, and appends the invite message. All of it commits
// atomically; on success one new-message event announces the invite.
func (c *Coordinator) CreateInvitation(ctx context.Context, actor *identity.Subject, in CreateInvitationInput) (*models.Invitation, *models.MessageView, error) {
	if in.ReceiverID == actor.UserID {
		return nil, nil, ErrSelfThread
	}

	var (
		inv *models.Invitation
		msg *models.Message
	)
	err := c.update("create_invitation", func(txn *badger.Txn) error {
		now := time.Now().UTC()

		thread, _, err := getOrCreateThread(txn, actor.UserID, in.ReceiverID, "", now)
		if err != nil {
			return err
		}

		inv = &models.Invitation{
			ID:             uuid.NewString(),
			SenderID:       actor.UserID,
			ReceiverID:     in.ReceiverID,
			Status:         models.InvitationPending,
			SessionDetails: in.SessionDetails,
			ThreadID:       thread.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := store.PutInvitation(txn, inv); err != nil {
			return err
		}

		msg = &models.Message{
			ID:       uuid.NewString(),
			ThreadID: thread.ID,
			SenderID: actor.UserID,
			Content:  fmt.Sprintf("Coffee chat invitation: %s", in.SessionDetails.Topic),
			Type:     models.MessageTypeInvite,
			Metadata: &models.MessageMetadata{
				InviteID: inv.ID,
				Status:   string(models.InvitationPending),
			},
			CreatedAt: now,
		}
		return applyMessage(txn, thread, msg, in.ReceiverID)
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.MessagesPersisted.WithLabelValues(string(models.MessageTypeInvite)).Inc()
	logging.Ctx(ctx).Info().
		Str("invitation_id", inv.ID).
		Str("thread_id", inv.ThreadID).
		Msg("invitation created")

	view := models.NewMessageView(msg, c.sender(ctx, actor.UserID))
	c.events.MessageCreated(view)
	return inv, view, nil
}

// RespondToInvitation applies the receiver's decision (accepted or declined)
// to a pending invitation. The transition, the status mirror on the original
// invite message and the appended response message commit atomically. A
// racing second responder observes ErrInvitationClosed, never a silent
// success.
func (c *Coordinator) RespondToInvitation(ctx context.Context, actor *identity.Subject, invitationID string, decision models.InvitationStatus) (*models.Invitation, error) {
	if decision != models.InvitationAccepted && decision != models.InvitationDeclined {
		return nil, ErrInvalidDecision
	}

	return c.transitionInvitation(ctx, "respond_invitation", invitationID, decision, func(inv *models.Invitation) error {
		if actor.UserID != inv.ReceiverID {
			return ErrNotReceiver
		}
		return nil
	}, actor)
}

// CancelInvitation withdraws a pending invitation. Sender-only.
func (c *Coordinator) CancelInvitation(ctx context.Context, actor *identity.Subject, invitationID string) (*models.Invitation, error) {
	return c.transitionInvitation(ctx, "cancel_invitation", invitationID, models.InvitationCancelled, func(inv *models.Invitation) error {
		if actor.UserID != inv.SenderID {
			return ErrNotSender
		}
		return nil
	}, actor)
}

// transitionInvitation moves a pending invitation to a terminal state,
// mirrors the new status onto the original invite message, and appends the
// transition message to the thread, all in one transaction.
func (c *Coordinator) transitionInvitation(ctx context.Context, operation, invitationID string, target models.InvitationStatus, authorize func(*models.Invitation) error, actor *identity.Subject) (*models.Invitation, error) {
	var (
		inv *models.Invitation
		msg *models.Message
	)
	err := c.update(operation, func(txn *badger.Txn) error {
		var err error
		inv, err = store.GetInvitation(txn, invitationID)
		if err != nil {
			return err
		}
		if err := authorize(inv); err != nil {
			return err
		}
		if inv.Status.Terminal() {
			return ErrInvitationClosed
		}

		now := time.Now().UTC()
		inv.Status = target
		inv.UpdatedAt = now

		// The thread is created lazily when the invitation predates it.
		var thread *models.Thread
		if inv.ThreadID == "" {
			thread, _, err = getOrCreateThread(txn, inv.SenderID, inv.ReceiverID, "", now)
			if err != nil {
				return err
			}
			inv.ThreadID = thread.ID
		} else {
			thread, err = store.GetThread(txn, inv.ThreadID)
			if err != nil {
				return err
			}
		}

		if err := store.PutInvitation(txn, inv); err != nil {
			return err
		}
		if err := mirrorInviteStatus(txn, thread.ID, inv.ID, target); err != nil {
			return err
		}

		msg = &models.Message{
			ID:       uuid.NewString(),
			ThreadID: thread.ID,
			SenderID: actor.UserID,
			Content:  transitionContent(target),
			Type:     models.MessageTypeText,
			Metadata: &models.MessageMetadata{
				InviteID: inv.ID,
				Status:   string(target),
			},
			CreatedAt: now,
		}
		return applyMessage(txn, thread, msg, thread.OtherParticipant(actor.UserID))
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesPersisted.WithLabelValues(string(models.MessageTypeText)).Inc()
	logging.Ctx(ctx).Info().
		Str("invitation_id", inv.ID).
		Str("status", string(inv.Status)).
		Msg("invitation transitioned")

	c.events.MessageCreated(models.NewMessageView(msg, c.sender(ctx, actor.UserID)))
	return inv, nil
}

// mirrorInviteStatus flips the metadata status on the original invite message
// so old pages render the invitation's current state.
func mirrorInviteStatus(txn *badger.Txn, threadID, invitationID string, status models.InvitationStatus) error {
	return store.MessagesAscending(txn, threadID, func(m *models.Message) error {
		if m.Type != models.MessageTypeInvite || m.Metadata == nil || m.Metadata.InviteID != invitationID {
			return nil
		}
		m.Metadata.Status = string(status)
		if err := store.PutMessage(txn, m); err != nil {
			return err
		}
		return store.ErrStopIteration
	})
}

func transitionContent(status models.InvitationStatus) string {
	switch status {
	case models.InvitationAccepted:
		return "Invitation accepted"
	case models.InvitationDeclined:
		return "Invitation declined"
	case models.InvitationCancelled:
		return "Invitation cancelled"
	default:
		return "Invitation updated"
	}
}

// UnlockChat marks an accepted invitation's conversation as permanently open
// for free-form messaging. Sender-only, accepted-only, and monotonic: once
// unlocked it stays unlocked, and repeat calls succeed without a write.
func (c *Coordinator) UnlockChat(ctx context.Context, actor *identity.Subject, invitationID string) (*models.Invitation, error) {
	var inv *models.Invitation
	err := c.update("unlock_chat", func(txn *badger.Txn) error {
		var err error
		inv, err = store.GetInvitation(txn, invitationID)
		if err != nil {
			return err
		}
		if actor.UserID != inv.SenderID {
			return ErrNotSender
		}
		if inv.Status != models.InvitationAccepted {
			return ErrNotAccepted
		}
		if inv.ChatUnlocked {
			return nil
		}
		inv.ChatUnlocked = true
		inv.UpdatedAt = time.Now().UTC()
		return store.PutInvitation(txn, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvitation returns an invitation to its sender or receiver.
func (c *Coordinator) GetInvitation(ctx context.Context, actor *identity.Subject, invitationID string) (*models.Invitation, error) {
	var inv *models.Invitation
	err := c.store.View(func(txn *badger.Txn) error {
		var err error
		inv, err = store.GetInvitation(txn, invitationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if actor.UserID != inv.SenderID && actor.UserID != inv.ReceiverID {
		return nil, ErrNotParticipant
	}
	return inv, nil
}
