// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import "errors"

// Domain errors surfaced by the coordinator. The API layer maps these to
// distinct, actionable statuses so clients can tell "already responded"
// apart from "not allowed to respond".
var (
	// ErrNotParticipant indicates the actor does not belong to the thread.
	ErrNotParticipant = errors.New("user is not a participant of this thread")

	// ErrNotReceiver indicates someone other than the invitation receiver
	// tried to respond.
	ErrNotReceiver = errors.New("only the invitation receiver may respond")

	// ErrNotSender indicates someone other than the invitation sender tried
	// a sender-only operation (cancel, unlock).
	ErrNotSender = errors.New("only the invitation sender may do this")

	// ErrInvitationClosed indicates the invitation is already in a terminal
	// state. A losing racer observes this, never a silent success.
	ErrInvitationClosed = errors.New("invitation already in a terminal state")

	// ErrReplyWrongThread indicates the reply target belongs to a different
	// thread.
	ErrReplyWrongThread = errors.New("reply target belongs to another thread")

	// ErrSelfThread indicates an attempt to open a thread with oneself.
	ErrSelfThread = errors.New("cannot create a thread with yourself")

	// ErrNotAccepted indicates chat unlock was attempted before the
	// invitation was accepted.
	ErrNotAccepted = errors.New("invitation is not accepted")

	// ErrWriteConflict indicates a concurrent writer won a serialization
	// race. Callers may retry; thread creation retries as a lookup.
	ErrWriteConflict = errors.New("write conflict, concurrent update won")

	// ErrInvalidDecision indicates a respond call with a decision other
	// than accepted or declined.
	ErrInvalidDecision = errors.New("decision must be accepted or declined")
)
