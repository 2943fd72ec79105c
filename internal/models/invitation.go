// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package models

import "time"

// InvitationStatus is the state of the invitation workflow.
//
// Transitions: pending -> accepted or declined (receiver-driven),
// pending -> cancelled (sender-driven). All non-pending states are terminal;
// no transition leaves a terminal state.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

// SessionDetails describes the proposed coffee chat. All fields are
// required at creation.
type SessionDetails struct {
	ProposedDate time.Time `json:"proposedDate"`
	// Duration is the session length in minutes.
	Duration int    `json:"duration"`
	Topic    string `json:"topic"`
}

// Invitation is a proposal-response workflow object, 1:1 linked to a thread.
// Each status transition appends exactly one message to the linked thread so
// the chronological log is a faithful audit trail of the invitation.
type Invitation struct {
	ID         string `json:"_id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`

	Status InvitationStatus `json:"status"`

	SessionDetails SessionDetails `json:"sessionDetails"`

	// ThreadID references the thread carrying the conversation.
	// Created lazily if absent when the invitation is sent or answered.
	ThreadID string `json:"threadId,omitempty"`

	// ChatUnlocked permits continued free-form messaging after a session
	// completes. Only meaningful once Status is accepted; settable only by
	// the sender; monotonic (never unset through the public contract).
	ChatUnlocked bool `json:"chatUnlocked"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
