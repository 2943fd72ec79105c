// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package models

import "time"

// Sender is the enriched sender block of a message transfer object.
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// MessageView is the wire shape of a message, sender-enriched.
// Both the REST responses and the new-message realtime event carry it.
type MessageView struct {
	ID        string           `json:"_id"`
	ThreadID  string           `json:"threadId"`
	Sender    Sender           `json:"sender"`
	Content   string           `json:"content"`
	Type      MessageType      `json:"messageType"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	ReplyTo   string           `json:"replyTo,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewMessageView builds the transfer object for a persisted message.
func NewMessageView(m *Message, sender Sender) *MessageView {
	return &MessageView{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Sender:    sender,
		Content:   m.Content,
		Type:      m.Type,
		Metadata:  m.Metadata,
		ReplyTo:   m.ReplyTo,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
}

// ThreadSummary is the wire shape of a thread for list views. UnreadCount
// is scoped to the requesting user only; the embedded per-user counter map
// never leaves the server.
type ThreadSummary struct {
	ID               string       `json:"_id"`
	OtherParticipant Sender       `json:"otherParticipant"`
	LastMessage      *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount      int          `json:"unreadCount"`
	Status           ThreadStatus `json:"status"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// NewThreadSummary builds the requester-scoped summary of a thread.
func NewThreadSummary(t *Thread, requesterID string, other Sender) *ThreadSummary {
	return &ThreadSummary{
		ID:               t.ID,
		OtherParticipant: other,
		LastMessage:      t.LastMessage,
		UnreadCount:      t.UnreadFor(requesterID),
		Status:           t.Status,
		UpdatedAt:        t.UpdatedAt,
	}
}
