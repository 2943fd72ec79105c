// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package models

import (
	"fmt"
	"time"
)

// MessageType classifies a message and determines the shape of its metadata.
type MessageType string

const (
	MessageTypeText             MessageType = "text"
	MessageTypeFile             MessageType = "file"
	MessageTypeReply            MessageType = "reply"
	MessageTypeInvite           MessageType = "invite"
	MessageTypeTimeProposal     MessageType = "timeProposal"
	MessageTypeTimeSuggestion   MessageType = "timeSuggestion"
	MessageTypeTimeConfirmation MessageType = "timeConfirmation"
	MessageTypePayment          MessageType = "payment"
)

// ParseMessageType converts a string to a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case MessageTypeText, MessageTypeFile, MessageTypeReply, MessageTypeInvite,
		MessageTypeTimeProposal, MessageTypeTimeSuggestion,
		MessageTypeTimeConfirmation, MessageTypePayment:
		return MessageType(s), nil
	default:
		return "", fmt.Errorf("invalid message type: %q", s)
	}
}

// TimeSlot is one candidate (or confirmed) meeting slot.
type TimeSlot struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,timeofday"`
}

// MessageMetadata is the variant payload attached to a message. Which
// fields are populated depends on the message type:
//
//   - invite: InviteID, Status
//   - timeProposal / timeSuggestion: TimeSlots (ordered candidates)
//   - timeConfirmation: ConfirmedSlot
//   - payment: PaymentID, Amount, Status
//   - file: FileName, FileRef
type MessageMetadata struct {
	InviteID      string     `json:"inviteId,omitempty"`
	Status        string     `json:"status,omitempty"`
	TimeSlots     []TimeSlot `json:"timeSlots,omitempty"`
	ConfirmedSlot *TimeSlot  `json:"confirmedSlot,omitempty"`
	PaymentID     string     `json:"paymentId,omitempty"`
	Amount        float64    `json:"amount,omitempty"`
	FileName      string     `json:"fileName,omitempty"`
	FileRef       string     `json:"fileRef,omitempty"`
}

// Message is one persisted, typed, ordered entry in a thread's log.
// Created exactly once; IsRead flips once on read-acknowledgement; the
// metadata Status field follows the linked invitation's transitions.
type Message struct {
	ID       string `json:"_id"`
	ThreadID string `json:"threadId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`

	Type     MessageType      `json:"messageType"`
	Metadata *MessageMetadata `json:"metadata,omitempty"`

	// ReplyTo optionally references another message in the same thread.
	ReplyTo string `json:"replyTo,omitempty"`

	// IsRead is the read status relative to the non-sender participant.
	IsRead bool `json:"isRead"`

	// CreatedAt is immutable and is the ordering key within the thread.
	CreatedAt time.Time `json:"createdAt"`
}

// Summary returns the denormalized cache entry for the thread document.
func (m *Message) Summary() *LastMessage {
	return &LastMessage{
		Content:   m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.CreatedAt,
		Type:      m.Type,
	}
}
