// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package models defines the persisted documents and transfer objects of the
// messaging engine: threads, messages, invitations and their wire shapes.
package models

import (
	"sort"
	"strings"
	"time"
)

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

const (
	// ThreadStatusActive is the normal state of a conversation.
	ThreadStatusActive ThreadStatus = "active"

	// ThreadStatusArchived hides the thread from default list views.
	// Archived threads are never hard-deleted.
	ThreadStatusArchived ThreadStatus = "archived"
)

// Thread is a persistent two-party conversation container.
//
// A pair of participants {A,B} denotes exactly one logical thread regardless
// of order. The pair index in the store makes that constraint authoritative
// at creation time; races that slip through are repaired by the reconciler.
type Thread struct {
	ID string `json:"_id"`

	// Participants holds exactly two user ids.
	Participants []string `json:"participants"`

	// LastMessage is a denormalized cache of the newest message for list
	// views. Nil until the first message arrives.
	LastMessage *LastMessage `json:"lastMessage,omitempty"`

	// UnreadCount maps participant user id to the number of messages from
	// the other participant not yet acknowledged by this user.
	UnreadCount map[string]int `json:"unreadCount"`

	Status ThreadStatus `json:"status"`

	// MatchRef is an optional back-reference to a matching record.
	// The thread does not own it.
	MatchRef string `json:"matchRef,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastMessage is the cached summary of a thread's newest message.
type LastMessage struct {
	Content   string      `json:"content"`
	SenderID  string      `json:"senderId"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"messageType"`
}

// PairKey returns the canonical, order-independent key for a participant
// pair. Both (a,b) and (b,a) map to the same key.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// PairKeyFor returns the pair key for the thread's participants.
func (t *Thread) PairKeyFor() string {
	if len(t.Participants) != 2 {
		return ""
	}
	return PairKey(t.Participants[0], t.Participants[1])
}

// HasParticipant reports whether the user belongs to the thread.
func (t *Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of the given user, or empty
// string if the user is not a participant.
func (t *Thread) OtherParticipant(userID string) string {
	for _, p := range t.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// UnreadFor returns the unread counter for a user.
func (t *Thread) UnreadFor(userID string) int {
	if t.UnreadCount == nil {
		return 0
	}
	return t.UnreadCount[userID]
}
