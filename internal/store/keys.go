// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package store

import (
	"fmt"
	"time"
)

// Key prefixes for BadgerDB storage.
const (
	threadKeyPrefix     = "thread:"
	pairKeyPrefix       = "pair:"
	userThreadKeyPrefix = "userthread:"
	messageKeyPrefix    = "msg:"
	messageIDKeyPrefix  = "msgid:"
	invitationKeyPrefix = "inv:"
	invThreadKeyPrefix  = "invthread:"
)

func threadKey(id string) []byte {
	return []byte(threadKeyPrefix + id)
}

func pairKey(pair string) []byte {
	return []byte(pairKeyPrefix + pair)
}

func userThreadKey(userID, threadID string) []byte {
	return []byte(userThreadKeyPrefix + userID + ":" + threadID)
}

func userThreadScan(userID string) []byte {
	return []byte(userThreadKeyPrefix + userID + ":")
}

// messageKey orders messages within a thread by creation time. The
// zero-padded nanosecond timestamp sorts lexicographically; the message id
// suffix keeps keys unique when two messages share a timestamp.
func messageKey(threadID string, createdAt time.Time, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", messageKeyPrefix, threadID, createdAt.UnixNano(), messageID))
}

func messageScan(threadID string) []byte {
	return []byte(messageKeyPrefix + threadID + ":")
}

// messageScanBefore is the exclusive upper bound for reverse iteration over
// messages created strictly before the given instant.
func messageScanBefore(threadID string, before time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messageKeyPrefix, threadID, before.UnixNano()))
}

func messageIDKey(id string) []byte {
	return []byte(messageIDKeyPrefix + id)
}

func invitationKey(id string) []byte {
	return []byte(invitationKeyPrefix + id)
}

func invThreadKey(threadID, invitationID string) []byte {
	return []byte(invThreadKeyPrefix + threadID + ":" + invitationID)
}

func invThreadScan(threadID string) []byte {
	return []byte(invThreadKeyPrefix + threadID + ":")
}
