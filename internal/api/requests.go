// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/validation"
)

// maxRequestBody caps request bodies at 256 KB. Message content is capped
// far lower by validation; this is the outer transport guard.
const maxRequestBody = 256 * 1024

type createThreadRequest struct {
	OtherUserID string `json:"otherUserId" validate:"required,max=128"`
	MatchRef    string `json:"matchRef" validate:"omitempty,max=128"`
	// InitialMessage optionally seeds the conversation; appended atomically
	// with the thread lookup or creation.
	InitialMessage string `json:"initialMessage" validate:"omitempty,max=10000"`
}

type sendMessageRequest struct {
	Content     string                  `json:"content" validate:"required,max=10000"`
	MessageType string                  `json:"messageType" validate:"required"`
	Metadata    *models.MessageMetadata `json:"metadata" validate:"omitempty"`
	ReplyTo     string                  `json:"replyTo" validate:"omitempty,max=128"`
}

type sessionDetailsRequest struct {
	// ProposedDate is RFC3339 and must lie in the future.
	ProposedDate string `json:"proposedDate" validate:"required,futuredate"`
	// Duration is the session length in minutes.
	Duration int    `json:"duration" validate:"required,min=15,max=240"`
	Topic    string `json:"topic" validate:"required,max=200"`
}

type createInvitationRequest struct {
	ReceiverID     string                `json:"receiverId" validate:"required,max=128"`
	SessionDetails sessionDetailsRequest `json:"sessionDetails" validate:"required"`
}

func (r *createInvitationRequest) sessionDetails() models.SessionDetails {
	// The futuredate validator already proved this parses.
	proposed, _ := time.Parse(time.RFC3339, r.SessionDetails.ProposedDate)
	return models.SessionDetails{
		ProposedDate: proposed.UTC(),
		Duration:     r.SessionDetails.Duration,
		Topic:        r.SessionDetails.Topic,
	}
}

type respondInvitationRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accepted declined"`
}

type systemMessageRequest struct {
	ThreadID string                  `json:"threadId" validate:"required,max=128"`
	Content  string                  `json:"content" validate:"required,max=10000"`
	Metadata *models.MessageMetadata `json:"metadata" validate:"omitempty"`
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation. On failure it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	rw := NewResponseWriter(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError("request validation failed", verr.Fields())
		return false
	}
	return true
}
