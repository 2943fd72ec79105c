// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brewline/brewline/internal/chat"
	"github.com/brewline/brewline/internal/models"
)

// invitationResponse pairs the invitation with the message its creation or
// transition appended to the thread.
type invitationResponse struct {
	Invitation *models.Invitation  `json:"invitation"`
	Message    *models.MessageView `json:"message,omitempty"`
}

// CreateInvitation handles POST /api/v1/invitations.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inv, msg, err := h.coordinator.CreateInvitation(r.Context(), actor, chat.CreateInvitationInput{
		ReceiverID:     req.ReceiverID,
		SessionDetails: req.sessionDetails(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(invitationResponse{Invitation: inv, Message: msg})
}

// GetInvitation handles GET /api/v1/invitations/{invitationID}.
func (h *Handler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	inv, err := h.coordinator.GetInvitation(r.Context(), actor, chi.URLParam(r, "invitationID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(inv)
}

// RespondToInvitation handles POST /api/v1/invitations/{invitationID}/respond.
// Receiver-only; a decision against an already-settled invitation returns
// 409 so the losing racer knows it lost.
func (h *Handler) RespondToInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	var req respondInvitationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inv, err := h.coordinator.RespondToInvitation(r.Context(), actor,
		chi.URLParam(r, "invitationID"), models.InvitationStatus(req.Decision))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(inv)
}

// CancelInvitation handles POST /api/v1/invitations/{invitationID}/cancel.
// Sender-only, pending-only.
func (h *Handler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	inv, err := h.coordinator.CancelInvitation(r.Context(), actor, chi.URLParam(r, "invitationID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(inv)
}

// UnlockChat handles POST /api/v1/invitations/{invitationID}/unlock.
// Sender-only, accepted-only, monotonic.
func (h *Handler) UnlockChat(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	inv, err := h.coordinator.UnlockChat(r.Context(), actor, chi.URLParam(r, "invitationID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(inv)
}
