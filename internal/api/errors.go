// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"errors"
	"net/http"

	"github.com/brewline/brewline/internal/chat"
	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/store"
)

// writeDomainError maps coordinator and store errors onto the API's error
// taxonomy. The mapping is total: every domain error has a distinct,
// non-500 status, so a permission failure or a lost race never masquerades
// as a server fault.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)

	switch {
	case errors.Is(err, store.ErrThreadNotFound):
		rw.NotFound("thread not found")
	case errors.Is(err, store.ErrMessageNotFound):
		rw.NotFound("message not found")
	case errors.Is(err, store.ErrInvitationNotFound):
		rw.NotFound("invitation not found")

	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, chat.ErrNotReceiver),
		errors.Is(err, chat.ErrNotSender):
		rw.Forbidden(err.Error())

	case errors.Is(err, chat.ErrInvitationClosed),
		errors.Is(err, chat.ErrWriteConflict):
		rw.Conflict(err.Error())

	case errors.Is(err, chat.ErrSelfThread),
		errors.Is(err, chat.ErrReplyWrongThread),
		errors.Is(err, chat.ErrNotAccepted),
		errors.Is(err, chat.ErrInvalidDecision):
		rw.BadRequest(err.Error())

	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("unhandled domain error")
		rw.InternalError("an internal error occurred")
	}
}
