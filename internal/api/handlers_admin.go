// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"net/http"

	"github.com/brewline/brewline/internal/logging"
)

// Reconcile handles POST /api/v1/admin/reconcile. Runs one reconciliation
// pass synchronously and returns its report. Admin role only, enforced by
// route middleware. Safe to trigger repeatedly; the job is idempotent.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("admin_id", actor.UserID).
		Msg("manual reconciliation triggered")

	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(report)
}
