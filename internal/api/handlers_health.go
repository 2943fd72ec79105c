// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthLive handles GET /api/v1/health/live. Process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Ready means the store
// answers a read transaction.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Ping(r.Context()); err != nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeInternalError, "store not ready")
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ready",
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"ws_clients":     h.hub.ClientCount(),
	})
}
