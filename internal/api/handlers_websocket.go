// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS middleware in front of this handler;
	// browsers cannot reach the upgrade without passing it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket handles GET /api/v1/ws. The identity middleware has already
// resolved the token (Authorization header or ?token= for browser clients),
// so the connection is bound to exactly one user. Registering it claims that
// user's single connection slot; an older connection is superseded.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, actor, h.coordinator, h.coordinator)
	h.hub.Register <- client
	client.Start()
}
