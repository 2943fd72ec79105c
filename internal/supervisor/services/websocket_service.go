// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package services wraps the engine's long-running components as
// suture-supervised services.
package services

import "context"

// ContextHub matches *websocket.Hub's RunWithContext method. The indirection
// keeps this package free of a websocket import.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the hub under supervision. The hub's
// RunWithContext already follows the suture contract; this wrapper only
// names it.
type WebSocketHubService struct {
	hub ContextHub
}

// NewWebSocketHubService wraps a hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

func (*WebSocketHubService) String() string { return "websocket-hub" }
