// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brewline/brewline/internal/chat"
	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/websocket"
)

// Handler carries the dependencies of all HTTP handlers.
type Handler struct {
	coordinator *chat.Coordinator
	reconciler  *chat.Reconciler
	hub         *websocket.Hub
	cfg         *config.Config
}

// NewHandler creates the HTTP handler set.
func NewHandler(coordinator *chat.Coordinator, reconciler *chat.Reconciler, hub *websocket.Hub, cfg *config.Config) *Handler {
	return &Handler{
		coordinator: coordinator,
		reconciler:  reconciler,
		hub:         hub,
		cfg:         cfg,
	}
}

// subject extracts the authenticated subject. The identity middleware
// guarantees it is present on protected routes.
func subject(w http.ResponseWriter, r *http.Request) (*identity.Subject, bool) {
	s := identity.SubjectFromContext(r.Context())
	if s == nil {
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return nil, false
	}
	return s, true
}

// CreateThread handles POST /api/v1/threads. Get-or-create: posting the same
// pair twice returns the same thread.
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	var req createThreadRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.coordinator.CreateThread(r.Context(), actor, chat.CreateThreadInput{
		OtherUserID:    req.OtherUserID,
		MatchRef:       req.MatchRef,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(summary)
}

// ListThreads handles GET /api/v1/threads.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	summaries, err := h.coordinator.ListThreads(r.Context(), actor, includeArchived)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []*models.ThreadSummary{}
	}
	NewResponseWriter(w, r).Success(summaries)
}

// GetThread handles GET /api/v1/threads/{threadID}.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	summary, err := h.coordinator.GetThread(r.Context(), actor, chi.URLParam(r, "threadID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(summary)
}

// ArchiveThread handles POST /api/v1/threads/{threadID}/archive.
func (h *Handler) ArchiveThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	threadID := chi.URLParam(r, "threadID")
	if err := h.coordinator.ArchiveThread(r.Context(), actor, threadID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(map[string]string{"threadId": threadID, "status": "archived"})
}

// SendMessage handles POST /api/v1/threads/{threadID}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	msgType, err := models.ParseMessageType(req.MessageType)
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}
	// Invite messages come from the invitation workflow, payment messages
	// from the service channel. Neither may be forged through this endpoint.
	if msgType == models.MessageTypeInvite || msgType == models.MessageTypePayment {
		NewResponseWriter(w, r).BadRequest("message type is reserved")
		return
	}

	view, err := h.coordinator.SendMessage(r.Context(), actor, chat.SendMessageInput{
		ThreadID: chi.URLParam(r, "threadID"),
		Content:  req.Content,
		Type:     msgType,
		Metadata: req.Metadata,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(view)
}

// ListMessages handles GET /api/v1/threads/{threadID}/messages with
// cursor pagination: ?before=<RFC3339Nano>&limit=<n>, oldest-first within
// the page.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	limit := h.cfg.API.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest("invalid limit")
			return
		}
		limit = n
	}
	if limit > h.cfg.API.MaxPageSize {
		limit = h.cfg.API.MaxPageSize
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest("invalid before cursor, want RFC3339")
			return
		}
		before = t
	}

	views, err := h.coordinator.ListMessages(r.Context(), actor, chi.URLParam(r, "threadID"), before, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if views == nil {
		views = []*models.MessageView{}
	}

	pagination := &PaginationMeta{
		Count:   len(views),
		Limit:   limit,
		HasMore: len(views) == limit,
	}
	if len(views) > 0 {
		pagination.NextCursor = views[0].CreatedAt.Format(time.RFC3339Nano)
	}
	NewResponseWriter(w, r).SuccessWithPagination(views, pagination)
}

// MarkRead handles POST /api/v1/threads/{threadID}/read. Idempotent.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	threadID := chi.URLParam(r, "threadID")
	if err := h.coordinator.MarkThreadRead(r.Context(), actor, threadID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(map[string]string{"threadId": threadID, "status": "read"})
}

// SystemMessage handles POST /api/v1/system-messages. Service role only,
// enforced by route middleware.
func (h *Handler) SystemMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := subject(w, r)
	if !ok {
		return
	}

	var req systemMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.coordinator.AppendSystemMessage(r.Context(), actor, req.ThreadID, req.Content, req.Metadata)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(view)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
