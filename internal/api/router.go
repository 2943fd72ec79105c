// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler  *Handler
	resolver identity.Resolver
	cfg      *config.Config
}

// NewRouter creates the router.
func NewRouter(handler *Handler, resolver identity.Resolver, cfg *config.Config) *Router {
	return &Router{handler: handler, resolver: resolver, cfg: cfg}
}

// rejectAuth writes the envelope for identity middleware rejections.
func rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)
	switch {
	case errors.Is(err, identity.ErrNoCredentials):
		rw.Unauthorized("authentication required")
	case errors.Is(err, identity.ErrExpiredCredentials):
		rw.Unauthorized("token expired")
	case errors.Is(err, identity.ErrInvalidCredentials):
		rw.Unauthorized("invalid token")
	default:
		rw.Forbidden(err.Error())
	}
}

// Setup wires all routes and middleware.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints: unauthenticated, permissively rate limited so
	// orchestrators can probe freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, rt.cfg.Security.RateLimitWindow))
		r.Get("/", rt.handler.HealthLive)
		r.Get("/live", rt.handler.HealthLive)
		r.Get("/ready", rt.handler.HealthReady)
	})

	// Prometheus scrape endpoint. Unauthenticated; expected to be fenced
	// off at the network layer.
	r.Handle("/metrics", promhttp.Handler())

	authed := identity.Middleware(rt.resolver, rejectAuth)

	// Core messaging API.
	r.Route("/api/v1", func(r chi.Router) {
		if !rt.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(rt.cfg.Security.RateLimitReqs, rt.cfg.Security.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(authed)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", rt.handler.CreateThread)
			r.Get("/", rt.handler.ListThreads)
			r.Route("/{threadID}", func(r chi.Router) {
				r.Get("/", rt.handler.GetThread)
				r.Post("/archive", rt.handler.ArchiveThread)
				r.Post("/messages", rt.handler.SendMessage)
				r.Get("/messages", rt.handler.ListMessages)
				r.Post("/read", rt.handler.MarkRead)
			})
		})

		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", rt.handler.CreateInvitation)
			r.Route("/{invitationID}", func(r chi.Router) {
				r.Get("/", rt.handler.GetInvitation)
				r.Post("/respond", rt.handler.RespondToInvitation)
				r.Post("/cancel", rt.handler.CancelInvitation)
				r.Post("/unlock", rt.handler.UnlockChat)
			})
		})

		// Service channel: backend systems appending operational messages.
		r.With(identity.RequireRole(identity.RoleService, rejectAuth)).
			Post("/system-messages", rt.handler.SystemMessage)

		// Admin operations.
		r.With(identity.RequireRole(identity.RoleAdmin, rejectAuth)).
			Post("/admin/reconcile", rt.handler.Reconcile)

		// Realtime upgrade. Token may arrive via query parameter since
		// browser websocket clients cannot set headers.
		r.Get("/ws", rt.handler.WebSocket)
	})

	return r
}
