// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package identity

import (
	"net/http"
	"strings"

	"github.com/brewline/brewline/internal/logging"
)

// TokenFromRequest extracts the bearer credential from a request.
// Order: Authorization header, then the "token" query parameter (websocket
// clients cannot set headers from the browser).
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware returns HTTP middleware that resolves the request credential
// and stores the Subject in the request context. Unauthenticated requests
// are rejected with 401 before reaching any handler.
//
// The onReject callback writes the error response so the API package keeps
// ownership of the response envelope.
func Middleware(resolver Resolver, onReject func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := resolver.Resolve(r.Context(), TokenFromRequest(r))
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("credential rejected")
				onReject(w, r, err)
				return
			}

			ctx := ContextWithSubject(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that rejects authenticated subjects lacking
// the given role. Must be applied after Middleware.
func RequireRole(role Role, onReject func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := SubjectFromContext(r.Context())
			if subject == nil {
				onReject(w, r, ErrNoCredentials)
				return
			}
			if subject.Role != role {
				onReject(w, r, ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
