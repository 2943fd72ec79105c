// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package identity is the gate between bearer credentials and user
// identities. Every HTTP call and every realtime connection attempt resolves
// its credential here before touching any store.
//
// User and profile storage live outside this service; identity only exposes
// what the messaging engine needs: a user id, a role, and a Directory for
// enriching message DTOs with display names.
package identity

import (
	"context"
	"errors"
)

// Role classifies what a subject may do.
type Role string

const (
	// RoleSeeker is a marketplace user looking for coffee chats.
	RoleSeeker Role = "seeker"

	// RoleProfessional is a marketplace user offering coffee chats.
	RoleProfessional Role = "professional"

	// RoleService identifies trusted internal collaborators (booking,
	// payments) that may append system messages to threads.
	RoleService Role = "service"

	// RoleAdmin may trigger operational endpoints such as reconciliation.
	RoleAdmin Role = "admin"
)

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleSeeker):
		return RoleSeeker, nil
	case string(RoleProfessional):
		return RoleProfessional, nil
	case string(RoleService):
		return RoleService, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", errors.New("invalid role: " + s)
	}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Standard credential resolution errors.
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrInsufficientRole indicates a valid subject lacking the role a
	// route requires.
	ErrInsufficientRole = errors.New("insufficient role")
)

// Subject is a resolved identity: who the caller is and what they may do.
type Subject struct {
	UserID string
	Role   Role
}

// IsService reports whether the subject is a trusted internal collaborator.
func (s *Subject) IsService() bool {
	return s.Role == RoleService
}

// IsAdmin reports whether the subject may use operational endpoints.
func (s *Subject) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Resolver resolves a bearer credential to a Subject.
// This is the single identity contract consumed by both the HTTP layer and
// the realtime layer.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Subject, error)
}

type subjectContextKey struct{}

// ContextWithSubject stores a resolved subject in the context.
func ContextWithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext retrieves the resolved subject from the context.
// Returns nil if the request was not authenticated.
func SubjectFromContext(ctx context.Context) *Subject {
	if s, ok := ctx.Value(subjectContextKey{}).(*Subject); ok {
		return s
	}
	return nil
}
