// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brewline/brewline/internal/config"
)

// Claims represents the JWT claims Brewline understands.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 bearer tokens and resolves them to Subjects.
// It implements the Resolver interface.
type JWTResolver struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTResolver creates a resolver from the security configuration.
// The secret is stored as []byte to avoid string interning.
func NewJWTResolver(cfg *config.SecurityConfig) (*JWTResolver, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	return &JWTResolver{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}, nil
}

// Resolve validates a bearer token and returns the subject it identifies.
// Returns ErrExpiredCredentials for expired tokens and ErrInvalidCredentials
// for anything else that fails signature or claims validation.
func (r *JWTResolver) Resolve(_ context.Context, token string) (*Subject, error) {
	if token == "" {
		return nil, ErrNoCredentials
	}

	claims, err := r.validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims.UserID == "" {
		return nil, ErrInvalidCredentials
	}

	return &Subject{UserID: claims.UserID, Role: role}, nil
}

// GenerateToken creates a signed token for a user. Brewline itself does not
// run a login flow; this exists for the service credential used by internal
// collaborators and for tests.
func (r *JWTResolver) GenerateToken(userID string, role Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// validate parses the token, verifies the HS256 signature and the
// registered time claims. Rejects unexpected signing algorithms to prevent
// algorithm confusion.
func (r *JWTResolver) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
