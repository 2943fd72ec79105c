// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package identity

import (
	"context"
	"sync"
	"time"

	"github.com/brewline/brewline/internal/cache"
)

// Profile is the subset of user profile data the messaging engine needs for
// DTO enrichment. Full profiles live in the external user service.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Directory resolves user ids to display profiles.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Profile, error)
}

// MemoryDirectory is an in-process Directory backed by a map. Profiles are
// registered as they are observed (e.g. from token claims or an upstream
// sync). Lookups for unknown users return a minimal profile rather than an
// error: message delivery must not depend on profile availability.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{profiles: make(map[string]*Profile)}
}

// Register adds or replaces a profile.
func (d *MemoryDirectory) Register(profile *Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[profile.ID] = profile
}

// Lookup returns the profile for a user id. Unknown users get a fallback
// profile whose display name is the user id.
func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if p, ok := d.profiles[userID]; ok {
		return p, nil
	}
	return &Profile{ID: userID, DisplayName: userID}, nil
}

// CachedDirectory wraps a Directory with an LRU profile cache. Message
// enrichment hits the directory once per sender per TTL window instead of
// once per message.
type CachedDirectory struct {
	inner Directory
	lru   *cache.LRU
}

// NewCachedDirectory wraps a directory with a cache of the given size and
// freshness window.
func NewCachedDirectory(inner Directory, capacity int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{inner: inner, lru: cache.NewLRU(capacity, ttl)}
}

// Lookup returns the cached profile or fetches and caches it.
func (d *CachedDirectory) Lookup(ctx context.Context, userID string) (*Profile, error) {
	if v, ok := d.lru.Get(userID); ok {
		return v.(*Profile), nil
	}

	p, err := d.inner.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.lru.Add(userID, p)
	return p, nil
}

// Invalidate drops a cached profile, e.g. after an upstream profile change.
func (d *CachedDirectory) Invalidate(userID string) {
	d.lru.Remove(userID)
}
