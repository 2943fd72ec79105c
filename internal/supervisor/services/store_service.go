// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package services

import (
	"context"
	"time"
)

// GCStore matches *store.Store's value-log garbage collection loop.
type GCStore interface {
	RunGC(ctx context.Context, interval time.Duration, discardRatio float64)
}

// StoreGCService runs Badger's value-log garbage collector under
// supervision. Badger never reclaims value-log space on its own.
type StoreGCService struct {
	store        GCStore
	interval     time.Duration
	discardRatio float64
}

// NewStoreGCService wraps the store's GC loop.
func NewStoreGCService(store GCStore, interval time.Duration, discardRatio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 {
		discardRatio = 0.5
	}
	return &StoreGCService{store: store, interval: interval, discardRatio: discardRatio}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	s.store.RunGC(ctx, s.interval, s.discardRatio)
	return ctx.Err()
}

func (*StoreGCService) String() string { return "store-gc" }
