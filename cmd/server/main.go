// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package main is the entry point for the Brewline messaging server.
//
// Brewline is the conversation backbone of a coffee-chat marketplace:
// threads between seekers and professionals, typed messages, coffee-chat
// invitations with a strict state machine, and realtime fan-out over
// websockets.
//
// # Boot order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml, env)
//  2. Logging: zerolog, structured, with request/correlation context
//  3. Store: BadgerDB document store (threads, messages, invitations)
//  4. Coordinator: serializable multi-document write transactions
//  5. Hub: websocket rooms, one connection slot per user
//  6. Supervision: suture tree (storage / realtime / api layers)
//  7. HTTP server: chi router, REST + websocket upgrade + metrics
//
// # Configuration
//
// Highest priority wins: environment variables, then config.yaml, then
// built-in defaults. The only required production setting is JWT_SECRET
// (32+ characters).
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the hub closes all websocket clients, and Badger
// flushes before close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brewline/brewline/internal/api"
	"github.com/brewline/brewline/internal/chat"
	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/store"
	"github.com/brewline/brewline/internal/supervisor"
	"github.com/brewline/brewline/internal/supervisor/services"
	"github.com/brewline/brewline/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("environment", cfg.Server.Environment).
		Msg("starting brewline messaging server")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("store close failed")
		}
	}()

	resolver, err := identity.NewJWTResolver(&cfg.Security)
	if err != nil {
		return fmt.Errorf("init identity: %w", err)
	}
	directory := identity.NewCachedDirectory(identity.NewMemoryDirectory(), 10000, 5*time.Minute)

	hub := websocket.NewHub(cfg.Websocket)
	coordinator := chat.NewCoordinator(st, directory, hub)
	reconciler := chat.NewReconciler(st, cfg.Reconciler.Interval)

	handler := api.NewHandler(coordinator, reconciler, hub, cfg)
	router := api.NewRouter(handler, resolver, cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if !cfg.Database.InMemory {
		tree.AddStorageService(services.NewStoreGCService(st, cfg.Database.GCInterval, cfg.Database.GCDiscardRatio))
	}
	if cfg.Reconciler.Enabled {
		tree.AddStorageService(reconciler)
	}
	tree.AddRealtimeService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}

	logging.Info().Msg("shutdown complete")
	return nil
}
