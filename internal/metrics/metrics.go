// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the messaging engine:
// - API endpoint latency and throughput
// - Store transaction commits, conflicts and retries
// - WebSocket connections, rooms and broadcast drops
// - Reconciliation job outcomes

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Store Transaction Metrics
	StoreTxnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_txn_duration_seconds",
			Help:    "Duration of Badger transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "send_message", "create_thread", "respond_invitation", ...
	)

	StoreTxnConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_txn_conflicts_total",
			Help: "Total number of Badger transaction conflicts",
		},
		[]string{"operation"},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_persisted_total",
			Help: "Total number of messages committed to the store",
		},
		[]string{"message_type"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of authenticated websocket connections",
		},
	)

	WSRoomMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_room_members",
			Help: "Current total thread room memberships",
		},
	)

	WSEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_delivered_total",
			Help: "Total number of events pushed to websocket clients",
		},
		[]string{"event"},
	)

	WSEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_dropped_total",
			Help: "Total number of events dropped (slow client or full channel)",
		},
		[]string{"event"},
	)

	// Reconciliation Metrics
	ReconcileRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconcileMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_merges_total",
			Help: "Total number of duplicate thread pairs merged",
		},
	)

	ReconcileFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_failures_total",
			Help: "Total number of duplicate pairs that failed to merge",
		},
	)

	ReconcileLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_last_success_timestamp",
			Help: "Unix timestamp of last successful reconciliation pass",
		},
	)
)

// RecordAPIRequest records metrics for a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreTxn records a completed store transaction.
func RecordStoreTxn(operation string, duration time.Duration, conflicted bool) {
	StoreTxnDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if conflicted {
		StoreTxnConflicts.WithLabelValues(operation).Inc()
	}
}

// FormatStatusCode converts an HTTP status code to its label value.
func FormatStatusCode(code int) string {
	return strconv.Itoa(code)
}
