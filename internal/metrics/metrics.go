// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

// Package metrics registers Beacon's Prometheus collectors on the default
// registry and exposes small helpers so callers never touch label order.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery modes used as label values.
const (
	ModeTargeted  = "targeted"
	ModeBroadcast = "broadcast"
)

// Push results used as label values.
const (
	PushDelivered = "delivered"
	PushFailed    = "failed"
	PushTimeout   = "timeout"
	PushGone      = "gone"
)

// Relay directions.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_sessions_active",
			Help: "Live delivery sessions currently registered",
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sessions_total",
			Help: "Delivery sessions by how they ended",
		},
		[]string{"result"}, // "closed", "timeout", "error"
	)

	ClientMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_client_messages_total",
			Help: "Inbound client frames by type and outcome",
		},
		[]string{"type", "result"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_notifications_created_total",
			Help: "Notifications durably recorded",
		},
		[]string{"mode"},
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_pushes_total",
			Help: "Per-session live push attempts",
		},
		[]string{"mode", "result"},
	)

	PushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_push_duration_seconds",
			Help:    "Time to hand one event to a session send buffer",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
	)

	FanoutSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_fanout_sessions",
			Help:    "Sessions resolved for a single send",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"mode"},
	)

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_store_operations_total",
			Help: "Notification store calls by operation and outcome",
		},
		[]string{"op", "result"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_store_operation_duration_seconds",
			Help:    "Notification store call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_relay_messages_total",
			Help: "Cross-instance relay envelopes",
		},
		[]string{"direction", "result"}, // direction: "out", "in"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// RecordPush counts one push attempt and its latency.
func RecordPush(mode, result string, d time.Duration) {
	Pushes.WithLabelValues(mode, result).Inc()
	PushDuration.Observe(d.Seconds())
}

// RecordStoreOp counts one store call. NotFound is a normal outcome and is
// reported separately from backend failures.
func RecordStoreOp(op string, d time.Duration, err error, notFound bool) {
	result := "ok"
	switch {
	case notFound:
		result = "not_found"
	case err != nil:
		result = "error"
	}
	StoreOperations.WithLabelValues(op, result).Inc()
	StoreDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetBreakerState records a breaker transition. state follows gobreaker's
// numbering: 0 closed, 1 half-open, 2 open.
func SetBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
