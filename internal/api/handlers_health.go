// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/beacon/internal/logging"
)

// Health and component states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ComponentUp       = "up"
	ComponentDown     = "down"
	ComponentDisabled = "disabled"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string  `json:"status"`
	ConnectedClients int     `json:"connectedClients"`
	Store            string  `json:"store"`
	Relay            string  `json:"relay"`
	Uptime           float64 `json:"uptime"`
}

// Health reports store and relay state. It answers 503 when the store ping
// fails and reports a disconnected relay as degraded.
//
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse{data=HealthStatus} "Service healthy or degraded"
// @Failure 503 {object} APIResponse "Store unreachable; error.details carries the HealthStatus"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.HealthTimeout)
	defer cancel()

	status := HealthStatus{
		Status: StatusHealthy,
		Store:  ComponentUp,
		Relay:  ComponentDisabled,
		Uptime: time.Since(h.startTime).Seconds(),
	}
	if h.clients != nil {
		status.ConnectedClients = h.clients.Count()
	}
	if h.relay != nil {
		status.Relay = h.relay.Status()
		if status.Relay != ComponentUp {
			status.Status = StatusDegraded
		}
	}

	if err := h.store.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("health check: store ping failed")
		status.Status = StatusUnhealthy
		status.Store = ComponentDown
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Notification store unavailable", status)
		return
	}

	rw.Success(status)
}

// HealthLive answers 200 while the process is serving, regardless of
// dependencies.
//
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse "Process alive"
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}
