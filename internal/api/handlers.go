// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/notification"
	ws "github.com/tomtom215/beacon/internal/websocket"
)

// Sender creates and fans out notifications.
type Sender interface {
	SendToUser(ctx context.Context, recipientID string, c notification.Content) (*notification.Notification, error)
	Broadcast(ctx context.Context, c notification.Content) (*notification.Notification, error)
}

// SessionAcceptor turns an upgraded connection into a delivery session.
type SessionAcceptor interface {
	Accept(ctx context.Context, conn *websocket.Conn, principal *auth.Principal) *ws.Session
}

// ClientCounter reports live sessions.
type ClientCounter interface {
	Count() int
}

// RelayStatus reports the cross-instance relay state, for example
// "connected" or "disconnected".
type RelayStatus interface {
	Status() string
}

// HandlerConfig holds the settings handlers read per request.
type HandlerConfig struct {
	DefaultPageSize int
	MaxPageSize     int

	// AllowedOrigins gates WebSocket upgrades. "*" allows any origin.
	AllowedOrigins []string

	// HealthTimeout bounds the store ping in /health.
	HealthTimeout time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	sender    Sender
	store     notification.Store
	sessions  SessionAcceptor
	clients   ClientCounter
	relay     RelayStatus
	cfg       HandlerConfig
	startTime time.Time
}

// HandlerDeps are the collaborators a Handler needs. Relay may be nil when
// the relay is disabled.
type HandlerDeps struct {
	Sender   Sender
	Store    notification.Store
	Sessions SessionAcceptor
	Clients  ClientCounter
	Relay    RelayStatus
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps, cfg HandlerConfig) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = notification.DefaultPageLimit
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = notification.MaxPageLimit
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	return &Handler{
		sender:    deps.Sender,
		store:     deps.Store,
		sessions:  deps.Sessions,
		clients:   deps.Clients,
		relay:     deps.Relay,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// WebSocket upgrades the request into a delivery session. Credentials on the
// upgrade request pre-authenticate the session; otherwise the client sends
// an authenticate frame.
//
// @Summary Open a delivery session
// @Tags Sessions
// @Success 101 "Switching protocols"
// @Failure 400 {object} APIResponse "Not a WebSocket upgrade"
// @Router /api/v1/ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		logging.Ctx(r.Context()).Warn().Msg("WebSocket connection rejected: session manager not initialized")
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "WebSocket service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	if s := h.sessions.Accept(r.Context(), conn, auth.PrincipalFromContext(r.Context())); s == nil {
		logging.Ctx(r.Context()).Debug().Msg("WebSocket connection refused during shutdown")
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. Browsers
// always send Origin, so a missing header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Ctx(r.Context()).Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and truncates s so it can be
// logged safely.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
