// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package websocket

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/config"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/registry"
)

// ShutdownReason identifies why the manager is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Config holds per-session transport limits.
type Config struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	MessageRate    float64 // inbound frames per second, 0 for unlimited
	MessageBurst   int
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     64,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
		MessageRate:    10,
		MessageBurst:   20,
	}
}

// ConfigFromDelivery maps the delivery section of the service config.
func ConfigFromDelivery(d config.DeliveryConfig) Config {
	return Config{
		SendBuffer:     d.SendBuffer,
		WriteWait:      d.WriteWait,
		PongWait:       d.PongWait,
		PingPeriod:     d.PingPeriod,
		MaxMessageSize: d.MaxMessageSize,
		MessageRate:    d.MessageRate,
		MessageBurst:   d.MessageBurst,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	return c
}

// Manager owns the live sessions of one process. It hands each accepted
// connection to a Session and closes every session on shutdown.
type Manager struct {
	reg  *registry.Registry
	auth Authenticator
	cfg  Config

	mu       sync.Mutex
	sessions map[*Session]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewManager creates a session manager. authn validates in-band
// authenticate frames.
func NewManager(reg *registry.Registry, authn Authenticator, cfg Config) *Manager {
	return &Manager{
		reg:      reg,
		auth:     authn,
		cfg:      cfg.withDefaults(),
		sessions: make(map[*Session]struct{}),
	}
}

// Accept registers conn as a new session and starts its pumps. When the
// upgrade request already carried credentials, principal pre-authenticates
// the session. Accept returns nil and closes conn after shutdown.
func (m *Manager) Accept(ctx context.Context, conn *websocket.Conn, principal *auth.Principal) *Session {
	s := newSession(conn, m.reg, m.auth, m.cfg)
	if principal != nil {
		s.principal.Store(principal)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.cfg.WriteWait))
		_ = conn.Close()
		return nil
	}
	s.bind(ctx, m.reg.Register(s))
	m.sessions[s] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	s.logger.Debug().Bool("preauthenticated", principal != nil).Msg("websocket session connected")

	go func() {
		defer m.wg.Done()
		s.run()
		m.mu.Lock()
		delete(m.sessions, s)
		m.mu.Unlock()
	}()
	return s
}

// Count returns the number of sessions the manager is running.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunWithContext blocks until ctx is done, then closes every session and
// waits for their pumps to exit. It is designed for suture supervision.
func (m *Manager) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	m.mu.Lock()
	m.stopped = true
	sessions := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, s := range sessions {
		s.Close()
	}
	m.wg.Wait()

	logging.Info().
		Str("component", "websocket-manager").
		Str("reason", string(getShutdownReason(ctx))).
		Int("sessions_closed", len(sessions)).
		Msg("websocket manager stopped")
	return ctx.Err()
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
