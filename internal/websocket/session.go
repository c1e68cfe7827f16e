// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/metrics"
	"github.com/tomtom215/beacon/internal/registry"
)

// ErrSessionClosed is returned by Push once the session has closed.
var ErrSessionClosed = fmt.Errorf("session closed: %w", registry.ErrSinkClosed)

// State is a session's lifecycle position. Transitions only move forward:
// Connected to Subscribed to Closed, or Connected straight to Closed.
type State int32

const (
	StateConnected State = iota
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Close reasons, also used as the beacon_sessions_total result label.
const (
	closeReasonClient     = "closed"
	closeReasonTimeout    = "timeout"
	closeReasonReadError  = "read_error"
	closeReasonWriteError = "write_error"
	closeReasonShutdown   = "shutdown"
	closeReasonSlow       = "slow_consumer"
)

// Authenticator turns an in-band token into a principal.
type Authenticator interface {
	Authenticate(token string) (*auth.Principal, error)
}

// Session is one live WebSocket connection. It implements registry.Sink.
type Session struct {
	id   registry.SessionID
	conn *websocket.Conn
	cfg  Config
	reg  *registry.Registry
	auth Authenticator

	limiter   *rate.Limiter
	state     atomic.Int32
	principal atomic.Pointer[auth.Principal]

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func newSession(conn *websocket.Conn, reg *registry.Registry, authn Authenticator, cfg Config) *Session {
	limit := rate.Inf
	if cfg.MessageRate > 0 {
		limit = rate.Limit(cfg.MessageRate)
	}
	return &Session{
		conn:    conn,
		cfg:     cfg,
		reg:     reg,
		auth:    authn,
		limiter: rate.NewLimiter(limit, max(cfg.MessageBurst, 1)),
		send:    make(chan []byte, cfg.SendBuffer),
		closed:  make(chan struct{}),
	}
}

// ID returns the registry id.
func (s *Session) ID() registry.SessionID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Principal returns the authenticated caller, or nil.
func (s *Session) Principal() *auth.Principal { return s.principal.Load() }

// Push queues ev for delivery. It blocks while the send buffer is full until
// ctx is done or the session closes.
func (s *Session) Push(ctx context.Context, ev registry.Event) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	frame, err := eventFrame(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	// An expired ctx must not race a free buffer slot.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session as part of server shutdown.
func (s *Session) Close() {
	s.close(closeReasonShutdown)
}

// run drives the session until it closes. The caller must have registered
// the session.
func (s *Session) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()
	s.readPump()
	<-writerDone
}

// close transitions to Closed exactly once and removes the session from the
// registry.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		s.reg.Unregister(s.id)
		close(s.closed)

		metrics.SessionsTotal.WithLabelValues(reason).Inc()
		s.logger.Debug().
			Str("reason", reason).
			Str("previous_state", prev.String()).
			Msg("websocket session closed")
	})
}

func (s *Session) readPump() {
	defer func() {
		_ = s.conn.Close() // unblocks writePump if it is mid-write
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		s.close(closeReasonReadError)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.close(readCloseReason(err))
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		// The pong handler only fires for control frames; any inbound
		// traffic proves liveness.
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		if !s.handle(data) {
			return
		}
	}
}

func readCloseReason(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return closeReasonTimeout
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return closeReasonClient
	}
	return closeReasonReadError
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.close(closeReasonWriteError)
				_ = s.conn.Close()
				return
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.close(closeReasonWriteError)
				_ = s.conn.Close()
				return
			}

		case <-s.closed:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.Close()
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// handle processes one inbound frame. It returns false when the session
// should stop reading.
func (s *Session) handle(data []byte) bool {
	if !s.limiter.Allow() {
		metrics.ClientMessages.WithLabelValues("any", "rate_limited").Inc()
		return s.reply(errorFrame(ErrorCodeRateLimited, "Too many messages"))
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.ClientMessages.WithLabelValues("invalid", "rejected").Inc()
		return s.reply(errorFrame(ErrorCodeUnknownMessage, "Malformed message"))
	}

	switch msg.Type {
	case MessageTypeAuthenticate:
		return s.handleAuthenticate(msg)
	case MessageTypeSubscribe:
		return s.handleSubscribe(msg)
	case MessageTypePing:
		metrics.ClientMessages.WithLabelValues(MessageTypePing, "ok").Inc()
		return s.reply(ServerMessage{Type: MessageTypePong})
	default:
		metrics.ClientMessages.WithLabelValues("unknown", "rejected").Inc()
		return s.reply(errorFrame(ErrorCodeUnknownMessage, "Unknown message type"))
	}
}

func (s *Session) handleAuthenticate(msg ClientMessage) bool {
	if s.auth == nil {
		metrics.ClientMessages.WithLabelValues(MessageTypeAuthenticate, "rejected").Inc()
		return s.reply(errorFrame(ErrorCodeUnauthenticated, "Authentication unavailable"))
	}
	p, err := s.auth.Authenticate(msg.Token)
	if err != nil {
		metrics.ClientMessages.WithLabelValues(MessageTypeAuthenticate, "rejected").Inc()
		return s.reply(errorFrame(ErrorCodeUnauthenticated, "Invalid token"))
	}
	s.principal.Store(p)
	metrics.ClientMessages.WithLabelValues(MessageTypeAuthenticate, "ok").Inc()
	s.logger.Debug().Str("principal", p.ID).Msg("websocket session authenticated")
	return s.reply(ServerMessage{Type: MessageTypeAuthenticated, RecipientID: p.ID})
}

func (s *Session) handleSubscribe(msg ClientMessage) bool {
	p := s.Principal()
	if p == nil {
		metrics.ClientMessages.WithLabelValues(MessageTypeSubscribe, "rejected").Inc()
		return s.reply(errorFrame(ErrorCodeUnauthenticated, "Authenticate before subscribing"))
	}

	target := msg.RecipientID
	if target == "" {
		target = p.ID
	}
	if target != p.ID && !p.HasRole(auth.RoleAdmin) {
		metrics.ClientMessages.WithLabelValues(MessageTypeSubscribe, "forbidden").Inc()
		return s.reply(errorFrame(ErrorCodeForbidden, "Cannot subscribe to another recipient"))
	}

	if err := s.reg.Subscribe(s.id, target); err != nil {
		// Lost the race with close.
		return false
	}
	s.state.CompareAndSwap(int32(StateConnected), int32(StateSubscribed))
	metrics.ClientMessages.WithLabelValues(MessageTypeSubscribe, "ok").Inc()
	s.logger.Debug().Str("recipient_id", target).Msg("websocket session subscribed")
	return s.reply(ServerMessage{Type: MessageTypeSubscribed, RecipientID: target})
}

// reply queues a control response, waiting at most WriteWait for buffer
// space. A client that cannot drain its replies is disconnected.
func (s *Session) reply(msg ServerMessage) bool {
	frame, err := MarshalMessage(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msg.Type).Msg("encode reply")
		return true
	}

	timer := time.NewTimer(s.cfg.WriteWait)
	defer timer.Stop()

	select {
	case s.send <- frame:
		return true
	case <-s.closed:
		return false
	case <-timer.C:
		s.close(closeReasonSlow)
		return false
	}
}

func (s *Session) bind(ctx context.Context, id registry.SessionID) {
	s.id = id
	ctx = logging.ContextWithSessionID(ctx, uint64(id))
	s.logger = logging.Ctx(ctx).With().Str("component", "websocket").Logger()
}
