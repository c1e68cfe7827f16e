// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/registry"
)

func init() {
	logging.SetOutput(io.Discard)
}

// tokenAuth accepts tokens of the form "<id>" or "<id>:admin".
type tokenAuth struct{}

func (tokenAuth) Authenticate(token string) (*auth.Principal, error) {
	if token == "" || token == "bad" {
		return nil, auth.ErrUnauthenticated
	}
	id, role, _ := strings.Cut(token, ":")
	roles := []string{auth.RoleUser}
	if role == auth.RoleAdmin {
		roles = append(roles, auth.RoleAdmin)
	}
	return &auth.Principal{ID: id, Roles: roles, Method: auth.AuthMethodJWT}, nil
}

type testEnv struct {
	reg    *registry.Registry
	mgr    *Manager
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{reg: registry.New()}
	env.mgr = NewManager(env.reg, tokenAuth{}, cfg)
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		env.mgr.Accept(r.Context(), conn, nil)
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	msg := read(t, conn)
	if msg.Type != MessageTypeError || msg.Code != code {
		t.Fatalf("got %+v, want error %s", msg, code)
	}
}

// subscribe authenticates as token and subscribes to recipientID.
func subscribe(t *testing.T, conn *websocket.Conn, token, recipientID string) ServerMessage {
	t.Helper()
	send(t, conn, ClientMessage{Type: MessageTypeAuthenticate, Token: token})
	if msg := read(t, conn); msg.Type != MessageTypeAuthenticated {
		t.Fatalf("authenticate reply = %+v", msg)
	}
	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, RecipientID: recipientID})
	return read(t, conn)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sessionFor(t *testing.T, reg *registry.Registry, recipientID string) *Session {
	t.Helper()
	var ids []registry.SessionID
	waitFor(t, "subscription of "+recipientID, func() bool {
		ids = reg.SessionsFor(recipientID)
		return len(ids) == 1
	})
	sink, ok := reg.Lookup(ids[0])
	if !ok {
		t.Fatal("session vanished")
	}
	return sink.(*Session)
}

func TestSubscribeAndReceivePushes(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)

	reply := subscribe(t, conn, "alice", "")
	if reply.Type != MessageTypeSubscribed || reply.RecipientID != "alice" {
		t.Fatalf("subscribe reply = %+v", reply)
	}

	s := sessionFor(t, env.reg, "alice")
	if s.State() != StateSubscribed {
		t.Errorf("State() = %s, want SUBSCRIBED", s.State())
	}

	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		payload := []byte(`{"id":"` + title + `","title":"` + title + `"}`)
		if err := s.Push(ctx, registry.Event{Type: registry.EventNotification, Payload: payload}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		msg := read(t, conn)
		if msg.Type != MessageTypeNotification {
			t.Fatalf("frame type = %s", msg.Type)
		}
		var data struct{ Title string }
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Title != want {
			t.Fatalf("data = %s, want title %s", msg.Data, want)
		}
	}
}

func TestUnsubscribedSessionGetsBroadcasts(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)

	waitFor(t, "registration", func() bool { return env.reg.Count() == 1 })
	sink, _ := env.reg.Lookup(env.reg.AllSessions()[0])
	if sink.(*Session).State() != StateConnected {
		t.Fatalf("new session state = %s", sink.(*Session).State())
	}

	ev := registry.Event{Type: registry.EventBroadcast, Payload: []byte(`{"title":"maintenance"}`)}
	if err := sink.Push(context.Background(), ev); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if msg := read(t, conn); msg.Type != MessageTypeBroadcast {
		t.Errorf("frame = %+v, want broadcast", msg)
	}
}

func TestSubscribeRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)

	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, RecipientID: "alice"})
	expectError(t, conn, ErrorCodeUnauthenticated)

	send(t, conn, ClientMessage{Type: MessageTypeAuthenticate, Token: "bad"})
	expectError(t, conn, ErrorCodeUnauthenticated)

	if got := env.reg.SessionsFor("alice"); len(got) != 0 {
		t.Errorf("unauthenticated subscribe was indexed: %v", got)
	}
}

func TestSubscribeToOtherRecipient(t *testing.T) {
	env := newTestEnv(t, Config{})

	user := env.dial(t)
	send(t, user, ClientMessage{Type: MessageTypeAuthenticate, Token: "alice"})
	read(t, user)
	send(t, user, ClientMessage{Type: MessageTypeSubscribe, RecipientID: "bob"})
	expectError(t, user, ErrorCodeForbidden)

	admin := env.dial(t)
	if reply := subscribe(t, admin, "root:admin", "bob"); reply.RecipientID != "bob" {
		t.Fatalf("admin subscribe reply = %+v", reply)
	}
	sessionFor(t, env.reg, "bob")
}

func TestResubscribeRebinds(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)

	subscribe(t, conn, "root:admin", "alice")
	send(t, conn, ClientMessage{Type: MessageTypeSubscribe, RecipientID: "bob"})
	if msg := read(t, conn); msg.RecipientID != "bob" {
		t.Fatalf("rebind reply = %+v", msg)
	}
	if got := env.reg.SessionsFor("alice"); len(got) != 0 {
		t.Errorf("alice still bound: %v", got)
	}
	sessionFor(t, env.reg, "bob")
}

func TestUnknownAndMalformedFrames(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)

	send(t, conn, ClientMessage{Type: "dance"})
	expectError(t, conn, ErrorCodeUnknownMessage)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	expectError(t, conn, ErrorCodeUnknownMessage)

	// The session survives bad input.
	send(t, conn, ClientMessage{Type: MessageTypePing})
	if msg := read(t, conn); msg.Type != MessageTypePong {
		t.Errorf("ping reply = %+v", msg)
	}
}

func TestInboundRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{MessageRate: 0.001, MessageBurst: 2})
	conn := env.dial(t)

	for i := 0; i < 2; i++ {
		send(t, conn, ClientMessage{Type: MessageTypePing})
		if msg := read(t, conn); msg.Type != MessageTypePong {
			t.Fatalf("ping %d reply = %+v", i, msg)
		}
	}
	send(t, conn, ClientMessage{Type: MessageTypePing})
	expectError(t, conn, ErrorCodeRateLimited)
}

func TestDisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := env.dial(t)
	subscribe(t, conn, "alice", "")
	s := sessionFor(t, env.reg, "alice")

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, "unregister", func() bool { return env.reg.Count() == 0 })
	if s.State() != StateClosed {
		t.Errorf("State() = %s, want CLOSED", s.State())
	}
	err := s.Push(context.Background(), registry.Event{Type: registry.EventNotification, Payload: []byte(`{}`)})
	if !errors.Is(err, ErrSessionClosed) || !errors.Is(err, registry.ErrSinkClosed) {
		t.Errorf("Push() after close error = %v, want ErrSessionClosed", err)
	}
	waitFor(t, "manager cleanup", func() bool { return env.mgr.Count() == 0 })
}

func TestIdleSessionTimesOut(t *testing.T) {
	env := newTestEnv(t, Config{PongWait: 150 * time.Millisecond, PingPeriod: 100 * time.Millisecond})
	_ = env.dial(t) // never reads, so pings go unanswered

	waitFor(t, "registration", func() bool { return env.reg.Count() == 1 })
	waitFor(t, "idle timeout", func() bool { return env.reg.Count() == 0 })
}

func TestPushRespectsContext(t *testing.T) {
	// No pumps run, so nothing drains the buffer.
	s := newSession(nil, registry.New(), tokenAuth{}, Config{SendBuffer: 1}.withDefaults())
	ev := registry.Event{Type: registry.EventNotification, Payload: []byte(`{}`)}

	if err := s.Push(context.Background(), ev); err != nil {
		t.Fatalf("first Push() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Push(ctx, ev); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Push() on full buffer error = %v, want deadline exceeded", err)
	}
}

func TestPushWithExpiredContextNeverEnqueues(t *testing.T) {
	s := newSession(nil, registry.New(), tokenAuth{}, Config{SendBuffer: 8}.withDefaults())
	ev := registry.Event{Type: registry.EventNotification, Payload: []byte(`{}`)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 20; i++ {
		if err := s.Push(ctx, ev); !errors.Is(err, context.Canceled) {
			t.Fatalf("Push() error = %v, want context.Canceled", err)
		}
	}
	if n := len(s.send); n != 0 {
		t.Errorf("expired pushes enqueued %d frames", n)
	}
}

func TestManagerShutdownClosesSessions(t *testing.T) {
	env := newTestEnv(t, Config{})
	conns := []*websocket.Conn{env.dial(t), env.dial(t)}
	waitFor(t, "registration", func() bool { return env.mgr.Count() == 2 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.mgr.RunWithContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunWithContext() did not return")
	}

	if env.reg.Count() != 0 {
		t.Errorf("registry still holds %d sessions", env.reg.Count())
	}
	for _, c := range conns {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("client read error = %v, want normal close", err)
		}
	}

	// Late connections are turned away.
	late := env.dial(t)
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("late client read error = %v, want going away", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateConnected:  "CONNECTED",
		StateSubscribed: "SUBSCRIBED",
		StateClosed:     "CLOSED",
		State(9):        "State(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
