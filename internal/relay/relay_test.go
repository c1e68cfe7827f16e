// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/notification"
)

func init() {
	logging.SetOutput(io.Discard)
}

func sample(recipient string) *notification.Notification {
	readAt := time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.UTC)
	return &notification.Notification{
		ID:          "0195a0c4-7d4e-7b1a-9f00-000000000001",
		RecipientID: recipient,
		Kind:        "order",
		Title:       "Shipped",
		Body:        "Your order is on its way",
		Attributes:  json.RawMessage(`{"orderId":42}`),
		ReadState:   notification.Read,
		CreatedAt:   time.Date(2026, 3, 1, 11, 59, 59, 123456789, time.UTC),
		ReadAt:      &readAt,
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		wantMode  Mode
	}{
		{"targeted", "alice", ModeTargeted},
		{"broadcast", "", ModeBroadcast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sample(tt.recipient)
			data, err := Marshal(NewEnvelope("instance-a", in))
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			env, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}

			if env.Origin != "instance-a" || env.Mode != tt.wantMode {
				t.Errorf("origin=%q mode=%q", env.Origin, env.Mode)
			}
			out := env.Notification
			if out.ID != in.ID || out.RecipientID != in.RecipientID || out.Kind != in.Kind ||
				out.Title != in.Title || out.Body != in.Body || out.ReadState != in.ReadState {
				t.Errorf("notification = %+v, want %+v", out, in)
			}
			if !out.CreatedAt.Equal(in.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v (nanoseconds must survive)", out.CreatedAt, in.CreatedAt)
			}
			if out.ReadAt == nil || !out.ReadAt.Equal(*in.ReadAt) {
				t.Errorf("ReadAt = %v, want %v", out.ReadAt, in.ReadAt)
			}
			if string(out.Attributes) != string(in.Attributes) {
				t.Errorf("Attributes = %s, want %s", out.Attributes, in.Attributes)
			}
		})
	}
}

func TestEnvelopeDeterministic(t *testing.T) {
	a, err := Marshal(NewEnvelope("x", sample("bob")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(NewEnvelope("x", sample("bob")))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEnvelopeRejects(t *testing.T) {
	unread := sample("alice")
	unread.ReadState, unread.ReadAt = notification.Unread, nil

	tests := []struct {
		name string
		env  Envelope
	}{
		{"missing origin", Envelope{Mode: ModeTargeted, Notification: unread}},
		{"missing notification", Envelope{Origin: "a", Mode: ModeTargeted}},
		{"missing id", Envelope{Origin: "a", Mode: ModeTargeted, Notification: &notification.Notification{RecipientID: "alice"}}},
		{"targeted without recipient", Envelope{Origin: "a", Mode: ModeTargeted, Notification: sample("")}},
		{"broadcast with recipient", Envelope{Origin: "a", Mode: ModeBroadcast, Notification: unread}},
		{"unknown mode", Envelope{Origin: "a", Mode: "multicast", Notification: unread}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Marshal(tt.env); !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("Marshal err = %v, want ErrInvalidEnvelope", err)
			}
		})
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := Unmarshal([]byte{0xff, 0x00, 0x13}); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("Unmarshal err = %v, want ErrInvalidEnvelope", err)
		}
	})
}

type linkStub bool

func (l linkStub) Connected() bool { return bool(l) }

func TestLinksStatus(t *testing.T) {
	tests := []struct {
		name  string
		links Links
		want  string
	}{
		{"all up", Links{linkStub(true), linkStub(true)}, StatusUp},
		{"one down", Links{linkStub(true), linkStub(false)}, StatusDown},
		{"nil link", Links{nil}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.links.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

// recorder is a Deliverer that keeps what it was handed.
type recorder struct {
	mu  sync.Mutex
	got []*notification.Notification
}

func (r *recorder) Deliver(_ context.Context, n *notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recorder) snapshot() []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*notification.Notification(nil), r.got...)
}

func TestRelayAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}

	srv, err := NewEmbeddedServer(ServerConfig{Port: -1})
	if err != nil {
		t.Fatalf("NewEmbeddedServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if !srv.IsRunning() {
		t.Fatal("server not running")
	}

	cfgA := Config{URL: srv.ClientURL(), Subject: "test.fanout", InstanceID: "instance-a"}
	cfgB := cfgA
	cfgB.InstanceID = "instance-b"

	pubA, err := NewPublisher(cfgA, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { _ = pubA.Close() })

	localA, remoteB := &recorder{}, &recorder{}
	subA, err := NewSubscriber(cfgA, localA, nil)
	if err != nil {
		t.Fatalf("NewSubscriber A: %v", err)
	}
	subB, err := NewSubscriber(cfgB, remoteB, nil)
	if err != nil {
		t.Fatalf("NewSubscriber B: %v", err)
	}
	t.Cleanup(func() {
		_ = subA.Close()
		_ = subB.Close()
	})

	if status := (Links{pubA, subA, subB}).Status(); status != StatusUp {
		t.Fatalf("Status() = %q, want up", status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, s := range []*Subscriber{subA, subB} {
		go func() { _ = s.Run(ctx) }()
	}

	// Core NATS drops messages published before the subscription exists,
	// so publish until B has seen one.
	n := sample("alice")
	deadline := time.Now().Add(5 * time.Second)
	for len(remoteB.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("instance B never received the relayed notification")
		}
		if err := pubA.Publish(ctx, n); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	got := remoteB.snapshot()[0]
	if got.ID != n.ID || got.RecipientID != "alice" || !got.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("relayed = %+v, want %+v", got, n)
	}

	// Give A's subscriber time to see its own envelopes.
	time.Sleep(100 * time.Millisecond)
	if own := localA.snapshot(); len(own) != 0 {
		t.Errorf("origin instance delivered its own envelope %d times", len(own))
	}
}

func TestPublishAfterClose(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}

	srv, err := NewEmbeddedServer(ServerConfig{Port: -1})
	if err != nil {
		t.Fatalf("NewEmbeddedServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	pub, err := NewPublisher(Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if pub.InstanceID() == "" {
		t.Error("instance id not generated")
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pub.Connected() {
		t.Error("closed publisher reports connected")
	}
	if err := pub.Publish(context.Background(), sample("alice")); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after close = %v, want ErrPublisherClosed", err)
	}
}

func TestNewPublisherUnreachable(t *testing.T) {
	if _, err := NewPublisher(Config{URL: "nats://127.0.0.1:1"}, nil); err == nil {
		t.Fatal("expected connection error")
	}
}
