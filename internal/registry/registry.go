// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

// Package registry tracks live delivery sessions and which recipient each one
// is bound to.
//
// A single RWMutex guards both indices, so every snapshot observes a session
// either fully before or fully after a Register, Subscribe or Unregister.
package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/beacon/internal/metrics"
)

// SessionID identifies one transport connection. IDs increase monotonically
// and are never reused within a process.
type SessionID uint64

// ErrUnknownSession is returned by Subscribe after the session was removed.
// Callers should treat it as a lost race with disconnect.
var ErrUnknownSession = errors.New("unknown session")

// ErrSinkClosed is wrapped by Sink implementations that can no longer accept
// pushes.
var ErrSinkClosed = errors.New("sink closed")

// EventType names a server-to-client push.
type EventType string

const (
	EventNotification EventType = "notification"
	EventBroadcast    EventType = "broadcast"
)

// Event is one push. Payload is the encoded notification record, shared by
// every session in a fanout.
type Event struct {
	Type    EventType
	Payload []byte
}

// Sink is the push capability of a live session. Push must return promptly
// once ctx is done and must not deliver after returning an error.
type Sink interface {
	Push(ctx context.Context, ev Event) error
}

type entry struct {
	sink        Sink
	recipientID string
	connectedAt time.Time
}

// Registry maps recipients to live sessions.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[SessionID]*entry
	byRecipient map[string]map[SessionID]struct{}

	lastID atomic.Uint64
	now    func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		sessions:    make(map[SessionID]*entry),
		byRecipient: make(map[string]map[SessionID]struct{}),
		now:         time.Now,
	}
}

// Register adds an unbound session. It receives broadcasts only until
// Subscribe is called.
func (r *Registry) Register(sink Sink) SessionID {
	id := SessionID(r.lastID.Add(1))

	r.mu.Lock()
	r.sessions[id] = &entry{sink: sink, connectedAt: r.now()}
	// Set under mu so concurrent updates cannot land out of order.
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	return id
}

// Subscribe binds id to recipientID, replacing any previous binding.
// Subscribing again to the same recipient is a no-op.
func (r *Registry) Subscribe(id SessionID, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if e.recipientID == recipientID {
		return nil
	}
	if e.recipientID != "" {
		r.unindex(id, e.recipientID)
	}
	e.recipientID = recipientID
	if recipientID == "" {
		return nil
	}

	set, ok := r.byRecipient[recipientID]
	if !ok {
		set = make(map[SessionID]struct{})
		r.byRecipient[recipientID] = set
	}
	set[id] = struct{}{}
	return nil
}

// Unregister removes id from every index. Unknown ids are ignored.
func (r *Registry) Unregister(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if e.recipientID != "" {
		r.unindex(id, e.recipientID)
	}
	metrics.SessionsActive.Set(float64(len(r.sessions)))
}

// unindex must be called with mu held for writing.
func (r *Registry) unindex(id SessionID, recipientID string) {
	set := r.byRecipient[recipientID]
	delete(set, id)
	if len(set) == 0 {
		delete(r.byRecipient, recipientID)
	}
}

// SessionsFor returns a snapshot of recipientID's live sessions, in
// ascending id order.
func (r *Registry) SessionsFor(recipientID string) []SessionID {
	r.mu.RLock()
	set := r.byRecipient[recipientID]
	out := make([]SessionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sortIDs(out)
	return out
}

// AllSessions returns a snapshot of every live session, in ascending id
// order.
func (r *Registry) AllSessions() []SessionID {
	r.mu.RLock()
	out := make([]SessionID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sortIDs(out)
	return out
}

// Lookup returns the sink for id, or false once the session is gone.
func (r *Registry) Lookup(id SessionID) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

// RecipientOf returns the recipient bound to id, if any.
func (r *Registry) RecipientOf(id SessionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.recipientID == "" {
		return "", false
	}
	return e.recipientID, true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Recipients returns the number of distinct recipients with at least one
// live session.
func (r *Registry) Recipients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRecipient)
}
