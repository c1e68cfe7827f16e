// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

// Package dispatch persists notifications and fans them out to live sessions.
//
// Every send is persisted before any push is attempted. The persisted record
// is the source of truth; pushes are best effort and their failures never
// reach the producer. Targeted sends to one recipient hold that recipient's
// lock from create through fanout, so sessions observe them in creation
// order. Broadcasts are ordered among themselves by a separate lock.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/beacon/internal/keylock"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/metrics"
	"github.com/tomtom215/beacon/internal/notification"
	"github.com/tomtom215/beacon/internal/registry"
)

// DefaultPushTimeout bounds a single session push when Config leaves it unset.
const DefaultPushTimeout = 2 * time.Second

// Publisher forwards a locally dispatched record to other instances.
type Publisher interface {
	Publish(ctx context.Context, n *notification.Notification) error
}

// Config holds dispatcher tunables.
type Config struct {
	PushTimeout time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher attaches a cross-instance relay.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store       notification.Store
	registry    *registry.Registry
	locks       *keylock.Locker
	broadcastMu sync.Mutex
	pushTimeout time.Duration
	publisher   Publisher
	logger      zerolog.Logger
}

// New wires a dispatcher over store and reg.
func New(store notification.Store, reg *registry.Registry, cfg Config, opts ...Option) *Dispatcher {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	d := &Dispatcher{
		store:       store,
		registry:    reg,
		locks:       keylock.New(),
		pushTimeout: cfg.PushTimeout,
		logger:      logging.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendToUser persists a notification for recipientID and pushes it to every
// session currently subscribed to that recipient.
func (d *Dispatcher) SendToUser(ctx context.Context, recipientID string, c notification.Content) (*notification.Notification, error) {
	// An empty recipient would be stored as a broadcast.
	if recipientID == "" {
		return nil, notification.ErrInvalidRecipient
	}

	unlock := d.locks.Lock(recipientID)
	defer unlock()

	n, err := d.store.Create(ctx, recipientID, c)
	if err != nil {
		return nil, storeError(err)
	}
	metrics.NotificationsCreated.WithLabelValues(metrics.ModeTargeted).Inc()

	d.fanout(ctx, metrics.ModeTargeted, registry.EventNotification, n, d.registry.SessionsFor(recipientID))
	d.publish(ctx, n)
	return n, nil
}

// Broadcast persists an audit record and pushes it to every live session,
// subscribed or not.
func (d *Dispatcher) Broadcast(ctx context.Context, c notification.Content) (*notification.Notification, error) {
	d.broadcastMu.Lock()
	defer d.broadcastMu.Unlock()

	n, err := d.store.Create(ctx, "", c)
	if err != nil {
		return nil, storeError(err)
	}
	metrics.NotificationsCreated.WithLabelValues(metrics.ModeBroadcast).Inc()

	d.fanout(ctx, metrics.ModeBroadcast, registry.EventBroadcast, n, d.registry.AllSessions())
	d.publish(ctx, n)
	return n, nil
}

// Deliver fans out a record persisted by another instance to local sessions
// only. It neither persists nor republishes.
func (d *Dispatcher) Deliver(ctx context.Context, n *notification.Notification) {
	if n.IsBroadcast() {
		d.broadcastMu.Lock()
		defer d.broadcastMu.Unlock()
		d.fanout(ctx, metrics.ModeBroadcast, registry.EventBroadcast, n, d.registry.AllSessions())
		return
	}

	unlock := d.locks.Lock(n.RecipientID)
	defer unlock()
	d.fanout(ctx, metrics.ModeTargeted, registry.EventNotification, n, d.registry.SessionsFor(n.RecipientID))
}

// fanout pushes n to ids concurrently and returns once every push has
// finished or timed out.
func (d *Dispatcher) fanout(ctx context.Context, mode string, typ registry.EventType, n *notification.Notification, ids []registry.SessionID) {
	metrics.FanoutSize.WithLabelValues(mode).Observe(float64(len(ids)))
	if len(ids) == 0 {
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		d.logger.Error().Err(err).Str("notification_id", n.ID).Msg("encode push payload")
		return
	}
	ev := registry.Event{Type: typ, Payload: payload}

	// Pushes outlive a cancelled producer request; the record is already
	// persisted.
	pushCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, id := range ids {
		sink, ok := d.registry.Lookup(id)
		if !ok {
			metrics.RecordPush(mode, metrics.PushGone, 0)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.push(pushCtx, mode, id, sink, ev, n.ID)
		}()
	}
	wg.Wait()
}

// push waits for sink.Push itself, so an outcome recorded here is final: no
// write can land after the push was counted as timed out.
func (d *Dispatcher) push(ctx context.Context, mode string, id registry.SessionID, sink registry.Sink, ev registry.Event, notificationID string) {
	ctx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()

	start := time.Now()
	err := sink.Push(ctx, ev)

	result := pushResult(err)
	metrics.RecordPush(mode, result, time.Since(start))
	if err != nil {
		d.logger.Debug().
			Err(err).
			Uint64("session_id", uint64(id)).
			Str("notification_id", notificationID).
			Str("mode", mode).
			Str("result", result).
			Msg("push dropped")
	}
}

func (d *Dispatcher) publish(ctx context.Context, n *notification.Notification) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(context.WithoutCancel(ctx), n); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("notification_id", n.ID).Msg("relay publish failed")
	}
}

func pushResult(err error) string {
	switch {
	case err == nil:
		return metrics.PushDelivered
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.PushTimeout
	case errors.Is(err, registry.ErrSinkClosed):
		return metrics.PushGone
	default:
		return metrics.PushFailed
	}
}

// storeError leaves client errors and abandoned requests untouched and makes
// sure everything else matches ErrStoreUnavailable.
func storeError(err error) error {
	if notification.IsClientError(err) || notification.IsCanceled(err) ||
		errors.Is(err, notification.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", notification.ErrStoreUnavailable, err)
}
