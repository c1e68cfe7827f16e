// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/metrics"
)

// GuardConfig tunes the store circuit breaker.
type GuardConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Guard decorates a Store with a circuit breaker and per-operation metrics.
// While the breaker is open every call fails fast with ErrStoreUnavailable.
// Request errors such as ErrNotFound, and requests the caller abandoned,
// never trip it.
type Guard struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Store = (*Guard)(nil)

// NewGuard wraps next.
func NewGuard(next Store, cfg GuardConfig) *Guard {
	if cfg.Name == "" {
		cfg.Name = "notification-store"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err) || IsCanceled(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state changed")
		},
	}
	metrics.SetBreakerState(cfg.Name, int(gobreaker.StateClosed))

	return &Guard{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State exposes the breaker state for health reporting.
func (g *Guard) State() string {
	return g.cb.State().String()
}

// Unwrap returns the decorated store.
func (g *Guard) Unwrap() Store {
	return g.next
}

func guarded[T any](g *Guard, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	metrics.RecordStoreOp(op, time.Since(start), err, errors.Is(err, ErrNotFound))

	var zero T
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func (g *Guard) Create(ctx context.Context, recipientID string, c Content) (*Notification, error) {
	return guarded(g, "create", func() (*Notification, error) {
		return g.next.Create(ctx, recipientID, c)
	})
}

func (g *Guard) ListForRecipient(ctx context.Context, recipientID string, p Page) (*PageResult, error) {
	return guarded(g, "list", func() (*PageResult, error) {
		return g.next.ListForRecipient(ctx, recipientID, p)
	})
}

func (g *Guard) MarkRead(ctx context.Context, recipientID, id string) (*Notification, error) {
	return guarded(g, "mark_read", func() (*Notification, error) {
		return g.next.MarkRead(ctx, recipientID, id)
	})
}

func (g *Guard) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return guarded(g, "mark_all_read", func() (int, error) {
		return g.next.MarkAllRead(ctx, recipientID)
	})
}

func (g *Guard) Delete(ctx context.Context, recipientID, id string) error {
	_, err := guarded(g, "delete", func() (struct{}, error) {
		return struct{}{}, g.next.Delete(ctx, recipientID, id)
	})
	return err
}

func (g *Guard) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return guarded(g, "unread_count", func() (int, error) {
		return g.next.UnreadCount(ctx, recipientID)
	})
}

func (g *Guard) ListBroadcasts(ctx context.Context, p Page) (*PageResult, error) {
	return guarded(g, "list_broadcasts", func() (*PageResult, error) {
		return g.next.ListBroadcasts(ctx, p)
	})
}

// Ping bypasses the breaker so health checks observe the backend directly.
func (g *Guard) Ping(ctx context.Context) error {
	return g.next.Ping(ctx)
}

func (g *Guard) Close() error {
	return g.next.Close()
}
