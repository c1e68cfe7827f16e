// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/beacon/internal/dispatch"
	"github.com/tomtom215/beacon/internal/metrics"
	"github.com/tomtom215/beacon/internal/notification"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("relay publisher closed")

// Publisher sends locally dispatched notifications to the other instances.
// Publishing goes through a circuit breaker so a dead broker costs one
// failed call per breaker timeout instead of one per send.
type Publisher struct {
	publisher message.Publisher
	cb        *gobreaker.CircuitBreaker[any]
	cfg       Config
	link      *link
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

var _ dispatch.Publisher = (*Publisher)(nil)

// NewPublisher connects to cfg.URL. The initial connection is synchronous:
// an unreachable broker fails startup rather than silently degrading.
func NewPublisher(cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = NewLogger()
	}

	l := &link{}
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg, "beacon-publisher-"+cfg.InstanceID, l, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create relay publisher: %w", err)
	}
	l.up.Store(true)

	name := "relay-publisher"
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logger.Info("Relay circuit breaker state changed", watermill.LogFields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}
	metrics.SetBreakerState(name, int(gobreaker.StateClosed))

	return &Publisher{
		publisher: pub,
		cb:        gobreaker.NewCircuitBreaker[any](settings),
		cfg:       cfg,
		link:      l,
		logger:    logger,
	}, nil
}

// InstanceID is the origin stamped on every published envelope.
func (p *Publisher) InstanceID() string {
	return p.cfg.InstanceID
}

// Connected reports whether the broker connection is up.
func (p *Publisher) Connected() bool {
	return p.link.Connected()
}

// Publish encodes n in an envelope and sends it on the relay subject.
func (p *Publisher) Publish(ctx context.Context, n *notification.Notification) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	payload, err := Marshal(NewEnvelope(p.cfg.InstanceID, n))
	if err != nil {
		metrics.RelayMessages.WithLabelValues(metrics.DirectionOut, resultInvalid).Inc()
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("origin", p.cfg.InstanceID)

	_, err = p.cb.Execute(func() (any, error) {
		return nil, p.publisher.Publish(p.cfg.Subject, msg)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RelayMessages.WithLabelValues(metrics.DirectionOut, resultRejected).Inc()
		return fmt.Errorf("relay publish: %w", err)
	case err != nil:
		metrics.RelayMessages.WithLabelValues(metrics.DirectionOut, resultFailed).Inc()
		return fmt.Errorf("relay publish: %w", err)
	}
	metrics.RelayMessages.WithLabelValues(metrics.DirectionOut, resultOK).Inc()
	return nil
}

// Close stops publishing and closes the NATS connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.link.up.Store(false)
	return p.publisher.Close()
}
