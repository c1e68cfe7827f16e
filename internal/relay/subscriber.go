// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/beacon/internal/metrics"
	"github.com/tomtom215/beacon/internal/notification"
)

// Deliverer fans a remotely persisted record out to local sessions.
// *dispatch.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, n *notification.Notification)
}

// Subscriber receives envelopes from other instances. Every instance must
// see every envelope, so there is no queue group.
type Subscriber struct {
	subscriber message.Subscriber
	deliverer  Deliverer
	cfg        Config
	link       *link
	logger     watermill.LoggerAdapter
}

// NewSubscriber connects to cfg.URL. cfg.InstanceID must match the local
// publisher so this instance skips its own envelopes.
func NewSubscriber(cfg Config, deliverer Deliverer, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("relay subscriber: nil deliverer")
	}
	cfg.setDefaults()
	if logger == nil {
		logger = NewLogger()
	}

	l := &link{}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(cfg, "beacon-subscriber-"+cfg.InstanceID, l, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create relay subscriber: %w", err)
	}
	l.up.Store(true)

	return &Subscriber{
		subscriber: sub,
		deliverer:  deliverer,
		cfg:        cfg,
		link:       l,
		logger:     logger.With(watermill.LogFields{"subject": cfg.Subject}),
	}, nil
}

// Connected reports whether the broker connection is up.
func (s *Subscriber) Connected() bool {
	return s.link.Connected()
}

// Run delivers envelopes until ctx is cancelled or the subscription ends.
func (s *Subscriber) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.cfg.Subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Subject, err)
	}
	s.logger.Info("Relay subscriber started", watermill.LogFields{"instance": s.cfg.InstanceID})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

// handle always acks: a malformed envelope will not improve on redelivery
// and core NATS does not redeliver anyway.
func (s *Subscriber) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	env, err := Unmarshal(msg.Payload)
	if err != nil {
		metrics.RelayMessages.WithLabelValues(metrics.DirectionIn, resultInvalid).Inc()
		s.logger.Error("Dropping relay message", err, watermill.LogFields{"message_uuid": msg.UUID})
		return
	}
	if env.Origin == s.cfg.InstanceID {
		metrics.RelayMessages.WithLabelValues(metrics.DirectionIn, resultSkipped).Inc()
		return
	}

	s.deliverer.Deliver(ctx, env.Notification)
	metrics.RelayMessages.WithLabelValues(metrics.DirectionIn, resultOK).Inc()
	s.logger.Trace("Relayed notification delivered", watermill.LogFields{
		"origin":          env.Origin,
		"mode":            string(env.Mode),
		"notification_id": env.Notification.ID,
	})
}

// Close ends the subscription and closes the NATS connection.
func (s *Subscriber) Close() error {
	s.link.up.Store(false)
	return s.subscriber.Close()
}
