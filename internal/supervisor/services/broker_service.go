// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package services

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/beacon/internal/logging"
)

// Broker is satisfied by *relay.EmbeddedServer.
type Broker interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// EmbeddedBrokerService owns the lifetime of an in-process NATS server.
//
// The server is started before the tree so publishers can connect during
// wiring. Serve only watches it and stops it on shutdown. A broker that
// dies cannot be restarted in place, so that case ends the service with
// suture.ErrDoNotRestart and the relay reports down through health.
type EmbeddedBrokerService struct {
	broker          Broker
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	name            string
}

func NewEmbeddedBrokerService(broker Broker, shutdownTimeout time.Duration) *EmbeddedBrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedBrokerService{
		broker:          broker,
		checkInterval:   5 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "embedded-nats",
	}
}

var errBrokerStopped = errors.New("embedded NATS server stopped")

// Serve implements suture.Service.
func (b *EmbeddedBrokerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
			defer cancel()
			if err := b.broker.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("Embedded NATS shutdown incomplete")
			}
			return ctx.Err()

		case <-ticker.C:
			if !b.broker.IsRunning() {
				logging.Error().Err(errBrokerStopped).Msg("Embedded NATS server is no longer running")
				return suture.ErrDoNotRestart
			}
		}
	}
}

func (b *EmbeddedBrokerService) String() string {
	return b.name
}
