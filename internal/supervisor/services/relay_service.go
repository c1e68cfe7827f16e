// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package services

import (
	"context"
	"errors"
	"fmt"
)

// RelayRunner is satisfied by *relay.Subscriber.
type RelayRunner interface {
	Run(ctx context.Context) error
}

// RelaySubscriberService consumes envelopes from other instances.
//
// A subscription that ends on its own (closed connection, failed
// subscribe) is reported as an error so suture restarts it with backoff.
type RelaySubscriberService struct {
	subscriber RelayRunner
	name       string
}

func NewRelaySubscriberService(subscriber RelayRunner) *RelaySubscriberService {
	return &RelaySubscriberService{
		subscriber: subscriber,
		name:       "relay-subscriber",
	}
}

var errSubscriptionEnded = errors.New("relay subscription ended")

// Serve implements suture.Service.
func (r *RelaySubscriberService) Serve(ctx context.Context) error {
	err := r.subscriber.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return errSubscriptionEnded
	}
	return fmt.Errorf("relay subscriber: %w", err)
}

func (r *RelaySubscriberService) String() string {
	return r.name
}
