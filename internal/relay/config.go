// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package relay

import (
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/beacon/internal/config"
)

// Status strings reported to the health endpoint.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Result labels for beacon_relay_messages_total.
const (
	resultOK       = "ok"
	resultFailed   = "failed"
	resultRejected = "rejected"
	resultSkipped  = "skipped"
	resultInvalid  = "invalid"
)

// Config holds settings shared by the publisher and the subscriber.
type Config struct {
	URL        string
	Subject    string
	InstanceID string

	ReconnectWait time.Duration
	CloseTimeout  time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// ConfigFromRelay converts the loaded relay section. url overrides the
// configured URL, which main uses to point at an embedded server.
func ConfigFromRelay(c config.RelayConfig, url string) Config {
	if url == "" {
		url = c.URL
	}
	return Config{
		URL:             url,
		Subject:         c.Subject,
		InstanceID:      c.InstanceID,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

func (c *Config) setDefaults() {
	if c.Subject == "" {
		c.Subject = "beacon.fanout"
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// link tracks whether a NATS connection is currently usable.
type link struct {
	up atomic.Bool
}

func (l *link) Connected() bool { return l.up.Load() }

// natsOptions keeps connections retrying forever and mirrors their state
// into l.
func natsOptions(cfg Config, name string, l *link, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			l.up.Store(false)
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"conn": name})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			l.up.Store(true)
			logger.Info("NATS reconnected", watermill.LogFields{
				"conn": name,
				"url":  nc.ConnectedUrl(),
			})
		}),
		natsgo.ClosedHandler(func(*natsgo.Conn) {
			l.up.Store(false)
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{"conn": name}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error("NATS error", err, fields)
		}),
	}
}

// Link reports connection state.
type Link interface {
	Connected() bool
}

// Links aggregates connection states for health reporting.
type Links []Link

// Status is StatusUp only while every link is connected.
func (ls Links) Status() string {
	for _, l := range ls {
		if l == nil || !l.Connected() {
			return StatusDown
		}
	}
	return StatusUp
}
