// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/config"
	"github.com/tomtom215/beacon/internal/dispatch"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/notification"
	"github.com/tomtom215/beacon/internal/relay"
)

// storeHandles keeps the concrete badger store for GC next to the guarded
// store everything else uses.
type storeHandles struct {
	store  notification.Store
	badger *notification.BadgerStore
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (*storeHandles, error) {
	var (
		h    storeHandles
		next notification.Store
	)

	switch cfg.Backend {
	case "mongo":
		ms, err := notification.OpenMongo(ctx, notification.MongoOptions{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Timeout:  cfg.MongoTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		next = ms
		logging.Info().Str("database", cfg.MongoDatabase).Msg("MongoDB notification store ready")

	default:
		bs, err := notification.OpenBadger(notification.BadgerOptions{Path: cfg.Path, InMemory: cfg.InMemory})
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		h.badger = bs
		next = bs
		logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Badger notification store ready")
	}

	h.store = notification.NewGuard(next, notification.GuardConfig{
		Name:             "notification-store",
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerTimeout,
	})
	return &h, nil
}

// relayComponents is everything the optional relay adds to the process.
type relayComponents struct {
	cfg        relay.Config
	server     *relay.EmbeddedServer
	publisher  *relay.Publisher
	subscriber *relay.Subscriber
	links      relay.Links
}

// startRelay returns nil when the relay is disabled. The publisher connects
// here so the dispatcher can be built with it; the subscriber needs the
// dispatcher and is added by subscribe.
func startRelay(cfg *config.RelayConfig) (*relayComponents, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Relay disabled (RELAY_ENABLED=false)")
		return nil, nil
	}

	rc := &relayComponents{}
	url := ""
	if cfg.EmbeddedServer {
		srv, err := relay.NewEmbeddedServer(relay.ServerConfig{Host: cfg.Host, Port: cfg.Port})
		if err != nil {
			return nil, fmt.Errorf("embedded NATS: %w", err)
		}
		rc.server = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	rc.cfg = relay.ConfigFromRelay(*cfg, url)
	if rc.cfg.InstanceID == "" {
		// Publisher and subscriber must agree on the origin id.
		if host, err := os.Hostname(); err == nil {
			rc.cfg.InstanceID = host + "-" + fmt.Sprint(os.Getpid())
		}
	}

	pub, err := relay.NewPublisher(rc.cfg, relay.NewLogger())
	if err != nil {
		rc.close()
		return nil, err
	}
	rc.publisher = pub
	rc.cfg.InstanceID = pub.InstanceID()

	logging.Info().
		Str("subject", rc.cfg.Subject).
		Str("instance_id", rc.cfg.InstanceID).
		Msg("Relay publisher connected")
	return rc, nil
}

func (rc *relayComponents) subscribe(d *dispatch.Dispatcher) error {
	sub, err := relay.NewSubscriber(rc.cfg, d, relay.NewLogger())
	if err != nil {
		return err
	}
	rc.subscriber = sub
	rc.links = relay.Links{rc.publisher, sub}
	return nil
}

// close releases client connections. The embedded server is stopped by its
// supervised service, or here when startup fails before the tree runs.
func (rc *relayComponents) close() {
	if rc.subscriber != nil {
		if err := rc.subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing relay subscriber")
		}
	}
	if rc.publisher != nil {
		if err := rc.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing relay publisher")
		}
	}
	if rc.server != nil && rc.server.IsRunning() {
		_ = rc.server.Shutdown(context.Background())
	}
}

func printKeyHash(key string) error {
	hash, err := auth.HashAPIKey(key, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func printToken(cfg *config.Config, subject string, roles []string) error {
	m, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		roles = []string{auth.RoleUser}
	}
	token, err := m.GenerateToken(subject, roles...)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
