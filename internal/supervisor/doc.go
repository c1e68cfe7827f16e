// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package supervisor runs Beacon's long-lived services under a suture v4 tree.

	RootSupervisor ("beacon")
	├── DataSupervisor ("data-layer")
	│   ├── EmbeddedBrokerService (relay.embedded_server)
	│   └── StoreGCService (badger backend)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── SessionManagerService
	│   └── RelaySubscriberService (relay.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer counts failures on its own, so a relay subscriber in restart
backoff leaves the HTTP API serving. Supervisor events go through
sutureslog into the zerolog-backed slog handler from internal/logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	errCh := tree.ServeBackground(ctx)

On shutdown, UnstoppedServiceReport lists services that ignored
cancellation for longer than ShutdownTimeout.
*/
package supervisor
