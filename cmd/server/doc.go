// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Command server runs Beacon, a real-time notification service.

Producers POST notifications to the HTTP API; Beacon persists each one and
pushes it to every WebSocket session subscribed to the recipient. Recipients
page through their history, mark notifications read and delete them over
the same API.

# Process Layout

	RootSupervisor ("beacon")
	├── data-layer
	│   ├── embedded-nats (relay.embedded_server)
	│   └── store-gc (badger backend)
	├── messaging-layer
	│   ├── relay-subscriber (relay.enabled)
	│   └── session-manager
	└── api-layer
	    └── http-server

Startup order:

 1. Flags (spf13/pflag) and configuration (koanf: defaults, YAML, env)
 2. Logging (zerolog)
 3. Notification store: badger or mongo, wrapped in a circuit breaker
 4. Relay (optional): embedded NATS, publisher, subscriber
 5. Dispatcher, JWT and API key authentication, casbin policy
 6. Session manager, chi router, http.Server
 7. Supervisor tree until SIGINT or SIGTERM

# Flags

	-c, --config string        YAML config file (default $BEACON_CONFIG)
	    --hash-api-key string  print the bcrypt hash of a producer key and exit
	    --issue-token string   print a signed JWT for a subject and exit
	    --roles strings        roles for --issue-token

# Examples

Single node with the embedded store:

	export JWT_SECRET=$(openssl rand -base64 32)
	./beacon

Register a producer service:

	./beacon --hash-api-key "$PRODUCER_KEY"
	export PRODUCER_KEY_HASHES='$2a$10$...'

Two nodes sharing MongoDB and fanning out over NATS:

	export STORE_BACKEND=mongo MONGO_URI=mongodb://mongo:27017
	export RELAY_ENABLED=true NATS_URL=nats://nats:4222
	./beacon
*/
package main
