// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package relay forwards dispatched notifications between Beacon instances
over core NATS, so a producer can reach recipients connected to any
instance.

Every instance both publishes and subscribes on one subject. The instance
that persisted a record pushes it to its own sessions first, then publishes
a CBOR Envelope stamped with its instance ID. Subscribers skip envelopes
carrying their own ID and hand the rest to Dispatcher.Deliver, which fans
out locally without persisting again.

Delivery across instances is best effort, like local pushes: there is no
JetStream, no redelivery and no ordering guarantee between instances.
Clients that miss a relayed push still find the record through the list
endpoints.

Wiring:

	pub, err := relay.NewPublisher(cfg, relay.NewLogger())
	d := dispatch.New(store, reg, dcfg, dispatch.WithPublisher(pub))
	sub, err := relay.NewSubscriber(cfg, d, relay.NewLogger())
	go sub.Run(ctx)

	health := relay.Links{pub, sub}
	health.Status() // "up" or "down"

NewEmbeddedServer runs a broker in-process when no external NATS is
available.
*/
package relay
