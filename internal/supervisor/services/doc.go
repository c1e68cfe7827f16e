// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package services adapts Beacon components to suture.Service.

Each wrapper translates a component's own lifecycle (ListenAndServe,
RunWithContext, Run, a ticker loop) into Serve(ctx) error and names itself
through fmt.Stringer for supervisor logs:

	HTTPServerService       *http.Server, drained on shutdown
	SessionManagerService   *websocket.Manager, closes live sessions
	RelaySubscriberService  *relay.Subscriber, restarted when it ends
	EmbeddedBrokerService   *relay.EmbeddedServer, stopped on shutdown
	StoreGCService          *notification.BadgerStore value-log GC

Components are accepted through small interfaces so this package does not
import them.
*/
package services
