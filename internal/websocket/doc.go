// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package websocket implements the delivery session: one live WebSocket
connection that receives notification pushes.

Each session runs two goroutines. readPump parses client frames and keeps the
read deadline alive; writePump drains the bounded send buffer and sends pings.
Either pump failing closes the session, which unregisters it from the
connection registry before anything else.

Lifecycle:

	CONNECTED --subscribe--> SUBSCRIBED
	    |                        |
	    +--------> CLOSED <------+

A CONNECTED session receives broadcasts only. Subscribing binds it to one
recipient; subscribing again rebinds it.

Client frames:

	{"type":"authenticate","token":"<jwt>"}
	{"type":"subscribe","recipientId":"<id>"}   // empty id means "myself"
	{"type":"ping"}

Server frames:

	{"type":"authenticated","recipientId":"alice"}
	{"type":"subscribed","recipientId":"alice"}
	{"type":"notification","data":{...}}
	{"type":"broadcast","data":{...}}
	{"type":"error","code":"UNAUTHENTICATED","message":"..."}

Subscribing to a recipient other than the authenticated principal requires
the admin role. Inbound frames are rate limited per session with
golang.org/x/time/rate.

The Manager tracks every session of the process so a supervisor can close
them all on shutdown.
*/
package websocket
