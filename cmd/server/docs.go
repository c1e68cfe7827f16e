// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package main

// @title Beacon API
// @version 1.0
// @description Real-time notification service: producers send notifications over HTTP and recipients receive them over WebSocket.
// @description
// @description ## Authentication
// @description
// @description Recipients present a Bearer JWT whose subject is their user ID.
// @description Producer services present an `X-API-Key` header.
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/beacon/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer JWT whose subject is the recipient ID
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Producer service key
//
// @tag.name Notifications
// @tag.description Send, list, acknowledge and delete notifications
//
// @tag.name Sessions
// @tag.description WebSocket delivery sessions
//
// @tag.name Health
// @tag.description Liveness and dependency health
