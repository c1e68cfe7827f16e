// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package api provides the HTTP surface of Beacon on a chi router.

Routes:

	POST   /api/v1/notifications/send       notifications:send
	POST   /api/v1/notifications/broadcast  broadcasts:send
	GET    /api/v1/notifications            notifications:read
	GET    /api/v1/notifications/unread-count
	PUT    /api/v1/notifications/read-all
	PUT    /api/v1/notifications/{id}/read
	DELETE /api/v1/notifications/{id}
	GET    /api/v1/broadcasts               broadcasts:read
	GET    /api/v1/ws                       WebSocket delivery session
	GET    /health, /health/live
	GET    /metrics

Recipient-scoped routes act on the authenticated principal; a caller can
never read or modify another recipient's notifications.

Every JSON response uses the APIResponse envelope:

	{"success": false, "error": {"code": "NOT_FOUND", "message": "...", "request_id": "..."},
	 "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 0}}

Store failures map to 503 STORE_UNAVAILABLE, missing or foreign
notifications to 404 NOT_FOUND and request validation failures to 400
VALIDATION_ERROR.
*/
package api
