// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package auth authenticates Beacon's two kinds of callers.

End users present an HS256 JWT whose subject is their recipient id. The same
token authenticates the WebSocket "authenticate" frame and the HTTP API.
Producer services present an X-API-Key header; configured keys are stored
only as bcrypt hashes and a match yields a principal with the producer role.

Middleware.Authenticate resolves either credential into a Principal on the
request context and answers 401 otherwise:

	authn := auth.NewMiddleware(jwtManager, auth.NewAPIKeyVerifier(hashes), respond)
	r.With(authn.Authenticate).Get("/api/v1/notifications", h.List)

Role checks live in internal/authz.
*/
package auth
