// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package authz

import (
	"net/http"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/logging"
)

// Middleware provides authorization middleware using Casbin.
type Middleware struct {
	enforcer *Enforcer
	respond  auth.ErrorResponder
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer, respond auth.ErrorResponder) *Middleware {
	if respond == nil {
		respond = func(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{enforcer: enforcer, respond: respond}
}

// Require returns chi-style middleware allowing only principals whose roles
// grant action on object. It must run after auth.Middleware.Authenticate.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				m.respond(w, r, http.StatusForbidden, "FORBIDDEN", "No authentication context")
				return
			}

			allowed, err := m.enforcer.EnforceWithRoles(p.Roles, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("authorization error")
				m.respond(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}
			if !allowed {
				logging.Ctx(r.Context()).Debug().
					Str("principal", p.ID).
					Strs("roles", p.Roles).
					Str("object", object).
					Str("action", action).
					Msg("authorization denied")
				m.respond(w, r, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
