// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package auth

import (
	"net/http"
	"strings"

	"github.com/tomtom215/beacon/internal/logging"
)

// APIKeyHeader carries producer service keys.
const APIKeyHeader = "X-API-Key"

// ErrorResponder writes an error body. The API layer supplies one that
// renders its standard envelope.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Middleware authenticates HTTP requests by bearer JWT or producer API key.
type Middleware struct {
	jwt     *JWTManager
	keys    *APIKeyVerifier
	respond ErrorResponder
}

// NewMiddleware creates the authentication middleware. keys may be nil when
// no producer keys are configured.
func NewMiddleware(jwtManager *JWTManager, keys *APIKeyVerifier, respond ErrorResponder) *Middleware {
	if respond == nil {
		respond = func(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{jwt: jwtManager, keys: keys, respond: respond}
}

// Authenticate rejects requests without valid credentials with 401 and
// stores the Principal on the request context otherwise.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.principal(r)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("authentication failed")
			w.Header().Set("WWW-Authenticate", `Bearer realm="beacon"`)
			m.respond(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// Optional attaches a Principal when valid credentials are present and
// passes the request through unchanged otherwise.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := m.principal(r); err == nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) principal(r *http.Request) (*Principal, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if m.keys == nil {
			return nil, ErrUnauthenticated
		}
		return m.keys.Verify(key)
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, ErrUnauthenticated
	}
	return m.jwt.Authenticate(token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
