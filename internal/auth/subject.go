// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package auth

import (
	"context"
	"errors"
	"slices"
)

// Roles understood by the authorization policy.
const (
	RoleUser     = "user"
	RoleProducer = "producer"
	RoleAdmin    = "admin"
)

// AuthMethod records how a principal was authenticated.
type AuthMethod string

const (
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// ErrUnauthenticated is returned for missing, malformed, expired or
// otherwise unacceptable credentials. Callers never learn which.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is an authenticated caller. For end users ID is the recipient
// id their notifications are addressed to.
type Principal struct {
	ID     string     `json:"id"`
	Roles  []string   `json:"roles,omitempty"`
	Method AuthMethod `json:"method"`
}

// HasRole reports whether p carries role directly. Role inheritance is
// resolved by the authorization layer, not here.
func (p *Principal) HasRole(role string) bool {
	if p == nil || role == "" {
		return false
	}
	return slices.Contains(p.Roles, role)
}

type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal set by the authentication
// middleware, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}
