// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/authz"
	"github.com/tomtom215/beacon/internal/middleware"
)

// RouterConfig carries the security collaborators of the router. APIKeys
// may be nil when no producer keys are configured.
type RouterConfig struct {
	JWT        *auth.JWTManager
	APIKeys    *auth.APIKeyVerifier
	Enforcer   *authz.Enforcer
	Middleware *ChiMiddlewareConfig
}

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
}

// NewRouter creates a router. Authentication and authorization failures are
// rendered with the API error envelope.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(cfg.Middleware),
		authn:         auth.NewMiddleware(cfg.JWT, cfg.APIKeys, respondError),
		authz:         authz.NewMiddleware(cfg.Enforcer, respondError),
	}
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	// Applied to all routes, outermost first.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.With(router.chiMiddleware.RateLimitWebSocket(), router.authn.Optional).Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.authn.Authenticate)

			r.Route("/notifications", func(r chi.Router) {
				r.With(router.authz.Require(authz.ObjectNotifications, authz.ActionSend)).Post("/send", h.SendNotification)
				r.With(router.authz.Require(authz.ObjectBroadcasts, authz.ActionSend)).Post("/broadcast", h.BroadcastNotification)

				r.Group(func(r chi.Router) {
					r.Use(router.authz.Require(authz.ObjectNotifications, authz.ActionRead))
					r.Get("/", h.ListNotifications)
					r.Get("/unread-count", h.UnreadCount)
					r.Put("/read-all", h.MarkAllRead)
					r.Put("/{id}/read", h.MarkRead)
					r.Delete("/{id}", h.DeleteNotification)
				})
			})

			r.With(router.authz.Require(authz.ObjectBroadcasts, authz.ActionRead)).Get("/broadcasts", h.ListBroadcasts)
		})
	})

	return r
}
