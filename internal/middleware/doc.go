// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: reuses or generates X-Request-ID and threads it into logs
  - PrometheusMetrics: request count, latency and in-flight gauge

The router applies them outermost first:

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.PrometheusMetrics)

PrometheusMetrics labels by chi route pattern, so it must be installed on a
chi router; requests that match no route are labelled "unmatched".
*/
package middleware
