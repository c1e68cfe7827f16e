// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveRequestID(t *testing.T, incoming string) (header, fromContext string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if incoming != "" {
		req.Header.Set(RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Header().Get(RequestIDHeader), fromContext
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	header, ctxID := serveRequestID(t, "")
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("generated X-Request-ID %q is not a UUID: %v", header, err)
	}
	if ctxID != header {
		t.Errorf("context ID = %q, header = %q", ctxID, header)
	}
}

func TestRequestID_PreservesUpstreamID(t *testing.T) {
	header, ctxID := serveRequestID(t, "upstream-123")
	if header != "upstream-123" || ctxID != "upstream-123" {
		t.Errorf("header=%q context=%q, want upstream-123", header, ctxID)
	}
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	long := strings.Repeat("x", maxRequestIDLength+1)
	header, _ := serveRequestID(t, long)
	if header == long {
		t.Error("oversized upstream ID was echoed")
	}
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("replacement %q is not a UUID", header)
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, _ := serveRequestID(t, "")
		if seen[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		seen[id] = true
	}
}
