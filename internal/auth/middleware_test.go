// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/beacon/internal/logging"
)

func init() {
	logging.SetOutput(io.Discard)
}

func newTestVerifier(t *testing.T, keys ...string) *APIKeyVerifier {
	t.Helper()
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		h, err := HashAPIKey(k, bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, h)
	}
	return NewAPIKeyVerifier(hashes)
}

func TestAPIKeyVerifier(t *testing.T) {
	v := newTestVerifier(t, "first-key", "second-key")

	p, err := v.Verify("second-key")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.ID != "producer-2" || !p.HasRole(RoleProducer) || p.Method != AuthMethodAPIKey {
		t.Errorf("principal = %+v", p)
	}

	// Cached path returns the same principal.
	again, err := v.Verify("second-key")
	if err != nil || again != p {
		t.Errorf("cached Verify() = %+v, %v", again, err)
	}

	for _, bad := range []string{"", "third-key"} {
		if _, err := v.Verify(bad); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Verify(%q) error = %v, want ErrUnauthenticated", bad, err)
		}
	}
	if _, err := NewAPIKeyVerifier(nil).Verify("first-key"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("empty verifier accepted a key: %v", err)
	}
}

func TestMiddlewareAuthenticate(t *testing.T) {
	jwtm := newTestJWTManager(t)
	mw := NewMiddleware(jwtm, newTestVerifier(t, "svc-key"), nil)

	userToken, _ := jwtm.GenerateToken("alice")

	var got *Principal
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		value    string
		wantCode int
		wantID   string
	}{
		{"bearer token", "Authorization", "Bearer " + userToken, http.StatusNoContent, "alice"},
		{"lowercase scheme", "Authorization", "bearer " + userToken, http.StatusNoContent, "alice"},
		{"api key", APIKeyHeader, "svc-key", http.StatusNoContent, "producer-1"},
		{"wrong api key", APIKeyHeader, "nope", http.StatusUnauthorized, ""},
		{"basic scheme", "Authorization", "Basic YWxpY2U6cHc=", http.StatusUnauthorized, ""},
		{"bad token", "Authorization", "Bearer junk", http.StatusUnauthorized, ""},
		{"missing", "", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("handler ran with principal %+v", got)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate challenge")
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("principal = %+v, want id %s", got, tt.wantID)
			}
		})
	}
}

func TestMiddlewareOptional(t *testing.T) {
	jwtm := newTestJWTManager(t)
	mw := NewMiddleware(jwtm, nil, nil)

	var got *Principal
	h := mw.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != nil {
		t.Errorf("anonymous request got principal %+v", got)
	}

	token, _ := jwtm.GenerateToken("carol")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.ID != "carol" {
		t.Errorf("principal = %+v, want carol", got)
	}

	// API keys are refused when none are configured.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(APIKeyHeader, "anything")
	got = nil
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != nil {
		t.Errorf("api key accepted without verifier: %+v", got)
	}
}
