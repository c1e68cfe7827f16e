// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	_ "github.com/tomtom215/beacon/docs"
)

type swaggerDoc struct {
	Info struct {
		Title string `json:"title"`
	} `json:"info"`
	BasePath string                                `json:"basePath"`
	Paths    map[string]map[string]json.RawMessage `json:"paths"`
}

func TestSwaggerDocServed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/swagger/doc.json", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var doc swaggerDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc.json is not valid JSON: %v", err)
	}
	if doc.Info.Title != "Beacon API" {
		t.Errorf("title = %q", doc.Info.Title)
	}
	if doc.BasePath != "/" {
		t.Errorf("basePath = %q", doc.BasePath)
	}

	if rec := env.do(t, http.MethodGet, "/swagger/index.html", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("swagger UI status = %d", rec.Code)
	}
}

func TestSwaggerDocCoversRoutes(t *testing.T) {
	env := newTestEnv(t)

	var doc swaggerDoc
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/swagger/doc.json", nil, nil).Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}

	routes, ok := env.handler.(chi.Routes)
	if !ok {
		t.Fatalf("router is %T, want chi.Routes", env.handler)
	}
	documented := 0
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/metrics" || strings.HasPrefix(route, "/swagger/") {
			return nil
		}
		path := strings.TrimSuffix(route, "/")
		ops, ok := doc.Paths[path]
		if !ok {
			t.Errorf("route %s %s is not documented", method, path)
			return nil
		}
		if _, ok := ops[strings.ToLower(method)]; !ok {
			t.Errorf("route %s %s documents only %d other methods", method, path, len(ops))
			return nil
		}
		documented++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if documented != len(doc.Paths) {
		t.Errorf("documented %d routes, doc lists %d paths", documented, len(doc.Paths))
	}
}
