// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/beacon/internal/notification"
	"github.com/tomtom215/beacon/internal/validation"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// SendRequest is the body of POST /api/v1/notifications/send.
type SendRequest struct {
	UserID  string          `json:"userId" validate:"required,recipient"`
	Type    string          `json:"type" validate:"required,max=64"`
	Title   string          `json:"title" validate:"max=256"`
	Message string          `json:"message" validate:"required,max=4096"`
	Data    json.RawMessage `json:"data" validate:"jsonvalue"`
}

// Content converts the request into store content.
func (r *SendRequest) Content() notification.Content {
	return notification.Content{Kind: r.Type, Title: r.Title, Body: r.Message, Attributes: r.Data}
}

// BroadcastRequest is the body of POST /api/v1/notifications/broadcast.
type BroadcastRequest struct {
	Type    string          `json:"type" validate:"required,max=64"`
	Title   string          `json:"title" validate:"max=256"`
	Message string          `json:"message" validate:"required,max=4096"`
	Data    json.RawMessage `json:"data" validate:"jsonvalue"`
}

// Content converts the request into store content.
func (r *BroadcastRequest) Content() notification.Content {
	return notification.Content{Kind: r.Type, Title: r.Title, Body: r.Message, Attributes: r.Data}
}

// PageRequest holds listing query parameters.
type PageRequest struct {
	Limit  int    `json:"limit" validate:"gte=0"`
	Offset int    `json:"offset" validate:"gte=0"`
	Cursor string `json:"cursor" validate:"omitempty,max=512,base64rawurl"`
}

var errBadBody = errors.New("request body must be a single JSON object")

// decodeJSON reads one JSON object from r's body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if dec.More() {
		return errBadBody
	}
	return nil
}

// parsePageRequest reads limit, offset and cursor. Malformed integers are
// reported rather than silently defaulted.
func parsePageRequest(r *http.Request) (PageRequest, error) {
	q := r.URL.Query()
	var p PageRequest
	var err error
	if p.Limit, err = intParam(q.Get("limit")); err != nil {
		return p, fmt.Errorf("limit: %w", err)
	}
	if p.Offset, err = intParam(q.Get("offset")); err != nil {
		return p, fmt.Errorf("offset: %w", err)
	}
	p.Cursor = q.Get("cursor")
	return p, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// page converts the request into a store page, applying the configured
// default and cap.
func (p PageRequest) page(defaultSize, maxSize int) notification.Page {
	limit := p.Limit
	if limit == 0 {
		limit = defaultSize
	}
	if maxSize > 0 && limit > maxSize {
		limit = maxSize
	}
	return notification.Page{Limit: limit, Offset: p.Offset, Cursor: p.Cursor}
}

// validate runs struct validation, returning nil on success.
func validate(v interface{}) *validation.RequestValidationError {
	return validation.ValidateStruct(v)
}
