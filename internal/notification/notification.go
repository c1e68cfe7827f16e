// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

// Package notification owns the durable notification log: creation,
// newest-first listing, read/unread state and deletion, keyed by recipient.
//
// Two backends implement Store. BadgerStore is the embedded default and
// MongoStore serves deployments that already run MongoDB. Guard wraps either
// one with a circuit breaker and metrics.
//
// A notification with an empty RecipientID is a broadcast. Broadcasts are
// kept in an audit log only and never count toward any recipient's backlog.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ReadState is UNREAD until the owning recipient acknowledges it.
type ReadState string

const (
	Unread ReadState = "UNREAD"
	Read   ReadState = "READ"
)

// Notification is the stored and pushed record. ReadAt is non-nil exactly
// when ReadState is Read.
type Notification struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipientId,omitempty"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Attributes  json.RawMessage `json:"attributes"`
	ReadState   ReadState       `json:"readState"`
	CreatedAt   time.Time       `json:"createdAt"`
	ReadAt      *time.Time      `json:"readAt,omitempty"`
}

// IsBroadcast reports whether n has no owning recipient.
func (n *Notification) IsBroadcast() bool {
	return n.RecipientID == ""
}

// Content is the caller-supplied part of a notification.
type Content struct {
	Kind       string
	Title      string
	Body       string
	Attributes json.RawMessage
}

// Page selects a window of a newest-first listing. When Cursor is set it
// takes precedence over Offset.
type Page struct {
	Limit  int
	Offset int
	Cursor string
}

// PageResult is one window. NextCursor is empty on the last page.
type PageResult struct {
	Items      []*Notification
	NextCursor string
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
	maxRecipientLen  = 256
)

var (
	// ErrStoreUnavailable wraps every backend failure. Callers must treat
	// the operation as not having happened.
	ErrStoreUnavailable = errors.New("notification store unavailable")

	// ErrNotFound means the notification does not exist or is not owned by
	// the requesting recipient. The two cases are deliberately identical.
	ErrNotFound = errors.New("notification not found")

	ErrInvalidRecipient  = errors.New("invalid recipient id")
	ErrInvalidAttributes = errors.New("attributes must be a JSON value")
	ErrInvalidCursor     = errors.New("invalid page cursor")
)

// Store is the notification log. All methods are safe for concurrent use.
// MarkRead, MarkAllRead and Delete are atomic per recipient.
type Store interface {
	// Create records a notification for recipientID, or a broadcast when
	// recipientID is empty. The record starts UNREAD.
	Create(ctx context.Context, recipientID string, c Content) (*Notification, error)

	// ListForRecipient returns recipientID's notifications newest first,
	// ties broken by ascending id.
	ListForRecipient(ctx context.Context, recipientID string, p Page) (*PageResult, error)

	// MarkRead transitions one notification to READ. Marking an already
	// read notification returns it unchanged.
	MarkRead(ctx context.Context, recipientID, id string) (*Notification, error)

	// MarkAllRead transitions every UNREAD notification of recipientID and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string) (int, error)

	Delete(ctx context.Context, recipientID, id string) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)

	// ListBroadcasts returns the broadcast audit log newest first.
	ListBroadcasts(ctx context.Context, p Page) (*PageResult, error)

	Ping(ctx context.Context) error
	Close() error
}

// IsClientError reports whether err is caused by the request rather than the
// backend.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInvalidAttributes) ||
		errors.Is(err, ErrInvalidCursor)
}

// IsCanceled reports whether err only records that the caller gave up. A
// deadline hit by the store's own operation timeout is wrapped in
// ErrStoreUnavailable and does not count.
func IsCanceled(err error) bool {
	if errors.Is(err, ErrStoreUnavailable) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func validateRecipient(id string) error {
	if id == "" || len(id) > maxRecipientLen || strings.IndexByte(id, 0) >= 0 {
		return ErrInvalidRecipient
	}
	return nil
}

// normalizeAttributes defaults missing attributes to an empty object and
// rejects anything that is not a JSON value.
func normalizeAttributes(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(raw) {
		return nil, ErrInvalidAttributes
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// checkContext returns the caller's context error unwrapped. An abandoned
// request says nothing about the backend.
func checkContext(ctx context.Context) error {
	return ctx.Err()
}
