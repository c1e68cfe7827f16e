// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/beacon/internal/registry"
)

// Client to server frame types.
const (
	MessageTypeAuthenticate = "authenticate"
	MessageTypeSubscribe    = "subscribe"
	MessageTypePing         = "ping"
)

// Server to client frame types.
const (
	MessageTypeAuthenticated = "authenticated"
	MessageTypeSubscribed    = "subscribed"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
	MessageTypeNotification  = string(registry.EventNotification)
	MessageTypeBroadcast     = string(registry.EventBroadcast)
)

// Error codes carried by error frames.
const (
	ErrorCodeUnauthenticated = "UNAUTHENTICATED"
	ErrorCodeForbidden       = "FORBIDDEN"
	ErrorCodeUnknownMessage  = "UNKNOWN_MESSAGE"
	ErrorCodeRateLimited     = "RATE_LIMITED"
)

// ClientMessage is any frame a client may send. Fields not used by Type are
// ignored.
type ClientMessage struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// ServerMessage is any frame the server sends.
type ServerMessage struct {
	Type        string          `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	Code        string          `json:"code,omitempty"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// MarshalMessage encodes msg for the wire.
func MarshalMessage(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func errorFrame(code, message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Code: code, Message: message}
}

func eventFrame(ev registry.Event) ([]byte, error) {
	return MarshalMessage(ServerMessage{Type: string(ev.Type), Data: ev.Payload})
}
