// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package relay

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/tomtom215/beacon/internal/notification"
)

// Mode tells receivers how to resolve target sessions.
type Mode string

const (
	ModeTargeted  Mode = "targeted"
	ModeBroadcast Mode = "broadcast"
)

// ErrInvalidEnvelope is returned for payloads that do not decode into a
// usable envelope.
var ErrInvalidEnvelope = errors.New("invalid relay envelope")

// Envelope carries one persisted notification between instances. Origin is
// the publishing instance, so it can skip its own messages.
type Envelope struct {
	Origin       string                     `cbor:"origin"`
	Mode         Mode                       `cbor:"mode"`
	Notification *notification.Notification `cbor:"notification"`
}

// NewEnvelope wraps n, deriving the mode from its recipient.
func NewEnvelope(origin string, n *notification.Notification) Envelope {
	mode := ModeTargeted
	if n.IsBroadcast() {
		mode = ModeBroadcast
	}
	return Envelope{Origin: origin, Mode: mode, Notification: n}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Deterministic encoding with nanosecond timestamps so ordering keys
	// survive the trip.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes env to CBOR.
func Marshal(env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(env)
}

// Unmarshal decodes and validates an envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e Envelope) validate() error {
	switch {
	case e.Origin == "":
		return fmt.Errorf("%w: missing origin", ErrInvalidEnvelope)
	case e.Notification == nil || e.Notification.ID == "":
		return fmt.Errorf("%w: missing notification", ErrInvalidEnvelope)
	case e.Mode == ModeTargeted && e.Notification.IsBroadcast():
		return fmt.Errorf("%w: targeted envelope without recipient", ErrInvalidEnvelope)
	case e.Mode == ModeBroadcast && !e.Notification.IsBroadcast():
		return fmt.Errorf("%w: broadcast envelope with recipient", ErrInvalidEnvelope)
	case e.Mode != ModeTargeted && e.Mode != ModeBroadcast:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEnvelope, e.Mode)
	}
	return nil
}
