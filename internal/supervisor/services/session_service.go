// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package services

import (
	"context"
)

// SessionRunner is satisfied by *websocket.Manager.
type SessionRunner interface {
	RunWithContext(ctx context.Context) error
}

// SessionManagerService closes every live delivery session when the tree
// shuts down, so clients see a close frame instead of a reset.
type SessionManagerService struct {
	manager SessionRunner
	name    string
}

func NewSessionManagerService(manager SessionRunner) *SessionManagerService {
	return &SessionManagerService{
		manager: manager,
		name:    "session-manager",
	}
}

// Serve implements suture.Service.
func (s *SessionManagerService) Serve(ctx context.Context) error {
	return s.manager.RunWithContext(ctx)
}

func (s *SessionManagerService) String() string {
	return s.name
}
