// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyVerifier authenticates producer services by X-API-Key. Keys are
// configured as bcrypt hashes; the plaintext never touches disk.
type APIKeyVerifier struct {
	hashes [][]byte

	// verified caches sha256(key) -> principal so bcrypt runs once per key
	// per process.
	verified sync.Map
}

// NewAPIKeyVerifier returns a verifier for the given bcrypt hashes. An empty
// list rejects every key.
func NewAPIKeyVerifier(hashes []string) *APIKeyVerifier {
	v := &APIKeyVerifier{hashes: make([][]byte, 0, len(hashes))}
	for _, h := range hashes {
		v.hashes = append(v.hashes, []byte(h))
	}
	return v
}

// Verify returns the producer principal for key.
func (v *APIKeyVerifier) Verify(key string) (*Principal, error) {
	if key == "" || len(v.hashes) == 0 {
		return nil, ErrUnauthenticated
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if p, ok := v.verified.Load(digest); ok {
		return p.(*Principal), nil
	}

	for i, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			p := &Principal{
				ID:     fmt.Sprintf("producer-%d", i+1),
				Roles:  []string{RoleProducer},
				Method: AuthMethodAPIKey,
			}
			v.verified.Store(digest, p)
			return p, nil
		}
	}
	return nil, ErrUnauthenticated
}

// HashAPIKey produces a configuration value for key.
func HashAPIKey(key string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}
