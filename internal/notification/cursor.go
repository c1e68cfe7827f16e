// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package notification

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"
)

// sortKey orders records newest first when compared bytewise: a fixed-width
// inverted timestamp followed by the id.
func sortKey(createdAt time.Time, id string) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.MaxUint64-uint64(createdAt.UnixNano()))
	return hex.EncodeToString(b[:]) + id
}

func parseSortKey(key string) (createdNs int64, id string, err error) {
	if len(key) <= 16 {
		return 0, "", ErrInvalidCursor
	}
	raw, err := hex.DecodeString(key[:16])
	if err != nil {
		return 0, "", ErrInvalidCursor
	}
	inv := binary.BigEndian.Uint64(raw)
	return int64(math.MaxUint64 - inv), key[16:], nil
}

func encodeCursor(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}
	key := string(raw)
	if _, _, err := parseSortKey(key); err != nil {
		return "", err
	}
	return key, nil
}
