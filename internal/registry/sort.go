// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package registry

import "slices"

func sortIDs(ids []SessionID) {
	slices.Sort(ids)
}
