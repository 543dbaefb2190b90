// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source used by the bridge. Components that stamp or
// compare times take a Clock instead of calling time.Now.
type Clock interface {
	Now() time.Time
}
