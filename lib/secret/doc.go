// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the bridge's shared secrets in memory that the
// Go runtime does not manage.
//
// The bridge carries three long-lived secrets: the appservice token it
// presents to the homeserver (as_token), the token the homeserver
// presents to it (hs_token), and the shared secret exchanged with
// OpenSim region modules (bridge_secret). Each lives in a [Buffer]
// allocated with mmap, locked with mlock, and excluded from core dumps
// with MADV_DONTDUMP. Close zeroes and releases the region.
//
// Inbound credentials are checked with [Buffer.Verify], a constant-time
// comparison that does not leak the position of the first mismatch.
// [ReadFromPath] loads a secret from a file (or stdin) so tokens can be
// kept out of the main configuration file.
package secret
