// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers the bridge handles: user IDs, room IDs, room aliases, and
// server names.
//
// Identifiers arriving from the homeserver, the configuration file, or
// an HTTP request are parsed into these types at the boundary. Code
// past the boundary passes typed values and never re-validates.
//
// The bridge mints two kinds of identifiers itself: puppet user IDs and
// group room aliases. [NewUserID] and [NewRoomAlias] build them from a
// localpart and a [ServerName], enforcing the Matrix localpart
// grammar (a-z, 0-9, and . _ = - /).
//
// JSON and YAML marshaling use the canonical string form via
// encoding.TextMarshaler.
package ref
