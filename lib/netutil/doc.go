// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds the HTTP bodies the bridge reads and writes
// JSON replies.
//
// Response helpers ([ReadResponse], [ErrorBody]) cap
// reads from the homeserver, region modules, and avatar service at
// [MaxResponseSize]. Request helpers ([DecodeRequest]) cap inbound
// bodies at a caller-chosen limit and report oversized bodies as
// [ErrBodyTooLarge] instead of truncating them into a JSON syntax
// error. [ReadLimited] does the same for binary downloads.
package netutil
