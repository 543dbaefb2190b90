// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides BLAKE3 content hashing for media blobs.
//
// The bridge keys its avatar upload cache by the hash of the image
// bytes, so two members sharing the same profile picture, or the same
// member resynced twice, cost one upload. The digest is stored in hex.
//
// [Sum] hashes an in-memory blob; [FormatDigest] gives the hex form
// used as the cache key and in log output.
package binhash
