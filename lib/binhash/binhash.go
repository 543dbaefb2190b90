// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// String returns the hex encoding.
func (d Digest) String() string {
	return FormatDigest(d)
}

// Sum returns the BLAKE3 digest of data.
func Sum(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// FormatDigest returns the lowercase hex form of digest.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}
