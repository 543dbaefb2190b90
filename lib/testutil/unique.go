// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test binary.
//
//	txnID := testutil.UniqueID("txn") // "txn-1", "txn-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// UniqueUUID returns a distinct, well-formed lowercase UUID string, for
// group and avatar identifiers in tests.
func UniqueUUID() string {
	n := uniqueCounter.Add(1)
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", uint32(n), n)
}
