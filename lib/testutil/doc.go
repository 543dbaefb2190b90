// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the bridge packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used when a test waits on a background delivery (the
// HyperGrid tap, server readiness). They are the only place tests use
// wall-clock timeouts.
//
// [UniqueID] and [UniqueUUID] produce distinct transaction IDs and
// OpenSim identifiers without reading the clock.
//
// [Logger] routes slog output into the test log so failures show what
// the component logged.
package testutil
