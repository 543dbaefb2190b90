// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets bridge components read the time through an
// injected dependency.
//
// Binding activation timestamps, the transaction replay window, and
// the status endpoint's uptime all come from a [Clock]. Production
// wiring passes [Real]; tests pass a [FakeClock] from [Fake] and move
// it with Advance or Set, so time-dependent behavior is exercised
// without sleeping.
package clock
