// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the reconciliation and relay engine between
// OpenSimulator group chat and Matrix rooms.
//
// A [Bridge] owns no state of its own beyond counters and a per-group
// lock. Bindings live in [bridgestore.Store], rosters and role powers
// come from a [GroupDirectory], and everything on the Matrix side goes
// through an appservice session. The engine is made of small
// idempotent steps:
//
//   - [Bridge.EnsureIdentity] registers a member's puppet account.
//   - [Bridge.EnsureMembership] invites the puppet and joins it.
//   - [Bridge.SyncDisplayName] and [Bridge.SyncAvatar] reconcile the
//     puppet's profile, reading before writing unless forced.
//   - [Bridge.ComputeAuthority] and [Bridge.SyncAuthority] mirror the
//     member's role power into the room's power level table.
//   - [Bridge.EnsureRoom] finds or creates the one room for a group.
//
// The relay paths compose these steps. [Bridge.RelayOutbound] sends a
// group chat line into the room as the sender's puppet.
// [Bridge.HandleTransaction] forwards human room messages back to the
// region. [Bridge.Resync] runs every step for the whole roster.
//
// Loop prevention rests on identity. Messages the region injects for
// Matrix senders carry the null UUID and are dropped outbound; events
// sent by puppets or the bot are recognized by [Namespace.Classify] and
// dropped inbound.
//
// Every remote call happens inline on the caller's goroutine with the
// caller's context. Nothing is retried: a failed relay is reported and
// the message is not delivered twice.
package bridge
