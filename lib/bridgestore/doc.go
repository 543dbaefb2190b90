// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgestore persists which OpenSim group is bridged to which
// Matrix room, plus a cache of uploaded avatar media.
//
// The store is a single SQLite file opened through [sqlitepool]. Two
// tables:
//
//   - group_bridge_state: one row per group ever activated. The
//     enabled flag makes disabling reversible without losing the room.
//     A partial unique index on room_id over enabled rows keeps one
//     room from serving two groups at once; [Store.Upsert] reports a
//     violation as [ErrRoomClaimed].
//   - avatar_media: BLAKE3 content digest to mxc:// URI, so identical
//     images are uploaded once.
//
// Every method borrows one pooled connection for one short statement.
// Nothing here holds a connection across a network call, and nothing
// retries.
package bridgestore
