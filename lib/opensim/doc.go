// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package opensim is the bridge's view of an OpenSimulator grid.
//
// On the bridge side it provides:
//
//   - [Directory]: read-only queries against the grid's MySQL database
//     (group memberships, role powers, user account names), built with
//     squirrel and run over database/sql with the go-sql-driver/mysql
//     driver.
//   - [RegionClient]: delivers Matrix-originated text to a region's
//     inject endpoint.
//   - [AvatarSource]: fetches member profile images from a URL template.
//
// It also carries the region-side halves of the protocol, so both ends
// of the wire are defined in one place:
//
//   - [NewInjectHandler]: the region endpoint that accepts relayed Matrix
//     text and hands it to the group messaging module as an instant
//     message from the null sender.
//   - [Tap]: a fire-and-forget observer on instant message delivery
//     that forwards group chat to the bridge without ever blocking or
//     failing the primary delivery.
//
// Two markers keep the loop from closing on itself. Injected messages
// carry [uuid.Nil] as the sender, which the bridge drops outbound, and
// the [BridgeBucket] binary bucket, which the tap skips.
package opensim
