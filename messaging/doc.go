// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the bridge's Matrix client. It speaks the
// client-server API as an application service.
//
// [Client] holds the homeserver URL and HTTP transport. [Client.Appservice]
// binds it to the as_token and the bot's user ID, returning an
// [AppserviceSession] that acts as the bot. [AppserviceSession.As] returns
// a view of the same session that impersonates another user in the
// appservice namespace by adding ?user_id= to every request; puppets
// send messages, join rooms, set profiles, and upload media through
// such views. [AppserviceSession.Register] creates namespace accounts
// with the m.login.application_service login type.
//
// Every non-2xx response with a Matrix error body is returned as a
// [*MatrixError]. [IsMatrixError] tests for a specific errcode; the
// bridge uses it to treat M_USER_IN_USE, M_ROOM_IN_USE, and
// already-joined responses as idempotent success.
//
// [PowerLevels] decodes m.room.power_levels content while retaining
// every field it does not model, so a read-modify-write cycle changes
// only the user entry being set.
//
// [Transaction] and [Event] model the batches the homeserver pushes to
// the appservice. A transaction keeps its events as raw JSON and
// [ParseEvent] decodes them one at a time, so one malformed event does
// not fail the whole batch.
package messaging
