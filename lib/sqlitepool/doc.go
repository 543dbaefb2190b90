// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the bridge's SQLite database as a
// zombiezen.com/go/sqlite connection pool with versioned migrations.
//
// Every connection runs in WAL mode with synchronous=FULL, a 5 second
// busy timeout, and foreign keys on. Schema steps passed in
// [Config.Migrations] are applied inside one immediate transaction
// when the pool opens, and the count is recorded in PRAGMA
// user_version; reopening a file applies only the new steps.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       "/var/lib/lighthouse/bridge.db",
//	    Migrations: migrations,
//	    Logger:     logger,
//	})
//
// Callers either pair [Pool.Take] with [Pool.Put] or use [Pool.With].
// There is no query layer: callers write SQL and run it with
// sqlitex.Execute.
package sqlitepool
