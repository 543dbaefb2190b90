// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridgestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lighthouse/lib/binhash"
	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/lib/sqlitepool"
)

// ErrRoomClaimed is returned by Upsert when the room is already bound
// to a different enabled group.
var ErrRoomClaimed = errors.New("bridgestore: room is already bridged to another group")

// migrations are append-only; see sqlitepool.Config.Migrations.
var migrations = []string{
	`CREATE TABLE group_bridge_state (
		group_id     TEXT PRIMARY KEY NOT NULL,
		room_id      TEXT NOT NULL,
		enabled      INTEGER NOT NULL DEFAULT 1,
		activated_by TEXT NOT NULL,
		activated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX group_bridge_state_enabled_room
		ON group_bridge_state (room_id) WHERE enabled = 1;

	CREATE TABLE avatar_media (
		hash        TEXT PRIMARY KEY NOT NULL,
		uri         TEXT NOT NULL,
		uploaded_at INTEGER NOT NULL
	);`,
}

// Binding is one group's bridge state.
type Binding struct {
	GroupID     uuid.UUID
	RoomID      ref.RoomID
	Enabled     bool
	ActivatedBy uuid.UUID
	ActivatedAt time.Time
}

// Stats summarizes the store for the status endpoint.
type Stats struct {
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
	Media    int `json:"media"`
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the SQLite file.
	Path string
	// PoolSize is passed to sqlitepool. Zero uses its default.
	PoolSize int
	// Clock stamps activated_at. Defaults to clock.Real().
	Clock clock.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the bridge state store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (creating if needed) the store at config.Path.
func Open(config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       config.Path,
		PoolSize:   config.PoolSize,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bridgestore: %w", err)
	}
	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Binding returns the enabled binding for groupID. The boolean is
// false when the group has never been bridged or is disabled.
func (s *Store) Binding(ctx context.Context, groupID uuid.UUID) (Binding, bool, error) {
	var binding Binding
	found := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT group_id, room_id, enabled, activated_by, activated_at
			 FROM group_bridge_state WHERE group_id = ? AND enabled = 1`,
			&sqlitex.ExecOptions{
				Args: []any{groupID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					var err error
					binding, err = scanBinding(stmt)
					found = err == nil
					return err
				},
			})
	})
	if err != nil {
		return Binding{}, false, fmt.Errorf("bridgestore: reading binding for %s: %w", groupID, err)
	}
	return binding, found, nil
}

// GroupForRoom returns the group whose enabled binding points at roomID.
func (s *Store) GroupForRoom(ctx context.Context, roomID ref.RoomID) (uuid.UUID, bool, error) {
	var groupID uuid.UUID
	found := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT group_id FROM group_bridge_state WHERE room_id = ? AND enabled = 1`,
			&sqlitex.ExecOptions{
				Args: []any{roomID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					parsed, err := uuid.Parse(stmt.ColumnText(0))
					if err != nil {
						return fmt.Errorf("stored group_id %q: %w", stmt.ColumnText(0), err)
					}
					groupID = parsed
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("bridgestore: reading group for %s: %w", roomID, err)
	}
	return groupID, found, nil
}

// Upsert binds groupID to roomID and enables it, overwriting any
// earlier binding for the group. Returns ErrRoomClaimed if another
// enabled group holds roomID.
func (s *Store) Upsert(ctx context.Context, groupID uuid.UUID, roomID ref.RoomID, activatedBy uuid.UUID) error {
	activatedAt := s.clock.Now().UnixMilli()
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO group_bridge_state (group_id, room_id, enabled, activated_by, activated_at)
			 VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT(group_id) DO UPDATE SET
				room_id = excluded.room_id,
				enabled = 1,
				activated_by = excluded.activated_by,
				activated_at = excluded.activated_at`,
			&sqlitex.ExecOptions{
				Args: []any{groupID.String(), roomID.String(), activatedBy.String(), activatedAt},
			})
	})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return fmt.Errorf("%w: %s", ErrRoomClaimed, roomID)
		}
		return fmt.Errorf("bridgestore: binding %s to %s: %w", groupID, roomID, err)
	}

	s.logger.Info("group binding stored",
		"group_id", groupID,
		"room_id", roomID,
		"activated_by", activatedBy,
	)
	return nil
}

// Disable clears the enabled flag for groupID, keeping the room
// mapping. Returns false if the group had no enabled binding.
func (s *Store) Disable(ctx context.Context, groupID uuid.UUID) (bool, error) {
	changed := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE group_bridge_state SET enabled = 0 WHERE group_id = ? AND enabled = 1`,
			&sqlitex.ExecOptions{Args: []any{groupID.String()}})
		if err != nil {
			return err
		}
		changed = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("bridgestore: disabling %s: %w", groupID, err)
	}
	if changed {
		s.logger.Info("group binding disabled", "group_id", groupID)
	}
	return changed, nil
}

// List returns every enabled binding, most recently activated first.
func (s *Store) List(ctx context.Context) ([]Binding, error) {
	var bindings []Binding
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT group_id, room_id, enabled, activated_by, activated_at
			 FROM group_bridge_state WHERE enabled = 1
			 ORDER BY activated_at DESC, group_id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					binding, err := scanBinding(stmt)
					if err != nil {
						return err
					}
					bindings = append(bindings, binding)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("bridgestore: listing bindings: %w", err)
	}
	return bindings, nil
}

// Stats counts bindings and cached media.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`SELECT
				COALESCE(SUM(CASE WHEN enabled = 1 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN enabled = 0 THEN 1 ELSE 0 END), 0)
			 FROM group_bridge_state`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Enabled = stmt.ColumnInt(0)
					stats.Disabled = stmt.ColumnInt(1)
					return nil
				},
			})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn, `SELECT COUNT(*) FROM avatar_media`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Media = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	if err != nil {
		return Stats{}, fmt.Errorf("bridgestore: reading stats: %w", err)
	}
	return stats, nil
}

// MediaURI returns the cached content URI for digest.
func (s *Store) MediaURI(ctx context.Context, digest binhash.Digest) (string, bool, error) {
	var uri string
	found := false
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT uri FROM avatar_media WHERE hash = ?`,
			&sqlitex.ExecOptions{
				Args: []any{digest.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					uri = stmt.ColumnText(0)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return "", false, fmt.Errorf("bridgestore: reading media %s: %w", digest, err)
	}
	return uri, found, nil
}

// RecordMedia caches uri as the upload of content with digest. A later
// upload of the same content replaces the URI.
func (s *Store) RecordMedia(ctx context.Context, digest binhash.Digest, uri string) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO avatar_media (hash, uri, uploaded_at) VALUES (?, ?, ?)
			 ON CONFLICT(hash) DO UPDATE SET uri = excluded.uri, uploaded_at = excluded.uploaded_at`,
			&sqlitex.ExecOptions{
				Args: []any{digest.String(), uri, s.clock.Now().UnixMilli()},
			})
	})
	if err != nil {
		return fmt.Errorf("bridgestore: recording media %s: %w", digest, err)
	}
	return nil
}

func scanBinding(stmt *sqlite.Stmt) (Binding, error) {
	groupID, err := uuid.Parse(stmt.ColumnText(0))
	if err != nil {
		return Binding{}, fmt.Errorf("stored group_id %q: %w", stmt.ColumnText(0), err)
	}
	roomID, err := ref.ParseRoomID(stmt.ColumnText(1))
	if err != nil {
		return Binding{}, fmt.Errorf("stored room_id for %s: %w", groupID, err)
	}
	activatedBy, err := uuid.Parse(stmt.ColumnText(3))
	if err != nil {
		return Binding{}, fmt.Errorf("stored activated_by for %s: %w", groupID, err)
	}
	return Binding{
		GroupID:     groupID,
		RoomID:      roomID,
		Enabled:     stmt.ColumnInt(2) == 1,
		ActivatedBy: activatedBy,
		ActivatedAt: time.UnixMilli(stmt.ColumnInt64(4)).UTC(),
	}, nil
}
