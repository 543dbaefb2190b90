// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// MemberFailure records one member that could not be synced.
type MemberFailure struct {
	MemberID uuid.UUID `json:"member_id"`
	Error    string    `json:"error"`
}

// ResyncReport summarizes a roster resync.
type ResyncReport struct {
	GroupID  uuid.UUID       `json:"group_id"`
	RoomID   ref.RoomID      `json:"room_id"`
	Members  int             `json:"members"`
	Synced   int             `json:"synced"`
	Failures []MemberFailure `json:"failures,omitempty"`
}

// Complete reports whether every member synced.
func (r ResyncReport) Complete() bool {
	return len(r.Failures) == 0
}

// Resync brings every member of the group's roster in line: puppet,
// display name, avatar (forced), membership, and power level (forced).
// Member failures are collected and do not stop the loop. Returns
// ErrNotBridged if the group has no enabled binding.
func (b *Bridge) Resync(ctx context.Context, groupID uuid.UUID) (ResyncReport, error) {
	binding, found, err := b.store.Binding(ctx, groupID)
	if err != nil {
		return ResyncReport{}, err
	}
	if !found {
		return ResyncReport{}, ErrNotBridged
	}

	members, err := b.directory.Members(ctx, groupID)
	if err != nil {
		return ResyncReport{}, fmt.Errorf("listing members: %w", err)
	}

	b.stats.resyncs.Add(1)
	report := ResyncReport{GroupID: groupID, RoomID: binding.RoomID, Members: len(members)}
	for _, member := range members {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := b.resyncMember(ctx, binding.RoomID, groupID, member); err != nil {
			b.logger.Warn("member resync failed",
				"group_id", groupID,
				"member_id", member.ID,
				"error", err,
			)
			report.Failures = append(report.Failures, MemberFailure{MemberID: member.ID, Error: err.Error()})
			continue
		}
		report.Synced++
	}

	b.logger.Info("group resynced",
		"group_id", groupID,
		"room_id", binding.RoomID,
		"members", report.Members,
		"failed", len(report.Failures),
	)
	return report, nil
}

func (b *Bridge) resyncMember(ctx context.Context, roomID ref.RoomID, groupID uuid.UUID, member opensim.Member) error {
	puppet, err := b.EnsureIdentity(ctx, member.ID)
	if err != nil {
		return err
	}

	name := member.Name
	if name == "" {
		name, _, err = b.directory.DisplayName(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("reading account name: %w", err)
		}
	}
	if _, err := b.SyncDisplayName(ctx, puppet, name, false); err != nil {
		return err
	}
	if _, err := b.SyncAvatar(ctx, puppet, member.ID, true); err != nil {
		return err
	}
	if err := b.EnsureMembership(ctx, roomID, puppet); err != nil {
		return err
	}
	if _, err := b.SyncAuthority(ctx, roomID, puppet, groupID, member.ID, true); err != nil {
		return err
	}
	return nil
}
