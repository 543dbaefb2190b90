// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/messaging"
)

// Elevated reports whether memberPower reaches half of maxPower, using
// integer division. A group whose maximum is zero elevates nobody.
func Elevated(memberPower, maxPower uint64) bool {
	if maxPower == 0 {
		return false
	}
	return memberPower >= maxPower/2
}

// ComputeAuthority returns the power level the member should hold in
// the group's room. A member without a role row gets the floor.
func (b *Bridge) ComputeAuthority(ctx context.Context, groupID, memberID uuid.UUID) (int64, error) {
	memberPower, found, err := b.directory.MemberPower(ctx, groupID, memberID)
	if err != nil {
		return 0, fmt.Errorf("reading member power: %w", err)
	}
	if !found {
		return b.policy.Floor, nil
	}
	maxPower, err := b.directory.MaxPower(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("reading group max power: %w", err)
	}
	if Elevated(memberPower, maxPower) {
		return b.policy.Elevated, nil
	}
	return b.policy.Floor, nil
}

// SyncAuthority writes the member's computed level into the room's
// power levels. Unless force is set, an explicit entry that already
// matches is left alone. Every other field of the event is preserved.
// Returns whether a write happened.
func (b *Bridge) SyncAuthority(ctx context.Context, roomID ref.RoomID, puppet ref.UserID, groupID, memberID uuid.UUID, force bool) (bool, error) {
	desired, err := b.ComputeAuthority(ctx, groupID, memberID)
	if err != nil {
		return false, err
	}

	levels, err := messaging.GetState[messaging.PowerLevels](ctx, b.session, roomID, ref.EventTypePowerLevels, "")
	if err != nil {
		return false, fmt.Errorf("reading power levels: %w", err)
	}
	if !force && levels.HasUserLevel(puppet) && levels.UserLevel(puppet) == desired {
		return false, nil
	}

	previous := levels.UserLevel(puppet)
	levels.SetUserLevel(puppet, desired)
	if _, err := b.session.SendStateEvent(ctx, roomID, ref.EventTypePowerLevels, "", levels); err != nil {
		return false, fmt.Errorf("writing power levels: %w", err)
	}

	b.logger.Info("puppet power level synced",
		"room_id", roomID,
		"user_id", puppet,
		"previous", previous,
		"level", desired,
	)
	return true, nil
}
