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

// EnsureIdentity registers the member's puppet if it does not exist
// and returns its user ID.
func (b *Bridge) EnsureIdentity(ctx context.Context, memberID uuid.UUID) (ref.UserID, error) {
	puppet := b.namespace.PuppetID(memberID)
	_, err := b.session.Register(ctx, puppet.Localpart())
	switch {
	case err == nil:
		b.logger.Info("registered puppet", "member_id", memberID, "user_id", puppet)
	case messaging.IsMatrixError(err, messaging.ErrCodeUserInUse):
	default:
		return ref.UserID{}, fmt.Errorf("registering puppet for %s: %w", memberID, err)
	}
	return puppet, nil
}

// EnsureMembership invites puppet to room as the bot and joins it as
// the puppet. The homeserver refuses to invite a user who is already
// in the room with M_FORBIDDEN; that is tolerated.
func (b *Bridge) EnsureMembership(ctx context.Context, roomID ref.RoomID, puppet ref.UserID) error {
	err := b.session.InviteUser(ctx, roomID, puppet)
	if err != nil && !messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
		return fmt.Errorf("inviting %s: %w", puppet, err)
	}
	if err := b.session.As(puppet).JoinRoom(ctx, roomID); err != nil {
		return fmt.Errorf("joining %s: %w", puppet, err)
	}
	return nil
}
