// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/bridgestore"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/messaging"
)

// RoomName returns the display name of a group's room.
func RoomName(groupName string, groupID uuid.UUID) string {
	groupName = strings.TrimSpace(groupName)
	if groupName == "" {
		groupName = groupID.String()
	}
	return "OpenSim | " + groupName
}

// RoomTopic returns the topic of a group's room.
func RoomTopic(groupID uuid.UUID) string {
	return "Bridged OpenSimulator group chat\nGroup UUID: " + groupID.String()
}

// EnsureRoom returns the room bridged to groupID, creating it on first
// activation. An existing room under the group's alias is adopted.
// Calls for the same group are serialized.
func (b *Bridge) EnsureRoom(ctx context.Context, groupID uuid.UUID, groupName string, founderID uuid.UUID) (ref.RoomID, error) {
	unlock, err := b.groupLocks.Lock(ctx, groupID)
	if err != nil {
		return ref.RoomID{}, err
	}
	defer unlock()

	binding, found, err := b.store.Binding(ctx, groupID)
	if err != nil {
		return ref.RoomID{}, err
	}
	if found {
		return binding.RoomID, nil
	}

	alias := b.namespace.RoomAlias(groupID)
	roomID, err := b.session.ResolveAlias(ctx, alias)
	switch {
	case err == nil:
		return b.adoptRoom(ctx, groupID, roomID, founderID)
	case messaging.IsMatrixError(err, messaging.ErrCodeNotFound):
	default:
		// Creating a room now could duplicate one that exists.
		return ref.RoomID{}, fmt.Errorf("resolving %s: %w", alias, err)
	}

	founder, err := b.EnsureIdentity(ctx, founderID)
	if err != nil {
		return ref.RoomID{}, err
	}

	roomID, err = b.session.CreateRoom(ctx, b.createRoomRequest(groupID, groupName, alias, founder))
	if messaging.IsMatrixError(err, messaging.ErrCodeRoomInUse) {
		roomID, err = b.session.ResolveAlias(ctx, alias)
		if err != nil {
			return ref.RoomID{}, fmt.Errorf("resolving %s after M_ROOM_IN_USE: %w", alias, err)
		}
		return b.adoptRoom(ctx, groupID, roomID, founderID)
	}
	if err != nil {
		return ref.RoomID{}, err
	}
	b.stats.roomsCreated.Add(1)

	if err := b.session.As(founder).JoinRoom(ctx, roomID); err != nil {
		return ref.RoomID{}, fmt.Errorf("joining founder to %s: %w", roomID, err)
	}
	if err := b.store.Upsert(ctx, groupID, roomID, founderID); err != nil {
		return ref.RoomID{}, err
	}

	b.logger.Info("group bridge enabled",
		"group_id", groupID,
		"room_id", roomID,
		"alias", alias,
		"founder", founder,
	)
	return roomID, nil
}

func (b *Bridge) adoptRoom(ctx context.Context, groupID uuid.UUID, roomID ref.RoomID, activatedBy uuid.UUID) (ref.RoomID, error) {
	if err := b.store.Upsert(ctx, groupID, roomID, activatedBy); err != nil {
		return ref.RoomID{}, err
	}
	b.stats.roomsAdopted.Add(1)
	b.logger.Info("adopted existing room for group", "group_id", groupID, "room_id", roomID)
	return roomID, nil
}

func (b *Bridge) createRoomRequest(groupID uuid.UUID, groupName string, alias ref.RoomAlias, founder ref.UserID) messaging.CreateRoomRequest {
	policy := b.policy
	return messaging.CreateRoomRequest{
		Name:       RoomName(groupName, groupID),
		Topic:      RoomTopic(groupID),
		Alias:      alias.Localpart(),
		Visibility: messaging.VisibilityPrivate,
		Preset:     messaging.PresetPrivateChat,
		Invite:     []string{founder.String()},
		PowerLevelContentOverride: map[string]any{
			"users": map[string]int64{
				b.namespace.Bot().String(): policy.Elevated,
				founder.String():           policy.Elevated,
			},
			"state_default":  policy.StateDefault,
			"users_default":  policy.UsersDefault,
			"events_default": policy.EventsDefault,
			"invite":         policy.Invite,
			"kick":           policy.Kick,
			"ban":            policy.Ban,
			"redact":         policy.Redact,
		},
	}
}

// Disable turns off relaying for groupID. The room mapping is kept so
// a later EnsureRoom reuses the room.
func (b *Bridge) Disable(ctx context.Context, groupID uuid.UUID) error {
	unlock, err := b.groupLocks.Lock(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	disabled, err := b.store.Disable(ctx, groupID)
	if err != nil {
		return err
	}
	if !disabled {
		return ErrNotBridged
	}
	return nil
}

// Bindings returns every enabled binding.
func (b *Bridge) Bindings(ctx context.Context) ([]bridgestore.Binding, error) {
	return b.store.List(ctx)
}
