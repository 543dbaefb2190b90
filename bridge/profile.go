// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/binhash"
	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// maxDisplayNameRunes bounds a puppet display name.
const maxDisplayNameRunes = 64

// NormalizeDisplayName trims name and truncates it to 64 runes.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= maxDisplayNameRunes {
		return name
	}
	runes := []rune(name)
	return strings.TrimSpace(string(runes[:maxDisplayNameRunes]))
}

// SyncDisplayName sets the puppet's display name to desired. Unless
// force is set, the current name is read first and an equal name is
// left alone. An unreadable current name counts as different. Returns
// whether a write happened.
func (b *Bridge) SyncDisplayName(ctx context.Context, puppet ref.UserID, desired string, force bool) (bool, error) {
	desired = NormalizeDisplayName(desired)
	if desired == "" {
		return false, nil
	}

	session := b.session.As(puppet)
	if !force {
		current, err := session.GetDisplayName(ctx, puppet)
		if err == nil && current == desired {
			return false, nil
		}
		if err != nil {
			b.logger.Debug("display name unreadable, writing", "user_id", puppet, "error", err)
		}
	}

	if err := session.SetDisplayName(ctx, desired); err != nil {
		return false, fmt.Errorf("setting display name: %w", err)
	}
	b.logger.Debug("puppet display name updated", "user_id", puppet, "display_name", desired)
	return true, nil
}

// SyncAvatar sets the puppet's avatar from the member's profile image.
// Unless force is set, a puppet that already has an avatar is left
// alone. A member without an image is skipped silently. Identical
// images are uploaded once and reused through the media cache.
// Returns whether the avatar was set.
func (b *Bridge) SyncAvatar(ctx context.Context, puppet ref.UserID, memberID uuid.UUID, force bool) (bool, error) {
	if b.avatars == nil {
		return false, nil
	}

	session := b.session.As(puppet)
	if !force {
		current, err := session.GetAvatarURL(ctx, puppet)
		if err == nil && current != "" {
			return false, nil
		}
	}

	image, err := b.avatars.Fetch(ctx, memberID)
	if err != nil {
		if errors.Is(err, opensim.ErrAvatarUnavailable) {
			b.logger.Debug("no avatar for member", "member_id", memberID, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("fetching avatar: %w", err)
	}

	digest := binhash.Sum(image)
	contentURI, cached, err := b.store.MediaURI(ctx, digest)
	if err != nil {
		b.logger.Warn("media cache lookup failed", "hash", digest, "error", err)
		cached = false
	}
	if !cached {
		contentURI, err = session.UploadMedia(ctx, memberID.String()+".png", "image/png", image)
		if err != nil {
			return false, fmt.Errorf("uploading avatar: %w", err)
		}
		if err := b.store.RecordMedia(ctx, digest, contentURI); err != nil {
			b.logger.Warn("media cache write failed", "hash", digest, "error", err)
		}
	}

	if err := session.SetAvatarURL(ctx, contentURI); err != nil {
		return false, fmt.Errorf("setting avatar: %w", err)
	}
	b.logger.Debug("puppet avatar updated",
		"user_id", puppet,
		"content_uri", contentURI,
		"cached", cached,
	)
	return true, nil
}
