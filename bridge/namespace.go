// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// Identity classifies a Matrix user relative to the bridge.
type Identity int

const (
	// IdentityExternal is any user the bridge does not control.
	IdentityExternal Identity = iota
	// IdentityBot is the appservice sender.
	IdentityBot
	// IdentityPuppet is a member's synthetic account.
	IdentityPuppet
)

func (i Identity) String() string {
	switch i {
	case IdentityBot:
		return "bot"
	case IdentityPuppet:
		return "puppet"
	default:
		return "external"
	}
}

// roomAliasPrefix starts every bridged room alias.
const roomAliasPrefix = "os_"

// Namespace derives and recognizes the identifiers the bridge owns on
// its homeserver.
type Namespace struct {
	server       ref.ServerName
	bot          ref.UserID
	puppetPrefix string
}

// NewNamespace validates the bot localpart and puppet prefix. The bot
// must not itself look like a puppet.
func NewNamespace(server ref.ServerName, botLocalpart, puppetPrefix string) (Namespace, error) {
	if server.IsZero() {
		return Namespace{}, fmt.Errorf("bridge: server name is required")
	}
	if puppetPrefix == "" {
		return Namespace{}, fmt.Errorf("bridge: puppet prefix is required")
	}
	if strings.HasPrefix(botLocalpart, puppetPrefix) {
		return Namespace{}, fmt.Errorf("bridge: bot localpart %q starts with the puppet prefix %q", botLocalpart, puppetPrefix)
	}
	bot, err := ref.NewUserID(botLocalpart, server)
	if err != nil {
		return Namespace{}, fmt.Errorf("bridge: bot user: %w", err)
	}
	// Validates the prefix against the localpart grammar.
	if _, err := ref.NewUserID(puppetPrefix+strings.Repeat("0", 32), server); err != nil {
		return Namespace{}, fmt.Errorf("bridge: puppet prefix: %w", err)
	}
	return Namespace{server: server, bot: bot, puppetPrefix: puppetPrefix}, nil
}

// Server returns the homeserver name.
func (n Namespace) Server() ref.ServerName { return n.server }

// Bot returns the appservice sender.
func (n Namespace) Bot() ref.UserID { return n.bot }

// PuppetLocalpart returns the prefix followed by the member UUID's 32
// hex digits.
func (n Namespace) PuppetLocalpart(member uuid.UUID) string {
	return n.puppetPrefix + hex.EncodeToString(member[:])
}

// PuppetID returns the member's puppet user ID.
func (n Namespace) PuppetID(member uuid.UUID) ref.UserID {
	userID, err := ref.NewUserID(n.PuppetLocalpart(member), n.server)
	if err != nil {
		// Unreachable: NewNamespace validated prefix and server.
		panic(fmt.Sprintf("bridge: puppet ID for %s: %v", member, err))
	}
	return userID
}

// RoomAlias returns the group's room alias: "os_" and the full 32 hex
// digits of the group UUID.
func (n Namespace) RoomAlias(group uuid.UUID) ref.RoomAlias {
	alias, err := ref.NewRoomAlias(roomAliasPrefix+hex.EncodeToString(group[:]), n.server)
	if err != nil {
		panic(fmt.Sprintf("bridge: room alias for %s: %v", group, err))
	}
	return alias
}

// Classify reports whether user belongs to the bridge. Only users on
// this homeserver qualify; a puppet localpart is the prefix followed
// by exactly 32 lowercase hex digits.
func (n Namespace) Classify(user ref.UserID) Identity {
	if user.Server() != n.server.String() {
		return IdentityExternal
	}
	if user == n.bot {
		return IdentityBot
	}
	rest, ok := strings.CutPrefix(user.Localpart(), n.puppetPrefix)
	if ok && len(rest) == 32 && isLowerHex(rest) {
		return IdentityPuppet
	}
	return IdentityExternal
}

// UserRegex returns the registration regex reserving the puppet
// namespace.
func (n Namespace) UserRegex() string {
	return "@" + regexp.QuoteMeta(n.puppetPrefix) + "[0-9a-f]{32}:" + regexp.QuoteMeta(n.server.String())
}

// AliasRegex returns the registration regex reserving bridged room
// aliases.
func (n Namespace) AliasRegex() string {
	return "#" + regexp.QuoteMeta(roomAliasPrefix) + "[0-9a-f]{32}:" + regexp.QuoteMeta(n.server.String())
}

func isLowerHex(s string) bool {
	for index := 0; index < len(s); index++ {
		c := s[index]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
