// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Instant message dialog values used by group chat.
const (
	DialogSessionSend uint8 = 17
)

const (
	// BridgeBucket is the binary bucket of every message the bridge
	// injects. The tap never forwards a message carrying it.
	BridgeBucket = "Matrix Bridge"

	// InjectedNamePrefix precedes the Matrix sender name on injected
	// messages.
	InjectedNamePrefix = "[Matrix] "

	// EventTypeGroupMessage is the only event type the bridge accepts
	// from a tap.
	EventTypeGroupMessage = "group_message"
)

// InstantMessage is the subset of an OpenSim GridInstantMessage the
// bridge reads or writes. For group chat SessionID is the group UUID.
type InstantMessage struct {
	FromAgentID   uuid.UUID
	FromAgentName string
	Dialog        uint8
	SessionID     uuid.UUID
	Message       string
	FromGroup     bool
	Timestamp     uint32
	BinaryBucket  []byte
}

// FromBridge reports whether the message was injected by the bridge.
func (im InstantMessage) FromBridge() bool {
	return strings.TrimRight(string(im.BinaryBucket), "\x00") == BridgeBucket
}

// GroupMessage is a group chat line headed for Matrix.
type GroupMessage struct {
	GroupID    uuid.UUID
	SenderID   uuid.UUID
	SenderName string
	Body       string
}

// Event is the JSON body a tap posts to the bridge's /os/event.
type Event struct {
	Type      string `json:"type"`
	GroupUUID string `json:"group_uuid"`
	FromUUID  string `json:"from_uuid"`
	FromName  string `json:"from_name"`
	Message   string `json:"message"`
	Dialog    uint8  `json:"dialog,omitempty"`
	TimeUnix  int64  `json:"ts_unix,omitempty"`
}

// GroupMessage validates a group_message event and converts it. The
// body is passed through untrimmed; blank bodies are the relay's call.
func (e Event) GroupMessage() (GroupMessage, error) {
	if e.Type != EventTypeGroupMessage {
		return GroupMessage{}, fmt.Errorf("unsupported event type %q", e.Type)
	}
	groupID, err := uuid.Parse(e.GroupUUID)
	if err != nil {
		return GroupMessage{}, fmt.Errorf("invalid group_uuid %q", e.GroupUUID)
	}
	senderID, _, err := ParsePrincipal(e.FromUUID)
	if err != nil {
		return GroupMessage{}, fmt.Errorf("invalid from_uuid %q", e.FromUUID)
	}
	return GroupMessage{
		GroupID:    groupID,
		SenderID:   senderID,
		SenderName: e.FromName,
		Body:       e.Message,
	}, nil
}

// InjectRequest is the JSON body the bridge posts to a region's
// /matrix/group-message endpoint.
type InjectRequest struct {
	GroupUUID string `json:"group_uuid"`
	FromName  string `json:"from_name"`
	Message   string `json:"message"`
}

// IsSystemSender reports whether id is the null UUID that marks
// bridge-injected messages.
func IsSystemSender(id uuid.UUID) bool {
	return id == uuid.Nil
}

// ParsePrincipal parses a PrincipalID. Local members are a bare UUID;
// Hypergrid visitors are "uuid;home_uri;First Last". The name is
// returned only for the Hypergrid form.
func ParsePrincipal(raw string) (uuid.UUID, string, error) {
	idPart, rest, hasRest := strings.Cut(strings.TrimSpace(raw), ";")
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("opensim: invalid principal %q: %w", raw, err)
	}
	if !hasRest {
		return id, "", nil
	}
	_, name, _ := strings.Cut(rest, ";")
	return id, strings.TrimSpace(name), nil
}
