// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type.
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing. The type keeps a state
// key from being passed where an event type is expected.
type EventType string

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }

// Event types the bridge reads or writes.
const (
	EventTypeMessage     EventType = "m.room.message"
	EventTypePowerLevels EventType = "m.room.power_levels"
	EventTypeMember      EventType = "m.room.member"
)
