// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// PowerLevels is m.room.power_levels content. Users is decoded for
// read-modify-write; every other field is kept as raw JSON and written
// back unchanged.
type PowerLevels struct {
	Users        map[string]int64
	UsersDefault int64
	other        map[string]json.RawMessage
}

// UserLevel returns the explicit level for user, or UsersDefault.
func (p *PowerLevels) UserLevel(user ref.UserID) int64 {
	if level, ok := p.Users[user.String()]; ok {
		return level
	}
	return p.UsersDefault
}

// HasUserLevel reports whether user has an explicit entry.
func (p *PowerLevels) HasUserLevel(user ref.UserID) bool {
	_, ok := p.Users[user.String()]
	return ok
}

// SetUserLevel sets the explicit level for user.
func (p *PowerLevels) SetUserLevel(user ref.UserID, level int64) {
	if p.Users == nil {
		p.Users = make(map[string]int64)
	}
	p.Users[user.String()] = level
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PowerLevels) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding power levels: %w", err)
	}

	p.Users = nil
	p.UsersDefault = 0
	if raw, ok := fields["users"]; ok {
		if err := json.Unmarshal(raw, &p.Users); err != nil {
			return fmt.Errorf("decoding power levels users: %w", err)
		}
		delete(fields, "users")
	}
	if raw, ok := fields["users_default"]; ok {
		if err := json.Unmarshal(raw, &p.UsersDefault); err != nil {
			return fmt.Errorf("decoding power levels users_default: %w", err)
		}
		delete(fields, "users_default")
	}
	p.other = fields
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p PowerLevels) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(p.other)+2)
	for key, value := range p.other {
		fields[key] = value
	}
	users := p.Users
	if users == nil {
		users = map[string]int64{}
	}
	fields["users"] = users
	fields["users_default"] = p.UsersDefault
	return json.Marshal(fields)
}
