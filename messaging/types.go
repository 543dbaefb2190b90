// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// Message types.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
)

// Room creation presets and visibility values.
const (
	PresetPrivateChat = "private_chat"
	VisibilityPrivate = "private"
)

// LoginTypeAppservice is the registration type for appservice-owned users.
const LoginTypeAppservice = "m.login.application_service"

// registerRequest is the body of an appservice registration.
type registerRequest struct {
	Type         string `json:"type"`
	Username     string `json:"username"`
	InhibitLogin bool   `json:"inhibit_login"`
}

// RegisterResponse is returned by Register.
type RegisterResponse struct {
	UserID ref.UserID `json:"user_id"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name                      string         `json:"name,omitempty"`
	Topic                     string         `json:"topic,omitempty"`
	Alias                     string         `json:"room_alias_name,omitempty"` // local alias without # or :server
	Visibility                string         `json:"visibility,omitempty"`
	Preset                    string         `json:"preset,omitempty"`
	Invite                    []string       `json:"invite,omitempty"`
	PowerLevelContentOverride map[string]any `json:"power_level_content_override,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers,omitempty"`
}

// SendEventResponse is returned by SendMessage and SendStateEvent.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

type displayNameBody struct {
	DisplayName string `json:"displayname"`
}

type avatarURLBody struct {
	AvatarURL string `json:"avatar_url"`
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage returns plain m.text content.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// Transaction is a batch of events pushed by the homeserver to
// PUT /_matrix/app/v1/transactions/{txnId}. Events stay raw until
// ParseEvent so one malformed event cannot reject the batch. Ephemeral
// events are not decoded.
type Transaction struct {
	Events []json.RawMessage `json:"events"`
}

// ParseEvent decodes one raw transaction event.
func ParseEvent(raw json.RawMessage) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("messaging: decoding event: %w", err)
	}
	return event, nil
}

// Event is one timeline or state event inside a transaction. Sender and
// RoomID are raw so the caller can reject a malformed event on its own.
type Event struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	RoomID         string          `json:"room_id"`
	StateKey       *string         `json:"state_key,omitempty"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	Unsigned       EventUnsigned   `json:"unsigned"`
}

// EventUnsigned carries server-added event metadata. Some homeservers
// include the sender's room display name as sender_display_name.
type EventUnsigned struct {
	Age               int64  `json:"age,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
}

// MessageContent decodes the event content as m.room.message content.
func (e Event) MessageContent() (MessageContent, error) {
	var content MessageContent
	if len(e.Content) == 0 {
		return content, nil
	}
	err := json.Unmarshal(e.Content, &content)
	return content, err
}
