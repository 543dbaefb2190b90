// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/lib/secret"
)

// AppserviceSession performs client-server API calls with the
// appservice token. A session acts as the bot unless it was derived
// with As, in which case every request carries ?user_id= for the
// impersonated user.
//
// Sessions are immutable and safe for concurrent use. The token buffer
// is owned by whoever created the root session.
type AppserviceSession struct {
	client *Client
	token  *secret.Buffer
	bot    ref.UserID
	userID ref.UserID
}

// As returns a session that impersonates user. Passing the bot's own ID
// returns a session without the user_id parameter.
func (s *AppserviceSession) As(user ref.UserID) *AppserviceSession {
	return &AppserviceSession{
		client: s.client,
		token:  s.token,
		bot:    s.bot,
		userID: user,
	}
}

// UserID returns the user this session acts as.
func (s *AppserviceSession) UserID() ref.UserID {
	return s.userID
}

// Bot returns the appservice sender user.
func (s *AppserviceSession) Bot() ref.UserID {
	return s.bot
}

func (s *AppserviceSession) query() url.Values {
	if s.userID == s.bot {
		return nil
	}
	return url.Values{"user_id": {s.userID.String()}}
}

// Register creates a namespace account with the given localpart. The
// homeserver answers M_USER_IN_USE for an existing account; that error
// is returned unchanged for the caller to classify.
func (s *AppserviceSession) Register(ctx context.Context, localpart string) (ref.UserID, error) {
	request := registerRequest{
		Type:         LoginTypeAppservice,
		Username:     localpart,
		InhibitLogin: true,
	}
	body, err := s.client.doRequest(ctx, "POST", "/_matrix/client/v3/register", s.token, request,
		url.Values{"kind": {"user"}})
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: registering %q: %w", localpart, err)
	}

	var response RegisterResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: decoding register response: %w", err)
	}
	return response.UserID, nil
}

// ResolveAlias returns the room an alias points at. An unknown alias
// produces a *MatrixError with ErrCodeNotFound.
func (s *AppserviceSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, "GET", path, s.token, nil, s.query())
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolving alias %s: %w", alias, err)
	}

	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: decoding alias response: %w", err)
	}
	if response.RoomID.IsZero() {
		return ref.RoomID{}, fmt.Errorf("messaging: alias %s resolved to an empty room ID", alias)
	}
	return response.RoomID, nil
}

// CreateRoom creates a room owned by the session user.
func (s *AppserviceSession) CreateRoom(ctx context.Context, request CreateRoomRequest) (ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, "POST", "/_matrix/client/v3/createRoom", s.token, request, s.query())
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: creating room: %w", err)
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: decoding create room response: %w", err)
	}
	if response.RoomID.IsZero() {
		return ref.RoomID{}, fmt.Errorf("messaging: create room returned an empty room ID")
	}

	s.client.logger.Info("created matrix room",
		"room_id", response.RoomID,
		"alias", request.Alias,
		"creator", s.userID,
	)
	return response.RoomID, nil
}

// InviteUser invites user into room. Inviting a user who is already a
// member fails with M_FORBIDDEN on most homeservers.
func (s *AppserviceSession) InviteUser(ctx context.Context, roomID ref.RoomID, user ref.UserID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/invite"
	_, err := s.client.doRequest(ctx, "POST", path, s.token, inviteRequest{UserID: user.String()}, s.query())
	if err != nil {
		return fmt.Errorf("messaging: inviting %s to %s: %w", user, roomID, err)
	}
	return nil
}

// JoinRoom joins the session user to room.
func (s *AppserviceSession) JoinRoom(ctx context.Context, roomID ref.RoomID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/join"
	_, err := s.client.doRequest(ctx, "POST", path, s.token, struct{}{}, s.query())
	if err != nil {
		return fmt.Errorf("messaging: %s joining %s: %w", s.userID, roomID, err)
	}
	return nil
}

// GetDisplayName returns user's global display name. A user without one
// returns "" and no error; a user the server does not know returns a
// *MatrixError with ErrCodeNotFound.
func (s *AppserviceSession) GetDisplayName(ctx context.Context, user ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(user.String()) + "/displayname"
	body, err := s.client.doRequest(ctx, "GET", path, s.token, nil, s.query())
	if err != nil {
		return "", fmt.Errorf("messaging: getting display name of %s: %w", user, err)
	}

	var response displayNameBody
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding display name response: %w", err)
	}
	return response.DisplayName, nil
}

// SetDisplayName sets the session user's display name.
func (s *AppserviceSession) SetDisplayName(ctx context.Context, displayName string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(s.userID.String()) + "/displayname"
	_, err := s.client.doRequest(ctx, "PUT", path, s.token, displayNameBody{DisplayName: displayName}, s.query())
	if err != nil {
		return fmt.Errorf("messaging: setting display name of %s: %w", s.userID, err)
	}
	return nil
}

// GetAvatarURL returns user's avatar mxc:// URI, or "" if none is set.
func (s *AppserviceSession) GetAvatarURL(ctx context.Context, user ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(user.String()) + "/avatar_url"
	body, err := s.client.doRequest(ctx, "GET", path, s.token, nil, s.query())
	if err != nil {
		return "", fmt.Errorf("messaging: getting avatar of %s: %w", user, err)
	}

	var response avatarURLBody
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding avatar response: %w", err)
	}
	return response.AvatarURL, nil
}

// SetAvatarURL sets the session user's avatar to an mxc:// URI.
func (s *AppserviceSession) SetAvatarURL(ctx context.Context, contentURI string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(s.userID.String()) + "/avatar_url"
	_, err := s.client.doRequest(ctx, "PUT", path, s.token, avatarURLBody{AvatarURL: contentURI}, s.query())
	if err != nil {
		return fmt.Errorf("messaging: setting avatar of %s: %w", s.userID, err)
	}
	return nil
}

// UploadMedia uploads data and returns its mxc:// content URI.
func (s *AppserviceSession) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	query := s.query()
	if query == nil {
		query = url.Values{}
	}
	if filename != "" {
		query.Set("filename", filename)
	}
	body, err := s.client.doRequestRaw(ctx, "POST", "/_matrix/media/v3/upload", s.token, contentType,
		bytes.NewReader(data), query)
	if err != nil {
		return "", fmt.Errorf("messaging: uploading media: %w", err)
	}

	var response UploadResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding upload response: %w", err)
	}
	if response.ContentURI == "" {
		return "", fmt.Errorf("messaging: upload returned an empty content URI")
	}
	return response.ContentURI, nil
}

// GetStateEvent returns the raw content of a room state event.
func (s *AppserviceSession) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(eventType.String()) + "/" + url.PathEscape(stateKey)
	body, err := s.client.doRequest(ctx, "GET", path, s.token, nil, s.query())
	if err != nil {
		return nil, fmt.Errorf("messaging: getting %s state in %s: %w", eventType, roomID, err)
	}
	return json.RawMessage(body), nil
}

// GetState fetches a state event and decodes its content into T.
func GetState[T any](ctx context.Context, session *AppserviceSession, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var content T
	raw, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return content, err
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return content, fmt.Errorf("messaging: decoding %s state in %s: %w", eventType, roomID, err)
	}
	return content, nil
}

// SendStateEvent replaces a room state event and returns its event ID.
func (s *AppserviceSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (string, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(eventType.String()) + "/" + url.PathEscape(stateKey)
	body, err := s.client.doRequest(ctx, "PUT", path, s.token, content, s.query())
	if err != nil {
		return "", fmt.Errorf("messaging: sending %s state in %s: %w", eventType, roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding send state response: %w", err)
	}
	return response.EventID, nil
}

// SendMessage sends an m.room.message event as the session user. Every
// call uses a fresh random transaction ID.
func (s *AppserviceSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (string, error) {
	transactionID := uuid.NewString()
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/send/" + url.PathEscape(ref.EventTypeMessage.String()) + "/" + url.PathEscape(transactionID)
	body, err := s.client.doRequest(ctx, "PUT", path, s.token, content, s.query())
	if err != nil {
		return "", fmt.Errorf("messaging: sending message to %s: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding send response: %w", err)
	}
	return response.EventID, nil
}
