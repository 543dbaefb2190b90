// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParsePrincipal(t *testing.T) {
	id := "3f2a9c1e-0b7d-4e5f-8a6b-2c3d4e5f6a7b"
	tests := []struct {
		name     string
		input    string
		wantName string
		wantErr  bool
	}{
		{name: "local", input: id},
		{name: "surrounding space", input: " " + id + " "},
		{name: "hypergrid", input: id + ";http://other.grid:8002/;Ada Lovelace", wantName: "Ada Lovelace"},
		{name: "hypergrid without name", input: id + ";http://other.grid:8002/"},
		{name: "garbage", input: "not-a-uuid", wantErr: true},
		{name: "garbage with url", input: "nope;http://other.grid/;Someone", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			parsed, name, err := ParsePrincipal(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParsePrincipal(%q) succeeded", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrincipal(%q): %v", test.input, err)
			}
			if parsed.String() != id {
				t.Errorf("id = %s, want %s", parsed, id)
			}
			if name != test.wantName {
				t.Errorf("name = %q, want %q", name, test.wantName)
			}
		})
	}
}

func TestEventGroupMessage(t *testing.T) {
	group := uuid.New()
	sender := uuid.New()

	valid := Event{
		Type:      EventTypeGroupMessage,
		GroupUUID: group.String(),
		FromUUID:  sender.String(),
		FromName:  "Ada Lovelace",
		Message:   "hello",
	}
	message, err := valid.GroupMessage()
	if err != nil {
		t.Fatalf("GroupMessage: %v", err)
	}
	if message.GroupID != group || message.SenderID != sender || message.SenderName != "Ada Lovelace" || message.Body != "hello" {
		t.Errorf("message = %+v", message)
	}

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "wrong type", mutate: func(e *Event) { e.Type = "presence" }, wantErr: "unsupported event type"},
		{name: "bad group", mutate: func(e *Event) { e.GroupUUID = "group" }, wantErr: "invalid group_uuid"},
		{name: "bad sender", mutate: func(e *Event) { e.FromUUID = "" }, wantErr: "invalid from_uuid"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			event := valid
			test.mutate(&event)
			_, err := event.GroupMessage()
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("error = %v, want %q", err, test.wantErr)
			}
		})
	}
}

func TestSystemSenderAndBucket(t *testing.T) {
	if !IsSystemSender(uuid.MustParse("00000000-0000-0000-0000-000000000000")) {
		t.Error("null UUID is not a system sender")
	}
	if IsSystemSender(uuid.New()) {
		t.Error("random UUID reported as system sender")
	}

	im := InstantMessage{BinaryBucket: []byte(BridgeBucket)}
	if !im.FromBridge() {
		t.Error("bridge bucket not recognized")
	}
	im.BinaryBucket = append([]byte(BridgeBucket), 0)
	if !im.FromBridge() {
		t.Error("NUL-terminated bridge bucket not recognized")
	}
	im.BinaryBucket = []byte("Matrix")
	if im.FromBridge() {
		t.Error("partial bucket recognized as bridge")
	}
}
