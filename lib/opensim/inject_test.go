// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/testutil"
)

type recordingInjector struct {
	mu       sync.Mutex
	messages []InstantMessage
	groups   []uuid.UUID
	err      error
}

func (r *recordingInjector) SendMessageToGroup(_ context.Context, im InstantMessage, groupID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, im)
	r.groups = append(r.groups, groupID)
	return nil
}

func TestInjectHandler(t *testing.T) {
	group := "11111111-2222-4333-8444-555555555555"
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		secret     string
		body       string
		wantStatus int
		wantName   string
	}{
		{
			name:       "valid",
			secret:     "shared",
			body:       `{"group_uuid":"` + group + `","from_name":"@alice:grid.example","message":"hello"}`,
			wantStatus: http.StatusOK,
			wantName:   "[Matrix] @alice:grid.example",
		},
		{
			name:       "blank name becomes unknown",
			secret:     "shared",
			body:       `{"group_uuid":"` + group + `","from_name":"  ","message":"hello"}`,
			wantStatus: http.StatusOK,
			wantName:   "[Matrix] unknown",
		},
		{name: "missing secret", secret: "", body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", secret: "guess", body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "missing fields", secret: "shared", body: `{"group_uuid":"` + group + `"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", secret: "shared", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "bad group", secret: "shared", body: `{"group_uuid":"x","from_name":"a","message":"b"}`, wantStatus: http.StatusBadRequest},
		{name: "blank message", secret: "shared", body: `{"group_uuid":"` + group + `","from_name":"a","message":" \n"}`, wantStatus: http.StatusBadRequest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			injector := &recordingInjector{}
			handler := NewInjectHandler(InjectHandlerConfig{
				Secret:   newSecret(t, "shared"),
				Injector: injector,
				Clock:    clock.Fake(now),
				Logger:   testutil.Logger(t),
			})

			request := httptest.NewRequest(http.MethodPost, InjectPath, strings.NewReader(test.body))
			if test.secret != "" {
				request.Header.Set(SecretHeader, test.secret)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			if recorder.Code != test.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", recorder.Code, test.wantStatus, recorder.Body)
			}
			if test.wantStatus != http.StatusOK {
				if len(injector.messages) != 0 {
					t.Error("rejected request reached the injector")
				}
				return
			}

			if len(injector.messages) != 1 {
				t.Fatalf("injected %d messages, want 1", len(injector.messages))
			}
			im := injector.messages[0]
			if im.FromAgentID != uuid.Nil || !IsSystemSender(im.FromAgentID) {
				t.Errorf("FromAgentID = %s, want null UUID", im.FromAgentID)
			}
			if im.FromAgentName != test.wantName {
				t.Errorf("FromAgentName = %q, want %q", im.FromAgentName, test.wantName)
			}
			if im.Dialog != DialogSessionSend || !im.FromGroup || !im.FromBridge() {
				t.Errorf("im = %+v", im)
			}
			if im.SessionID.String() != group || injector.groups[0].String() != group {
				t.Errorf("SessionID = %s", im.SessionID)
			}
			if im.Timestamp != uint32(now.Unix()) {
				t.Errorf("Timestamp = %d", im.Timestamp)
			}
			// An injected message must never be tapped back to the bridge.
			if Eligible(im) {
				t.Error("injected message is eligible for the tap")
			}
		})
	}
}

func TestInjectHandlerInjectorFailure(t *testing.T) {
	handler := NewInjectHandler(InjectHandlerConfig{
		Secret:   newSecret(t, "shared"),
		Injector: &recordingInjector{err: errors.New("groups module missing")},
		Logger:   testutil.Logger(t),
	})
	request := httptest.NewRequest(http.MethodPost, InjectPath, strings.NewReader(
		`{"group_uuid":"11111111-2222-4333-8444-555555555555","from_name":"a","message":"b"}`))
	request.Header.Set(SecretHeader, "shared")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", recorder.Code)
	}
}
