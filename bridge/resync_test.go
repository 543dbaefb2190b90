// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bureau-foundation/lighthouse/messaging"
)

func TestResyncGrantsAuthority(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()
	group, leader, roomID := tb.enableGroup(t, 100)
	member := newMember()
	tb.directory.addMember(group, member, "Member Resident", 0)
	tb.avatars.images[member] = testPNG

	report, err := tb.Resync(ctx, group)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if !report.Complete() || report.Members != 2 || report.Synced != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.RoomID != roomID || report.GroupID != group {
		t.Errorf("report identifies %s/%s", report.GroupID, report.RoomID)
	}

	leaderPuppet := tb.Namespace().PuppetID(leader)
	memberPuppet := tb.Namespace().PuppetID(member)
	if level, ok := tb.homeserver.userLevel(roomID, leaderPuppet); !ok || level != 100 {
		t.Errorf("leader level = %d (explicit %v), want 100", level, ok)
	}
	if level, ok := tb.homeserver.userLevel(roomID, memberPuppet); !ok || level != 0 {
		t.Errorf("member level = %d (explicit %v), want explicit 0", level, ok)
	}

	room := tb.homeserver.room(roomID)
	for _, puppet := range []string{leaderPuppet.String(), memberPuppet.String()} {
		if !room.members[puppet] {
			t.Errorf("%s is not a room member", puppet)
		}
	}
	if got := tb.homeserver.profile(memberPuppet).displayName; got != "Member Resident" {
		t.Errorf("member display name = %q", got)
	}
	if tb.homeserver.profile(memberPuppet).avatarURL == "" {
		t.Error("member avatar was not set")
	}
	if stats := tb.Stats(); stats.Resyncs != 1 {
		t.Errorf("Resyncs = %d, want 1", stats.Resyncs)
	}

	// Levels are rewritten on every resync.
	writes := tb.homeserver.count("set_power_levels")
	if _, err := tb.Resync(ctx, group); err != nil {
		t.Fatalf("second Resync: %v", err)
	}
	if got := tb.homeserver.count("set_power_levels") - writes; got != 2 {
		t.Errorf("second resync wrote power levels %d times, want 2", got)
	}
}

func TestResyncFallsBackToAccountName(t *testing.T) {
	tb := newTestBridge(t)
	group, _, _ := tb.enableGroup(t, 40)
	member := newMember()
	tb.directory.addMember(group, member, "", 0)
	tb.directory.names[member] = "Account Name"

	if _, err := tb.Resync(context.Background(), group); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if got := tb.homeserver.profile(tb.Namespace().PuppetID(member)).displayName; got != "Account Name" {
		t.Errorf("display name = %q, want account name", got)
	}
}

func TestResyncCollectsMemberFailures(t *testing.T) {
	tb := newTestBridge(t)
	group, founder, _ := tb.enableGroup(t, 40)
	tb.directory.addMember(group, newMember(), "Second Resident", 10)
	tb.homeserver.fail("set_displayname", http.StatusInternalServerError, messaging.ErrCodeUnknown, 1)

	report, err := tb.Resync(context.Background(), group)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if report.Complete() || report.Synced != 1 || len(report.Failures) != 1 {
		t.Fatalf("report = %+v, want one failure and one success", report)
	}
	if report.Failures[0].MemberID != founder || report.Failures[0].Error == "" {
		t.Errorf("failure = %+v", report.Failures[0])
	}
}

func TestResyncRequiresBinding(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()

	if _, err := tb.Resync(ctx, newMember()); !errors.Is(err, ErrNotBridged) {
		t.Errorf("Resync of unknown group = %v, want ErrNotBridged", err)
	}

	group, _, _ := tb.enableGroup(t, 40)
	if err := tb.Disable(ctx, group); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	calls := tb.homeserver.totalCalls()
	if _, err := tb.Resync(ctx, group); !errors.Is(err, ErrNotBridged) {
		t.Errorf("Resync of disabled group = %v, want ErrNotBridged", err)
	}
	if tb.homeserver.totalCalls() != calls {
		t.Error("disabled group resync made remote calls")
	}
}

func TestResyncDirectoryFailure(t *testing.T) {
	tb := newTestBridge(t)
	group, _, _ := tb.enableGroup(t, 40)
	tb.directory.err = errors.New("mysql: connection refused")

	if _, err := tb.Resync(context.Background(), group); err == nil {
		t.Fatal("Resync succeeded with a failing directory")
	}
}
