// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridgestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/binhash"
	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, path string) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	store, err := Open(Config{
		Path:   path,
		Clock:  fake,
		Logger: testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func newGroup(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.MustParse(testutil.UniqueUUID())
}

func TestBindingLifecycle(t *testing.T) {
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	groupID := newGroup(t)
	founder := newGroup(t)
	roomID := ref.MustParseRoomID("!first:grid.example")

	if _, found, err := store.Binding(ctx, groupID); err != nil || found {
		t.Fatalf("Binding before Upsert = found %v, err %v", found, err)
	}

	if err := store.Upsert(ctx, groupID, roomID, founder); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	binding, found, err := store.Binding(ctx, groupID)
	if err != nil || !found {
		t.Fatalf("Binding = found %v, err %v", found, err)
	}
	if binding.RoomID != roomID || !binding.Enabled || binding.ActivatedBy != founder {
		t.Errorf("binding = %+v", binding)
	}
	if !binding.ActivatedAt.Equal(epoch) {
		t.Errorf("ActivatedAt = %v, want %v", binding.ActivatedAt, epoch)
	}

	reverse, found, err := store.GroupForRoom(ctx, roomID)
	if err != nil || !found || reverse != groupID {
		t.Fatalf("GroupForRoom = %s, %v, %v", reverse, found, err)
	}

	disabled, err := store.Disable(ctx, groupID)
	if err != nil || !disabled {
		t.Fatalf("Disable = %v, %v", disabled, err)
	}
	if _, found, _ := store.Binding(ctx, groupID); found {
		t.Error("Binding returned a disabled row")
	}
	if _, found, _ := store.GroupForRoom(ctx, roomID); found {
		t.Error("GroupForRoom returned a disabled row")
	}

	again, err := store.Disable(ctx, groupID)
	if err != nil || again {
		t.Errorf("second Disable = %v, %v, want false", again, err)
	}

	// Re-enabling keeps working and restores the reverse mapping.
	if err := store.Upsert(ctx, groupID, roomID, founder); err != nil {
		t.Fatalf("re-enable Upsert: %v", err)
	}
	if _, found, _ := store.GroupForRoom(ctx, roomID); !found {
		t.Error("GroupForRoom did not find the re-enabled binding")
	}
}

func TestUpsertOverwrites(t *testing.T) {
	store, fake := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	groupID := newGroup(t)
	firstRoom := ref.MustParseRoomID("!first:grid.example")
	secondRoom := ref.MustParseRoomID("!second:grid.example")
	firstActor := newGroup(t)
	secondActor := newGroup(t)

	if err := store.Upsert(ctx, groupID, firstRoom, firstActor); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	fake.Advance(time.Hour)
	if err := store.Upsert(ctx, groupID, secondRoom, secondActor); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	binding, _, err := store.Binding(ctx, groupID)
	if err != nil {
		t.Fatalf("Binding: %v", err)
	}
	if binding.RoomID != secondRoom || binding.ActivatedBy != secondActor {
		t.Errorf("binding = %+v", binding)
	}
	if !binding.ActivatedAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("ActivatedAt = %v", binding.ActivatedAt)
	}
	if _, found, _ := store.GroupForRoom(ctx, firstRoom); found {
		t.Error("old room still maps to the group")
	}
}

func TestUpsertRoomClaimed(t *testing.T) {
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	roomID := ref.MustParseRoomID("!shared:grid.example")
	owner := newGroup(t)
	intruder := newGroup(t)

	if err := store.Upsert(ctx, owner, roomID, owner); err != nil {
		t.Fatalf("Upsert owner: %v", err)
	}
	err := store.Upsert(ctx, intruder, roomID, intruder)
	if !errors.Is(err, ErrRoomClaimed) {
		t.Fatalf("Upsert intruder error = %v, want ErrRoomClaimed", err)
	}

	// Once the owner is disabled the room may be bound elsewhere.
	if _, err := store.Disable(ctx, owner); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := store.Upsert(ctx, intruder, roomID, intruder); err != nil {
		t.Fatalf("Upsert after disable: %v", err)
	}
	reverse, _, _ := store.GroupForRoom(ctx, roomID)
	if reverse != intruder {
		t.Errorf("GroupForRoom = %s, want %s", reverse, intruder)
	}
}

func TestConcurrentUpsertSameGroup(t *testing.T) {
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	groupID := newGroup(t)
	roomID := ref.MustParseRoomID("!race:grid.example")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Upsert(ctx, groupID, roomID, groupID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Upsert: %v", err)
		}
	}

	bindings, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bindings) != 1 {
		t.Errorf("List returned %d bindings, want 1", len(bindings))
	}
}

func TestListAndStats(t *testing.T) {
	store, fake := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	older := newGroup(t)
	newer := newGroup(t)
	gone := newGroup(t)
	for index, groupID := range []uuid.UUID{older, newer, gone} {
		room := ref.MustParseRoomID("!room" + string(rune('a'+index)) + ":grid.example")
		if err := store.Upsert(ctx, groupID, room, groupID); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		fake.Advance(time.Minute)
	}
	if _, err := store.Disable(ctx, gone); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := store.RecordMedia(ctx, binhash.Sum([]byte("png")), "mxc://grid.example/a"); err != nil {
		t.Fatalf("RecordMedia: %v", err)
	}

	bindings, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bindings) != 2 || bindings[0].GroupID != newer || bindings[1].GroupID != older {
		t.Errorf("List = %+v, want [newer, older]", bindings)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{Enabled: 2, Disabled: 1, Media: 1}) {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestMediaCache(t *testing.T) {
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "bridge.db"))
	ctx := context.Background()

	digest := binhash.Sum([]byte("\x89PNG one"))
	if _, found, err := store.MediaURI(ctx, digest); err != nil || found {
		t.Fatalf("MediaURI before record = %v, %v", found, err)
	}

	if err := store.RecordMedia(ctx, digest, "mxc://grid.example/one"); err != nil {
		t.Fatalf("RecordMedia: %v", err)
	}
	uri, found, err := store.MediaURI(ctx, digest)
	if err != nil || !found || uri != "mxc://grid.example/one" {
		t.Fatalf("MediaURI = %q, %v, %v", uri, found, err)
	}

	if err := store.RecordMedia(ctx, digest, "mxc://grid.example/two"); err != nil {
		t.Fatalf("RecordMedia replace: %v", err)
	}
	uri, _, _ = store.MediaURI(ctx, digest)
	if uri != "mxc://grid.example/two" {
		t.Errorf("MediaURI after replace = %q", uri)
	}
}

func TestBindingsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	groupID := newGroup(t)
	roomID := ref.MustParseRoomID("!durable:grid.example")

	first, err := Open(Config{Path: path, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Upsert(context.Background(), groupID, roomID, groupID); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, _ := openTestStore(t, path)
	binding, found, err := second.Binding(context.Background(), groupID)
	if err != nil || !found || binding.RoomID != roomID {
		t.Fatalf("Binding after reopen = %+v, %v, %v", binding, found, err)
	}
}
