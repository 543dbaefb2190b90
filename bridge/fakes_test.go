// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/bridgestore"
	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/testutil"
	"github.com/bureau-foundation/lighthouse/messaging"
)

const (
	testServerName = "grid.example"
	testASToken    = "as-token"
)

// fakeHomeserver is an in-memory appservice-facing homeserver. It
// enforces enough room semantics (membership, alias uniqueness,
// existing accounts) to exercise the idempotence paths.
type fakeHomeserver struct {
	t      *testing.T
	server *httptest.Server
	bot    string

	mu       sync.Mutex
	calls    []string
	users    map[string]*fakeProfile
	aliases  map[string]string
	rooms    map[string]*fakeRoom
	media    int
	roomSeq  int
	failures map[string]fakeFailure
	// beforeOp runs with the lock released before each operation.
	beforeOp func(op string)
}

type fakeProfile struct {
	displayName string
	avatarURL   string
}

type fakeRoom struct {
	request     messaging.CreateRoomRequest
	members     map[string]bool
	invited     map[string]bool
	powerLevels map[string]any
	messages    []fakeMessage
}

type fakeMessage struct {
	sender string
	body   string
	txnID  string
}

type fakeFailure struct {
	status  int
	errcode string
	// remaining failures; negative fails forever.
	remaining int
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	homeserver := &fakeHomeserver{
		t:        t,
		bot:      "@opensim_bot:" + testServerName,
		users:    map[string]*fakeProfile{},
		aliases:  map[string]string{},
		rooms:    map[string]*fakeRoom{},
		failures: map[string]fakeFailure{},
	}
	homeserver.users[homeserver.bot] = &fakeProfile{}
	homeserver.server = httptest.NewServer(http.HandlerFunc(homeserver.serve))
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

// fail makes the next count calls of op fail with errcode. A negative
// count fails every call.
func (h *fakeHomeserver) fail(op string, status int, errcode string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = fakeFailure{status: status, errcode: errcode, remaining: count}
}

func (h *fakeHomeserver) count(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, call := range h.calls {
		if call == op {
			total++
		}
	}
	return total
}

func (h *fakeHomeserver) totalCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHomeserver) room(roomID ref.RoomID) *fakeRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID.String()]
}

func (h *fakeHomeserver) profile(user ref.UserID) fakeProfile {
	h.mu.Lock()
	defer h.mu.Unlock()
	if profile, ok := h.users[user.String()]; ok {
		return *profile
	}
	return fakeProfile{}
}

func (h *fakeHomeserver) registered(user ref.UserID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.users[user.String()]
	return ok
}

// userLevel returns the explicit power level of user in room.
func (h *fakeHomeserver) userLevel(roomID ref.RoomID, user ref.UserID) (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID.String()]
	if room == nil {
		return 0, false
	}
	users, _ := room.powerLevels["users"].(map[string]any)
	level, ok := users[user.String()].(float64)
	return int64(level), ok
}

func (h *fakeHomeserver) onOp(hook func(op string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeOp = hook
}

func (h *fakeHomeserver) aliasTarget(alias ref.RoomAlias) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aliases[alias.String()]
}

// seedRoom creates a room under alias directly, as a previous bridge
// run would have.
func (h *fakeHomeserver) seedRoom(alias ref.RoomAlias) ref.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID := h.newRoomLocked(messaging.CreateRoomRequest{Alias: alias.Localpart()})
	h.aliases[alias.String()] = roomID
	return ref.MustParseRoomID(roomID)
}

func (h *fakeHomeserver) newRoomLocked(request messaging.CreateRoomRequest) string {
	h.roomSeq++
	roomID := fmt.Sprintf("!room%d:%s", h.roomSeq, testServerName)
	users := map[string]any{}
	if override, ok := request.PowerLevelContentOverride["users"].(map[string]int64); ok {
		for user, level := range override {
			users[user] = float64(level)
		}
	}
	powerLevels := map[string]any{
		"users":         users,
		"users_default": float64(0),
		"ban":           float64(50),
		"notifications": map[string]any{"room": float64(50)},
	}
	for key, value := range request.PowerLevelContentOverride {
		if key == "users" {
			continue
		}
		encoded, _ := json.Marshal(value)
		var decoded any
		json.Unmarshal(encoded, &decoded)
		powerLevels[key] = decoded
	}
	room := &fakeRoom{
		request:     request,
		members:     map[string]bool{h.bot: true},
		invited:     map[string]bool{},
		powerLevels: powerLevels,
	}
	for _, invitee := range request.Invite {
		room.invited[invitee] = true
	}
	h.rooms[roomID] = room
	return roomID
}

func (h *fakeHomeserver) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testASToken {
		writeMatrixError(w, http.StatusUnauthorized, messaging.ErrCodeUnknownToken)
		return
	}
	actor := r.URL.Query().Get("user_id")
	if actor == "" {
		actor = h.bot
	}

	op, args := route(r)
	if op == "" {
		h.t.Errorf("fake homeserver: unexpected %s %s", r.Method, r.URL.Path)
		writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeUnknown)
		return
	}

	h.mu.Lock()
	hook := h.beforeOp
	h.mu.Unlock()
	if hook != nil {
		hook(op)
	}

	body, _ := io.ReadAll(r.Body)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, op)

	if failure, ok := h.failures[op]; ok && failure.remaining != 0 {
		if failure.remaining > 0 {
			failure.remaining--
			h.failures[op] = failure
		}
		writeMatrixError(w, failure.status, failure.errcode)
		return
	}

	switch op {
	case "register":
		var request struct {
			Type     string `json:"type"`
			Username string `json:"username"`
		}
		json.Unmarshal(body, &request)
		if request.Type != messaging.LoginTypeAppservice {
			writeMatrixError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON)
			return
		}
		userID := "@" + request.Username + ":" + testServerName
		if _, exists := h.users[userID]; exists {
			writeMatrixError(w, http.StatusBadRequest, messaging.ErrCodeUserInUse)
			return
		}
		h.users[userID] = &fakeProfile{}
		writeJSONResponse(w, map[string]string{"user_id": userID})

	case "resolve":
		roomID, ok := h.aliases[args[0]]
		if !ok {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		writeJSONResponse(w, map[string]any{"room_id": roomID, "servers": []string{testServerName}})

	case "createRoom":
		var request messaging.CreateRoomRequest
		json.Unmarshal(body, &request)
		alias := "#" + request.Alias + ":" + testServerName
		if _, exists := h.aliases[alias]; exists {
			writeMatrixError(w, http.StatusBadRequest, messaging.ErrCodeRoomInUse)
			return
		}
		// The JSON round trip turns the override users into
		// map[string]any; restore the typed form newRoomLocked reads.
		if users, ok := request.PowerLevelContentOverride["users"].(map[string]any); ok {
			typed := map[string]int64{}
			for user, level := range users {
				typed[user] = int64(level.(float64))
			}
			request.PowerLevelContentOverride["users"] = typed
		}
		roomID := h.newRoomLocked(request)
		h.aliases[alias] = roomID
		writeJSONResponse(w, map[string]string{"room_id": roomID})

	case "invite":
		room := h.rooms[args[0]]
		if room == nil {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		var request struct {
			UserID string `json:"user_id"`
		}
		json.Unmarshal(body, &request)
		if room.members[request.UserID] {
			writeMatrixError(w, http.StatusForbidden, messaging.ErrCodeForbidden)
			return
		}
		room.invited[request.UserID] = true
		writeJSONResponse(w, map[string]string{})

	case "join":
		room := h.rooms[args[0]]
		if room == nil {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		if !room.members[actor] && !room.invited[actor] {
			writeMatrixError(w, http.StatusForbidden, messaging.ErrCodeForbidden)
			return
		}
		delete(room.invited, actor)
		room.members[actor] = true
		writeJSONResponse(w, map[string]string{"room_id": args[0]})

	case "get_displayname", "get_avatar_url":
		profile, ok := h.users[args[0]]
		if !ok {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		if op == "get_displayname" {
			writeJSONResponse(w, map[string]string{"displayname": profile.displayName})
		} else {
			writeJSONResponse(w, map[string]string{"avatar_url": profile.avatarURL})
		}

	case "set_displayname", "set_avatar_url":
		profile, ok := h.users[args[0]]
		if !ok || args[0] != actor {
			writeMatrixError(w, http.StatusForbidden, messaging.ErrCodeForbidden)
			return
		}
		var request struct {
			DisplayName string `json:"displayname"`
			AvatarURL   string `json:"avatar_url"`
		}
		json.Unmarshal(body, &request)
		if op == "set_displayname" {
			profile.displayName = request.DisplayName
		} else {
			profile.avatarURL = request.AvatarURL
		}
		writeJSONResponse(w, map[string]string{})

	case "upload":
		h.media++
		writeJSONResponse(w, map[string]string{"content_uri": fmt.Sprintf("mxc://%s/media%d", testServerName, h.media)})

	case "get_power_levels":
		room := h.rooms[args[0]]
		if room == nil {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		writeJSONResponse(w, room.powerLevels)

	case "set_power_levels":
		room := h.rooms[args[0]]
		if room == nil {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound)
			return
		}
		var levels map[string]any
		if err := json.Unmarshal(body, &levels); err != nil {
			writeMatrixError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON)
			return
		}
		room.powerLevels = levels
		writeJSONResponse(w, map[string]string{"event_id": "$power"})

	case "send":
		room := h.rooms[args[0]]
		if room == nil || !room.members[actor] {
			writeMatrixError(w, http.StatusForbidden, messaging.ErrCodeForbidden)
			return
		}
		var content messaging.MessageContent
		json.Unmarshal(body, &content)
		room.messages = append(room.messages, fakeMessage{sender: actor, body: content.Body, txnID: args[1]})
		writeJSONResponse(w, map[string]string{"event_id": fmt.Sprintf("$event%d", len(room.messages))})
	}
}

// route maps a request onto an operation name and its path arguments.
func route(r *http.Request) (string, []string) {
	path := r.URL.Path
	const client = "/_matrix/client/v3"
	switch {
	case r.Method == "POST" && path == client+"/register":
		return "register", nil
	case r.Method == "GET" && strings.HasPrefix(path, client+"/directory/room/"):
		return "resolve", []string{strings.TrimPrefix(path, client+"/directory/room/")}
	case r.Method == "POST" && path == client+"/createRoom":
		return "createRoom", nil
	case r.Method == "POST" && path == "/_matrix/media/v3/upload":
		return "upload", nil
	case strings.HasPrefix(path, client+"/profile/"):
		rest := strings.TrimPrefix(path, client+"/profile/")
		user, field, _ := strings.Cut(rest, "/")
		prefix := "get_"
		if r.Method == "PUT" {
			prefix = "set_"
		}
		return prefix + field, []string{user}
	case strings.HasPrefix(path, client+"/rooms/"):
		parts := strings.Split(strings.TrimPrefix(path, client+"/rooms/"), "/")
		roomID := parts[0]
		switch {
		case len(parts) == 2 && parts[1] == "invite":
			return "invite", []string{roomID}
		case len(parts) == 2 && parts[1] == "join":
			return "join", []string{roomID}
		case len(parts) >= 3 && parts[1] == "state" && parts[2] == "m.room.power_levels":
			if r.Method == "PUT" {
				return "set_power_levels", []string{roomID}
			}
			return "get_power_levels", []string{roomID}
		case len(parts) == 4 && parts[1] == "send" && r.Method == "PUT":
			return "send", []string{roomID, parts[3]}
		}
	}
	return "", nil
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeMatrixError(w http.ResponseWriter, status int, errcode string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"errcode": errcode, "error": "fake " + errcode})
}

// fakeDirectory is an in-memory group roster.
type fakeDirectory struct {
	mu      sync.Mutex
	members map[uuid.UUID][]opensim.Member
	powers  map[uuid.UUID]map[uuid.UUID]uint64
	names   map[uuid.UUID]string
	err     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members: map[uuid.UUID][]opensim.Member{},
		powers:  map[uuid.UUID]map[uuid.UUID]uint64{},
		names:   map[uuid.UUID]string{},
	}
}

func (d *fakeDirectory) addMember(group, member uuid.UUID, name string, power uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[group] = append(d.members[group], opensim.Member{ID: member, Name: name})
	if d.powers[group] == nil {
		d.powers[group] = map[uuid.UUID]uint64{}
	}
	d.powers[group][member] = power
}

func (d *fakeDirectory) Members(_ context.Context, group uuid.UUID) ([]opensim.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]opensim.Member(nil), d.members[group]...), nil
}

func (d *fakeDirectory) MemberPower(_ context.Context, group, member uuid.UUID) (uint64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, false, d.err
	}
	power, ok := d.powers[group][member]
	return power, ok, nil
}

func (d *fakeDirectory) MaxPower(_ context.Context, group uuid.UUID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	var highest uint64
	for _, power := range d.powers[group] {
		highest = max(highest, power)
	}
	return highest, nil
}

func (d *fakeDirectory) DisplayName(_ context.Context, member uuid.UUID) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.names[member]
	return name, ok, nil
}

// fakeRegion records injected messages.
type fakeRegion struct {
	mu       sync.Mutex
	requests []opensim.InjectRequest
	failOn   func(opensim.InjectRequest) error
}

func (r *fakeRegion) Inject(_ context.Context, request opensim.InjectRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		if err := r.failOn(request); err != nil {
			return err
		}
	}
	r.requests = append(r.requests, request)
	return nil
}

func (r *fakeRegion) injected() []opensim.InjectRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]opensim.InjectRequest(nil), r.requests...)
}

// fakeAvatars serves fixed images per member.
type fakeAvatars struct {
	mu      sync.Mutex
	images  map[uuid.UUID][]byte
	fetches int
}

func (a *fakeAvatars) Fetch(_ context.Context, member uuid.UUID) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches++
	image, ok := a.images[member]
	if !ok {
		return nil, fmt.Errorf("%w: no image for %s", opensim.ErrAvatarUnavailable, member)
	}
	return image, nil
}

type testBridge struct {
	*Bridge
	homeserver *fakeHomeserver
	directory  *fakeDirectory
	region     *fakeRegion
	avatars    *fakeAvatars
	store      *bridgestore.Store
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	logger := testutil.Logger(t)
	homeserver := newFakeHomeserver(t)

	namespace, err := NewNamespace(ref.MustParseServerName(testServerName), "opensim_bot", "os_")
	if err != nil {
		t.Fatalf("NewNamespace: %v", err)
	}
	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: homeserver.server.URL, Logger: logger})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	token, err := secret.NewFromString(testASToken)
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	t.Cleanup(func() { token.Close() })

	store, err := bridgestore.Open(bridgestore.Config{
		Path:   filepath.Join(t.TempDir(), "bridge.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("bridgestore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	directory := newFakeDirectory()
	region := &fakeRegion{}
	avatars := &fakeAvatars{images: map[uuid.UUID][]byte{}}

	bridge := New(Config{
		Namespace: namespace,
		Session:   client.Appservice(token, namespace.Bot()),
		Store:     store,
		Directory: directory,
		Region:    region,
		Avatars:   avatars,
		Policy:    DefaultPowerPolicy(),
		Logger:    logger,
	})
	return &testBridge{
		Bridge:     bridge,
		homeserver: homeserver,
		directory:  directory,
		region:     region,
		avatars:    avatars,
		store:      store,
	}
}

func newMember() uuid.UUID {
	return uuid.MustParse(testutil.UniqueUUID())
}

// enableGroup bridges a fresh group whose founder is a member with the
// given power, returning group and founder IDs and the room.
func (tb *testBridge) enableGroup(t *testing.T, founderPower uint64) (uuid.UUID, uuid.UUID, ref.RoomID) {
	t.Helper()
	group := newMember()
	founder := newMember()
	tb.directory.addMember(group, founder, "Founder Resident", founderPower)
	roomID, err := tb.EnsureRoom(context.Background(), group, "Builders", founder)
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	return group, founder, roomID
}
