// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/bridgestore"
	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/messaging"
)

// ErrNotBridged is returned by operations that require an enabled
// binding for the group.
var ErrNotBridged = errors.New("bridge: group is not bridged")

// GroupDirectory answers roster and role power questions.
// *opensim.Directory implements it.
type GroupDirectory interface {
	Members(ctx context.Context, groupID uuid.UUID) ([]opensim.Member, error)
	MemberPower(ctx context.Context, groupID, memberID uuid.UUID) (uint64, bool, error)
	MaxPower(ctx context.Context, groupID uuid.UUID) (uint64, error)
	DisplayName(ctx context.Context, memberID uuid.UUID) (string, bool, error)
}

// RegionInjector delivers Matrix text into a group session.
// *opensim.RegionClient implements it.
type RegionInjector interface {
	Inject(ctx context.Context, request opensim.InjectRequest) error
}

// AvatarFetcher returns a member's profile image as PNG bytes, or an
// error wrapping opensim.ErrAvatarUnavailable. *opensim.AvatarSource
// implements it.
type AvatarFetcher interface {
	Fetch(ctx context.Context, memberID uuid.UUID) ([]byte, error)
}

// PowerPolicy is the power level layout of bridged rooms.
type PowerPolicy struct {
	// Elevated is granted to the bot, the founder, and members whose
	// role power is at least half the group maximum.
	Elevated int64
	// Floor is everyone else's explicit level.
	Floor int64

	StateDefault  int64
	UsersDefault  int64
	EventsDefault int64
	Invite        int64
	Kick          int64
	Ban           int64
	Redact        int64
}

// DefaultPowerPolicy returns the stock policy.
func DefaultPowerPolicy() PowerPolicy {
	return PowerPolicy{
		Elevated:      100,
		Floor:         0,
		StateDefault:  50,
		UsersDefault:  0,
		EventsDefault: 0,
		Invite:        50,
		Kick:          50,
		Ban:           75,
		Redact:        50,
	}
}

// Config holds the dependencies of a Bridge.
type Config struct {
	Namespace Namespace
	// Session is the appservice session acting as the bot.
	Session   *messaging.AppserviceSession
	Store     *bridgestore.Store
	Directory GroupDirectory
	Region    RegionInjector
	// Avatars may be nil, which disables avatar sync.
	Avatars AvatarFetcher
	Policy  PowerPolicy
	Logger  *slog.Logger
}

// Bridge is the relay engine. Safe for concurrent use.
type Bridge struct {
	namespace Namespace
	session   *messaging.AppserviceSession
	store     *bridgestore.Store
	directory GroupDirectory
	region    RegionInjector
	avatars   AvatarFetcher
	policy    PowerPolicy
	logger    *slog.Logger

	groupLocks keyedMutex
	stats      counters
}

// New returns a Bridge. Panics if a required dependency is missing.
func New(config Config) *Bridge {
	if config.Session == nil || config.Store == nil || config.Directory == nil || config.Region == nil {
		panic("bridge.New: Session, Store, Directory, and Region are required")
	}
	if config.Namespace.Bot().IsZero() {
		panic("bridge.New: Namespace is required")
	}
	if config.Session.Bot() != config.Namespace.Bot() {
		panic("bridge.New: session bot does not match the namespace bot")
	}
	if config.Policy.Elevated <= config.Policy.Floor {
		panic("bridge.New: Policy.Elevated must exceed Policy.Floor")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		namespace: config.Namespace,
		session:   config.Session,
		store:     config.Store,
		directory: config.Directory,
		region:    config.Region,
		avatars:   config.Avatars,
		policy:    config.Policy,
		logger:    logger,
	}
}

// Namespace returns the identifiers the bridge owns.
func (b *Bridge) Namespace() Namespace {
	return b.namespace
}

// keyedMutex hands out one lock per key. Entries are reference
// counted and removed when the last waiter leaves.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	held chan struct{}
	refs int
}

// Lock blocks until key is held or ctx is done. The returned function
// releases it.
func (k *keyedMutex) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{held: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
		return func() {
			<-entry.held
			k.leave(key, entry)
		}, nil
	case <-ctx.Done():
		k.leave(key, entry)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) leave(key uuid.UUID, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}
