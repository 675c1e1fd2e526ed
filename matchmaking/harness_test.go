// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/volleylegends/matchbot/lib/clock"
	"github.com/volleylegends/matchbot/matchmaking"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

var testEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	testHostCooldown = 5 * time.Minute
	testPairCooldown = 5 * time.Minute
	testTTL          = 3 * time.Minute
	testGrace        = 15 * time.Second
	testMaxSeats     = 4
)

type joinEvent struct {
	host, requester matchmaking.ActorID
	number          int
}

type memberEvent struct {
	channel matchmaking.ChannelID
	member  matchmaking.ActorID
}

type linkEvent struct {
	channel matchmaking.ChannelID
	sender  matchmaking.ActorID
	link    string
}

// recordingNotifier captures every announcement for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	sessions []matchmaking.HostSession
	joins    []joinEvent
	declines []joinEvent
	members  []memberEvent
	ended    []matchmaking.ChannelID
	links    []linkEvent
}

func (n *recordingNotifier) SessionCreated(_ context.Context, s matchmaking.HostSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, s)
}

func (n *recordingNotifier) JoinRequested(_ context.Context, host, requester matchmaking.ActorID, _ matchmaking.StatsRecord, number int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joins = append(n.joins, joinEvent{host, requester, number})
}

func (n *recordingNotifier) RequestDeclined(_ context.Context, host, requester matchmaking.ActorID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.declines = append(n.declines, joinEvent{host: host, requester: requester})
}

func (n *recordingNotifier) MemberJoined(_ context.Context, ch matchmaking.Channel, member matchmaking.ActorID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.members = append(n.members, memberEvent{ch.ID, member})
}

func (n *recordingNotifier) MatchEnded(_ context.Context, ch matchmaking.Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, ch.ID)
}

func (n *recordingNotifier) LinkShared(_ context.Context, ch matchmaking.Channel, sender matchmaking.ActorID, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, linkEvent{ch.ID, sender, link})
}

func (n *recordingNotifier) endedCount(id matchmaking.ChannelID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.ended {
		if e == id {
			count++
		}
	}
	return count
}

// fakeProvider provisions synthetic channel handles and records grants
// and teardowns.
type fakeProvider struct {
	mu        sync.Mutex
	next      int
	grants    map[matchmaking.ChannelHandle][]matchmaking.ActorID
	tornDown  []matchmaking.ChannelHandle
	failGrant bool

	// onCreate, when set, runs after a handle is provisioned but
	// before Create returns. Lets a test act between provisioning and
	// the store insert, the way another process sharing the database
	// would.
	onCreate func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{grants: make(map[matchmaking.ChannelHandle][]matchmaking.ActorID)}
}

func (p *fakeProvider) Create(_ context.Context, host matchmaking.ActorID, _ matchmaking.Mode) (matchmaking.ChannelHandle, error) {
	p.mu.Lock()
	p.next++
	handle := matchmaking.ChannelHandle(fmt.Sprintf("room-%s-%d", host, p.next))
	hook := p.onCreate
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return handle, nil
}

func (p *fakeProvider) Grant(_ context.Context, handle matchmaking.ChannelHandle, actor matchmaking.ActorID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGrant {
		return fmt.Errorf("platform refused the invite")
	}
	p.grants[handle] = append(p.grants[handle], actor)
	return nil
}

func (p *fakeProvider) Teardown(_ context.Context, handle matchmaking.ChannelHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tornDown = append(p.tornDown, handle)
	return nil
}

func (p *fakeProvider) teardownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tornDown)
}

func (p *fakeProvider) createCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// prefixValidator accepts links under a fixed base URL.
type prefixValidator struct{}

func (prefixValidator) Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "https://match.example/") {
		return "", fmt.Errorf("link must start with https://match.example/")
	}
	return trimmed, nil
}

// engine bundles a fully wired matchmaking stack over a fake clock and
// a file-backed store.
type engine struct {
	clock    *clock.FakeClock
	store    *store.Store
	gate     *matchmaking.CooldownGate
	registry *matchmaking.SessionRegistry
	channels *matchmaking.ChannelManager
	coord    *matchmaking.Coordinator
	notifier *recordingNotifier
	provider *fakeProvider
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:     filepath.Join(t.TempDir(), "matchbot.db"),
		PoolSize: 4,
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(testEpoch)
	notifier := &recordingNotifier{}
	provider := newFakeProvider()
	gate := matchmaking.NewCooldownGate(st, clk, nil)
	counter := matchmaking.NewRequestCounter(st)
	registry := matchmaking.NewSessionRegistry(st, clk, gate, counter, testHostCooldown)
	channels, err := matchmaking.NewChannelManager(matchmaking.ChannelManagerConfig{
		TTL:        testTTL,
		CloseGrace: testGrace,
		MaxSeats:   testMaxSeats,
		Store:      st,
		Clock:      clk,
		Provider:   provider,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("NewChannelManager: %v", err)
	}
	t.Cleanup(channels.Shutdown)
	coord := matchmaking.NewCoordinator(matchmaking.CoordinatorConfig{
		Registry:     registry,
		Channels:     channels,
		Gate:         gate,
		Counter:      counter,
		Notifier:     notifier,
		Links:        prefixValidator{},
		PairCooldown: testPairCooldown,
	})
	return &engine{
		clock:    clk,
		store:    st,
		gate:     gate,
		registry: registry,
		channels: channels,
		coord:    coord,
		notifier: notifier,
		provider: provider,
	}
}

var testProfile = matchmaking.StatsRecord{
	Gameplay:      "setter",
	Ability:       "intermediate",
	Region:        "eu-west",
	Communication: "voice",
}
