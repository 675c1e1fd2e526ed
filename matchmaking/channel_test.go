// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/volleylegends/matchbot/matchmaking"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

func TestEnsureIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	first, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Ensure minted a second channel: %s then %s", first.ID, second.ID)
	}
	if first.State != matchmaking.ChannelOpen {
		t.Errorf("state = %s, want open", first.State)
	}
	if len(first.Members) != 1 || first.Members[0] != "alice" {
		t.Errorf("members = %v, want the host alone", first.Members)
	}
}

func TestEnsureConcurrent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	const racers = 8
	ids := make(chan matchmaking.ChannelID, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
			if err != nil {
				t.Errorf("Ensure: %v", err)
				return
			}
			ids <- ch.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first matchmaking.ChannelID
	for id := range ids {
		if first == "" {
			first = id
		} else if id != first {
			t.Errorf("concurrent Ensure minted %s and %s", first, id)
		}
	}
	if n := e.provider.createCount(); n != 1 {
		t.Errorf("provider Create called %d times, want 1", n)
	}
	if n := e.provider.teardownCount(); n != 0 {
		t.Errorf("teardowns = %d, want 0", n)
	}
	live, err := e.store.ListLiveChannels(ctx)
	if err != nil {
		t.Fatalf("ListLiveChannels: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("live channels = %d, want 1", len(live))
	}
}

func TestEnsureAdoptsConcurrentWinner(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Another writer claims the live slot between our provisioning and
	// the store insert.
	const winnerID = "winner-channel"
	e.provider.onCreate = func() {
		created, err := e.store.CreateChannel(ctx, store.ChannelRow{
			ChannelID: winnerID,
			HostID:    "alice",
			Handle:    "room-external",
			CreatedAt: e.clock.Now(),
		})
		if err != nil || !created {
			t.Fatalf("seeding winning channel: created=%v err=%v", created, err)
		}
	}

	ch, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if string(ch.ID) != winnerID {
		t.Errorf("Ensure returned %s, want the winning channel %s", ch.ID, winnerID)
	}

	// The losing handle is discarded, and only the winner stays live.
	if n := e.provider.teardownCount(); n != 1 {
		t.Errorf("teardowns = %d, want the losing handle discarded", n)
	}
	live, err := e.store.ListLiveChannels(ctx)
	if err != nil {
		t.Fatalf("ListLiveChannels: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("live channels = %d, want 1", len(live))
	}
}

func TestChannelTTLExpiryAndGraceClose(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ch, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	// Just short of the TTL the channel is still open.
	e.clock.Advance(testTTL - time.Second)
	live, found, _ := e.channels.Live(ctx, "alice")
	if !found || live.State != matchmaking.ChannelOpen {
		t.Fatalf("before TTL: found=%v state=%s, want open", found, live.State)
	}

	// Crossing the TTL expires it and announces the end exactly once.
	e.clock.Advance(time.Second)
	live, found, _ = e.channels.Live(ctx, "alice")
	if !found || live.State != matchmaking.ChannelExpired {
		t.Fatalf("after TTL: found=%v state=%s, want expired", found, live.State)
	}
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times, want 1", n)
	}

	// Expired channels reject joins.
	if _, err := e.channels.AddMember(ctx, "alice", "bob"); !errors.Is(err, matchmaking.ErrChannelExpired) {
		t.Errorf("AddMember on expired channel = %v, want ErrChannelExpired", err)
	}

	// The grace period lapses and the channel is torn down.
	e.clock.Advance(testGrace)
	if _, found, _ := e.channels.Live(ctx, "alice"); found {
		t.Error("channel still live after grace close")
	}
	if n := e.provider.teardownCount(); n != 1 {
		t.Errorf("teardowns = %d, want 1", n)
	}
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times after close, want still 1", n)
	}
}

func TestFinishCancelsTTL(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ch, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := e.channels.Finish(ctx, "alice"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if _, found, _ := e.channels.Live(ctx, "alice"); found {
		t.Fatal("channel still live after Finish")
	}
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times, want 1", n)
	}
	if n := e.provider.teardownCount(); n != 1 {
		t.Errorf("teardowns = %d, want 1", n)
	}

	// The orphaned TTL and grace timers must not resurrect anything.
	e.clock.Advance(testTTL + testGrace + time.Minute)
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times after timers lapsed, want still 1", n)
	}
	if n := e.provider.teardownCount(); n != 1 {
		t.Errorf("teardowns = %d after timers lapsed, want still 1", n)
	}
}

func TestFinishFreesSlotForNewChannel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	first, _ := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	e.channels.Finish(ctx, "alice")

	second, err := e.channels.Ensure(ctx, "alice", matchmaking.ModeThrees)
	if err != nil {
		t.Fatalf("Ensure after Finish: %v", err)
	}
	if second.ID == first.ID {
		t.Error("reopened channel reused the old identity")
	}

	// The new channel runs its own full TTL.
	e.clock.Advance(testTTL - time.Second)
	live, found, _ := e.channels.Live(ctx, "alice")
	if !found || live.State != matchmaking.ChannelOpen {
		t.Errorf("new channel state = found=%v %s, want open", found, live.State)
	}
}

func TestSeatCapRejectsWithoutMutating(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	for _, guest := range []matchmaking.ActorID{"bob", "carol"} {
		if _, err := e.channels.AddMember(ctx, "alice", guest); err != nil {
			t.Fatalf("AddMember(%s): %v", guest, err)
		}
	}
	ch, err := e.channels.AddMember(ctx, "alice", "dave")
	if err != nil {
		t.Fatalf("AddMember(dave): %v", err)
	}
	if len(ch.Members) != testMaxSeats {
		t.Fatalf("members = %d, want the cap %d", len(ch.Members), testMaxSeats)
	}

	if _, err := e.channels.AddMember(ctx, "alice", "erin"); !errors.Is(err, matchmaking.ErrSeatsFull) {
		t.Fatalf("AddMember over cap = %v, want ErrSeatsFull", err)
	}
	live, _, _ := e.channels.Live(ctx, "alice")
	if len(live.Members) != testMaxSeats {
		t.Errorf("rejected join mutated membership: %v", live.Members)
	}
	for _, m := range live.Members {
		if m == "erin" {
			t.Error("rejected member is in the channel")
		}
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	e.channels.AddMember(ctx, "alice", "bob")
	ch, err := e.channels.AddMember(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("repeat AddMember: %v", err)
	}
	if len(ch.Members) != 2 {
		t.Errorf("members = %v, want [alice bob]", ch.Members)
	}
}

func TestFailedGrantRollsBackMembership(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	e.provider.failGrant = true
	if _, err := e.channels.AddMember(ctx, "alice", "bob"); err == nil {
		t.Fatal("AddMember succeeded despite failed grant")
	}
	live, _, _ := e.channels.Live(ctx, "alice")
	if len(live.Members) != 1 {
		t.Errorf("members after failed grant = %v, want the host alone", live.Members)
	}

	// The seat is still claimable once the platform recovers.
	e.provider.failGrant = false
	if _, err := e.channels.AddMember(ctx, "alice", "bob"); err != nil {
		t.Fatalf("AddMember after recovery: %v", err)
	}
}

func TestAddMemberWithoutChannel(t *testing.T) {
	e := newEngine(t)
	if _, err := e.channels.AddMember(context.Background(), "alice", "bob"); !errors.Is(err, matchmaking.ErrNoChannel) {
		t.Errorf("AddMember with no channel = %v, want ErrNoChannel", err)
	}
}

func TestRestoreRearmsOpenChannel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ch, _ := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	e.clock.Advance(time.Minute)

	// Simulate a restart: drop the timers, then restore from the store.
	e.channels.Shutdown()
	if err := e.channels.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// Only the remaining two minutes of TTL are left.
	e.clock.Advance(testTTL - time.Minute)
	live, found, _ := e.channels.Live(ctx, "alice")
	if !found || live.State != matchmaking.ChannelExpired {
		t.Fatalf("after restored TTL: found=%v state=%s, want expired", found, live.State)
	}
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times, want 1", n)
	}
}

func TestRestoreExpiresLapsedChannel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ch, _ := e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)

	// The process goes down and stays down past the whole TTL. Restore
	// must expire the channel inline and return, not wait on a timer.
	e.channels.Shutdown()
	e.clock.Advance(testTTL + time.Minute)
	if err := e.channels.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	live, found, _ := e.channels.Live(ctx, "alice")
	if !found || live.State != matchmaking.ChannelExpired {
		t.Fatalf("after restore: found=%v state=%s, want expired", found, live.State)
	}
	if n := e.notifier.endedCount(ch.ID); n != 1 {
		t.Errorf("MatchEnded fired %d times, want 1", n)
	}

	// The lapsed channel still gets a full grace window before close.
	e.clock.Advance(testGrace - time.Second)
	if _, found, _ := e.channels.Live(ctx, "alice"); !found {
		t.Fatal("channel closed before the grace period lapsed")
	}
	e.clock.Advance(time.Second)
	if _, found, _ := e.channels.Live(ctx, "alice"); found {
		t.Error("lapsed channel survived the grace period")
	}
	if n := e.provider.teardownCount(); n != 1 {
		t.Errorf("teardowns = %d, want 1", n)
	}
}

func TestRestoreClosesExpiredChannel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.channels.Ensure(ctx, "alice", matchmaking.ModeTwos)
	e.clock.Advance(testTTL)
	live, _, _ := e.channels.Live(ctx, "alice")
	if live.State != matchmaking.ChannelExpired {
		t.Fatalf("state = %s, want expired", live.State)
	}

	// Restart during the grace period: the restored channel gets a
	// fresh grace window, then closes.
	e.channels.Shutdown()
	if err := e.channels.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	e.clock.Advance(testGrace)
	if _, found, _ := e.channels.Live(ctx, "alice"); found {
		t.Error("expired channel survived the restored grace period")
	}
}
