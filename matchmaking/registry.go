// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/volleylegends/matchbot/lib/clock"
	"github.com/volleylegends/matchbot/lib/codec"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

// Profile snapshot roles. A participant keeps one snapshot per role so
// their last host profile and last player profile are remembered
// independently.
const (
	RoleHost   = "host"
	RolePlayer = "player"
)

// SessionRegistry tracks open host sessions. Each host has at most one;
// opening again supersedes the previous session without ceremony.
type SessionRegistry struct {
	store        *store.Store
	clock        clock.Clock
	gate         *CooldownGate
	counter      *RequestCounter
	hostCooldown time.Duration
}

// NewSessionRegistry builds a registry. The gate enforces the host
// cooldown; the counter is reset whenever a session opens.
func NewSessionRegistry(st *store.Store, clk clock.Clock, gate *CooldownGate, counter *RequestCounter, hostCooldown time.Duration) *SessionRegistry {
	return &SessionRegistry{
		store:        st,
		clock:        clk,
		gate:         gate,
		counter:      counter,
		hostCooldown: hostCooldown,
	}
}

// Open starts a recruiting session for the host. The host cooldown is
// checked first and nothing is written if it rejects. On success the
// session is stored, the host's profile snapshot is updated, the
// request counter resets, and the host's cooldown window restarts.
func (r *SessionRegistry) Open(ctx context.Context, host ActorID, mode Mode, profile StatsRecord) (HostSession, error) {
	if err := r.gate.Check(ctx, HostKey(host), r.hostCooldown); err != nil {
		return HostSession{}, err
	}

	session := HostSession{
		Host:      host,
		Mode:      mode,
		Profile:   profile,
		CreatedAt: r.clock.Now(),
	}
	blob, err := codec.Marshal(profile)
	if err != nil {
		return HostSession{}, fmt.Errorf("encoding profile for %s: %w", host, err)
	}
	err = r.store.PutSession(ctx, store.SessionRow{
		HostID:    string(host),
		Profile:   blob,
		Mode:      string(mode),
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return HostSession{}, fmt.Errorf("storing session for %s: %w", host, err)
	}
	if err := r.SnapshotProfile(ctx, host, RoleHost, profile); err != nil {
		return HostSession{}, err
	}
	if err := r.counter.Reset(ctx, host); err != nil {
		return HostSession{}, err
	}
	if err := r.gate.Touch(ctx, HostKey(host)); err != nil {
		return HostSession{}, err
	}
	return session, nil
}

// Lookup returns the host's open session, or ErrNoSession.
func (r *SessionRegistry) Lookup(ctx context.Context, host ActorID) (HostSession, error) {
	row, found, err := r.store.GetSession(ctx, string(host))
	if err != nil {
		return HostSession{}, fmt.Errorf("loading session for %s: %w", host, err)
	}
	if !found {
		return HostSession{}, fmt.Errorf("looking up %s: %w", host, ErrNoSession)
	}
	var profile StatsRecord
	if err := codec.Unmarshal(row.Profile, &profile); err != nil {
		return HostSession{}, fmt.Errorf("decoding profile for %s: %w", host, err)
	}
	mode, err := ParseMode(row.Mode)
	if err != nil {
		return HostSession{}, fmt.Errorf("loading session for %s: %w", host, err)
	}
	return HostSession{
		Host:      host,
		Mode:      mode,
		Profile:   profile,
		CreatedAt: row.CreatedAt,
	}, nil
}

// SnapshotProfile remembers the actor's stats under the given role so
// later flows can offer them as a starting point.
func (r *SessionRegistry) SnapshotProfile(ctx context.Context, actor ActorID, role string, profile StatsRecord) error {
	blob, err := codec.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding %s profile for %s: %w", role, actor, err)
	}
	if err := r.store.PutProfile(ctx, string(actor), role, blob, r.clock.Now()); err != nil {
		return fmt.Errorf("storing %s profile for %s: %w", role, actor, err)
	}
	return nil
}

// LastProfile returns the actor's previous snapshot under the given
// role. found is false when the actor has never had that role.
func (r *SessionRegistry) LastProfile(ctx context.Context, actor ActorID, role string) (StatsRecord, bool, error) {
	blob, found, err := r.store.GetProfile(ctx, string(actor), role)
	if err != nil {
		return StatsRecord{}, false, fmt.Errorf("loading %s profile for %s: %w", role, actor, err)
	}
	if !found {
		return StatsRecord{}, false, nil
	}
	var profile StatsRecord
	if err := codec.Unmarshal(blob, &profile); err != nil {
		return StatsRecord{}, false, fmt.Errorf("decoding %s profile for %s: %w", role, actor, err)
	}
	return profile, true, nil
}
