// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/volleylegends/matchbot/lib/clock"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

// timerBudget bounds the store and provider work done from a timer
// callback, which has no caller to inherit a context from.
const timerBudget = 30 * time.Second

// ChannelManagerConfig configures a ChannelManager. TTL and CloseGrace
// must be positive; MaxSeats counts the host.
type ChannelManagerConfig struct {
	TTL        time.Duration
	CloseGrace time.Duration
	MaxSeats   int

	Store    *store.Store
	Clock    clock.Clock
	Provider ChannelProvider
	Notifier Notifier
	Logger   *slog.Logger
}

// ChannelManager owns the channel lifecycle: creation against the one
// live channel per host rule, the seat cap, TTL expiry, and the grace
// period close. Operations for the same host are serialized; different
// hosts proceed concurrently.
type ChannelManager struct {
	cfg ChannelManagerConfig

	mu        sync.Mutex
	hostLocks map[ActorID]*sync.Mutex
	timers    map[ChannelID]*channelTimers
}

type channelTimers struct {
	host  ActorID
	ttl   *clock.Timer
	grace *clock.Timer
}

// NewChannelManager builds a manager. A nil Logger discards.
func NewChannelManager(cfg ChannelManagerConfig) (*ChannelManager, error) {
	if cfg.TTL <= 0 || cfg.CloseGrace <= 0 {
		return nil, fmt.Errorf("matchmaking: TTL and close grace must be positive")
	}
	if cfg.MaxSeats < 2 {
		return nil, fmt.Errorf("matchmaking: max seats %d leaves no room for a guest", cfg.MaxSeats)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &ChannelManager{
		cfg:       cfg,
		hostLocks: make(map[ActorID]*sync.Mutex),
		timers:    make(map[ChannelID]*channelTimers),
	}, nil
}

// hostLock returns the serialization lock for a host, creating it on
// first use. Locks are never removed; the population is bounded by the
// set of hosts ever seen.
func (m *ChannelManager) hostLock(host ActorID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.hostLocks[host]
	if !ok {
		l = new(sync.Mutex)
		m.hostLocks[host] = l
	}
	return l
}

// Ensure returns the host's live channel, creating one if none exists.
// The store's live-slot constraint is the arbiter, so even a create
// racing an out-of-band insert resolves to a single channel.
func (m *ChannelManager) Ensure(ctx context.Context, host ActorID, mode Mode) (Channel, error) {
	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	row, found, err := m.cfg.Store.GetLiveChannel(ctx, string(host))
	if err != nil {
		return Channel{}, fmt.Errorf("loading live channel for %s: %w", host, err)
	}
	if found {
		return channelFromRow(row), nil
	}

	handle, err := m.cfg.Provider.Create(ctx, host, mode)
	if err != nil {
		return Channel{}, fmt.Errorf("provisioning channel for %s: %w", host, err)
	}
	id := ChannelID(uuid.NewString())
	createdAt := m.cfg.Clock.Now()
	created, err := m.cfg.Store.CreateChannel(ctx, store.ChannelRow{
		ChannelID: string(id),
		HostID:    string(host),
		Handle:    string(handle),
		CreatedAt: createdAt,
	})
	if err != nil {
		m.teardownQuietly(handle)
		return Channel{}, fmt.Errorf("recording channel for %s: %w", host, err)
	}
	if !created {
		// Lost the slot to a concurrent writer. Discard ours and
		// adopt the winner.
		m.teardownQuietly(handle)
		row, found, err := m.cfg.Store.GetLiveChannel(ctx, string(host))
		if err != nil || !found {
			return Channel{}, fmt.Errorf("loading winning channel for %s: %w", host, err)
		}
		return channelFromRow(row), nil
	}

	m.armTTL(id, host, m.cfg.TTL)
	m.cfg.Logger.Info("channel opened",
		"channel_id", id, "host", host, "handle", handle, "ttl", m.cfg.TTL)
	return Channel{
		ID:        id,
		Host:      host,
		Handle:    handle,
		State:     ChannelOpen,
		Members:   []ActorID{host},
		CreatedAt: createdAt,
	}, nil
}

// AddMember seats the actor in the host's live channel. Every check
// runs before any write: an expired or closed channel and a full
// channel all reject without mutating anything. Granting access is
// compensated if the platform refuses, so store membership never
// outruns real access.
func (m *ChannelManager) AddMember(ctx context.Context, host, actor ActorID) (Channel, error) {
	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	row, found, err := m.cfg.Store.GetLiveChannel(ctx, string(host))
	if err != nil {
		return Channel{}, fmt.Errorf("loading live channel for %s: %w", host, err)
	}
	if !found {
		return Channel{}, fmt.Errorf("seating %s with %s: %w", actor, host, ErrNoChannel)
	}
	ch := channelFromRow(row)
	switch ch.State {
	case ChannelExpired:
		return Channel{}, fmt.Errorf("seating %s in %s: %w", actor, ch.ID, ErrChannelExpired)
	case ChannelClosed:
		return Channel{}, fmt.Errorf("seating %s in %s: %w", actor, ch.ID, ErrChannelClosed)
	}
	for _, member := range ch.Members {
		if member == actor {
			return ch, nil
		}
	}
	if len(ch.Members) >= m.cfg.MaxSeats {
		return Channel{}, fmt.Errorf("seating %s in %s: %w", actor, ch.ID, ErrSeatsFull)
	}

	if err := m.cfg.Store.AddChannelMember(ctx, string(ch.ID), string(actor), m.cfg.Clock.Now()); err != nil {
		return Channel{}, fmt.Errorf("recording member %s in %s: %w", actor, ch.ID, err)
	}
	if err := m.cfg.Provider.Grant(ctx, ch.Handle, actor); err != nil {
		if rmErr := m.cfg.Store.RemoveChannelMember(ctx, string(ch.ID), string(actor)); rmErr != nil {
			m.cfg.Logger.Error("orphaned member record after failed grant",
				"channel_id", ch.ID, "actor", actor, "error", rmErr)
		}
		return Channel{}, fmt.Errorf("granting %s access to %s: %w", actor, ch.ID, err)
	}
	ch.Members = append(ch.Members, actor)
	m.cfg.Logger.Info("member seated",
		"channel_id", ch.ID, "actor", actor, "seats", len(ch.Members), "cap", m.cfg.MaxSeats)
	return ch, nil
}

// Live returns the host's non-closed channel, if any. Read-only; it
// does not take the host lock.
func (m *ChannelManager) Live(ctx context.Context, host ActorID) (Channel, bool, error) {
	row, found, err := m.cfg.Store.GetLiveChannel(ctx, string(host))
	if err != nil {
		return Channel{}, false, fmt.Errorf("loading live channel for %s: %w", host, err)
	}
	if !found {
		return Channel{}, false, nil
	}
	return channelFromRow(row), true, nil
}

// Finish ends the host's live channel immediately: the match-ended
// announcement goes out and the channel closes without waiting for the
// grace period. Finishing an already expired channel just closes it.
func (m *ChannelManager) Finish(ctx context.Context, host ActorID) error {
	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	row, found, err := m.cfg.Store.GetLiveChannel(ctx, string(host))
	if err != nil {
		return fmt.Errorf("loading live channel for %s: %w", host, err)
	}
	if !found {
		return fmt.Errorf("finishing for %s: %w", host, ErrNoChannel)
	}
	ch := channelFromRow(row)
	if ch.State == ChannelOpen {
		if err := m.expireLocked(ctx, ch); err != nil {
			return err
		}
		ch.State = ChannelExpired
	}
	return m.closeLocked(ctx, ch)
}

// Restore re-arms timers for channels that were live when the process
// last stopped. Open channels get the remainder of their TTL, or
// expire at once if it already lapsed; expired channels get a fresh
// grace period.
func (m *ChannelManager) Restore(ctx context.Context) error {
	rows, err := m.cfg.Store.ListLiveChannels(ctx)
	if err != nil {
		return fmt.Errorf("listing live channels: %w", err)
	}
	now := m.cfg.Clock.Now()
	for _, row := range rows {
		ch := channelFromRow(row)
		switch ch.State {
		case ChannelOpen:
			remaining := ch.CreatedAt.Add(m.cfg.TTL).Sub(now)
			if remaining <= 0 {
				// Already lapsed while the process was down. Expire
				// inline, no AfterFunc(d<=0): a fake clock runs those
				// callbacks synchronously, and armTTL holds m.mu.
				if err := m.expireNow(ctx, ch.ID, ch.Host); err != nil {
					return err
				}
				m.cfg.Logger.Info("lapsed channel restored",
					"channel_id", ch.ID, "host", ch.Host, "grace", m.cfg.CloseGrace)
				continue
			}
			m.armTTL(ch.ID, ch.Host, remaining)
			m.cfg.Logger.Info("channel restored",
				"channel_id", ch.ID, "host", ch.Host, "ttl_remaining", remaining)
		case ChannelExpired:
			m.armGrace(ch.ID, ch.Host)
			m.cfg.Logger.Info("expired channel restored",
				"channel_id", ch.ID, "host", ch.Host, "grace", m.cfg.CloseGrace)
		}
	}
	return nil
}

// Shutdown cancels every pending timer. Channel state stays in the
// store for Restore to pick up on the next start.
func (m *ChannelManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		if t.ttl != nil {
			t.ttl.Stop()
		}
		if t.grace != nil {
			t.grace.Stop()
		}
		delete(m.timers, id)
	}
}

func (m *ChannelManager) armTTL(id ChannelID, host ActorID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[id] = &channelTimers{
		host: host,
		ttl: m.cfg.Clock.AfterFunc(d, func() {
			m.onTTL(id, host)
		}),
	}
}

func (m *ChannelManager) armGrace(id ChannelID, host ActorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	if !ok {
		t = &channelTimers{host: host}
		m.timers[id] = t
	}
	t.grace = m.cfg.Clock.AfterFunc(m.cfg.CloseGrace, func() {
		m.onGrace(id, host)
	})
}

// dropTimers cancels and forgets the channel's timers. Called once the
// channel reaches its terminal state.
func (m *ChannelManager) dropTimers(id ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	if !ok {
		return
	}
	if t.ttl != nil {
		t.ttl.Stop()
	}
	if t.grace != nil {
		t.grace.Stop()
	}
	delete(m.timers, id)
}

// onTTL fires when an open channel's TTL lapses.
func (m *ChannelManager) onTTL(id ChannelID, host ActorID) {
	ctx, cancel := context.WithTimeout(context.Background(), timerBudget)
	defer cancel()
	if err := m.expireNow(ctx, id, host); err != nil {
		m.cfg.Logger.Error("expiry failed", "channel_id", id, "error", err)
	}
}

// expireNow expires the channel and arms the grace timer. The state is
// re-checked under the host lock: a channel finished or closed since
// the caller last saw it is left alone.
func (m *ChannelManager) expireNow(ctx context.Context, id ChannelID, host ActorID) error {
	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	row, found, err := m.cfg.Store.GetChannel(ctx, string(id))
	if err != nil {
		return fmt.Errorf("expiry check for %s: %w", id, err)
	}
	if !found || row.State != string(ChannelOpen) {
		return nil
	}
	if err := m.expireLocked(ctx, channelFromRow(row)); err != nil {
		return err
	}
	m.armGrace(id, host)
	return nil
}

// onGrace fires when an expired channel's grace period lapses.
func (m *ChannelManager) onGrace(id ChannelID, host ActorID) {
	ctx, cancel := context.WithTimeout(context.Background(), timerBudget)
	defer cancel()

	lock := m.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	row, found, err := m.cfg.Store.GetChannel(ctx, string(id))
	if err != nil {
		m.cfg.Logger.Error("grace close check failed", "channel_id", id, "error", err)
		return
	}
	if !found || row.State == string(ChannelClosed) {
		return
	}
	if err := m.closeLocked(ctx, channelFromRow(row)); err != nil {
		m.cfg.Logger.Error("grace close failed", "channel_id", id, "error", err)
	}
}

// expireLocked moves an open channel to expired and announces the end
// of the match. Caller holds the host lock.
func (m *ChannelManager) expireLocked(ctx context.Context, ch Channel) error {
	if err := m.cfg.Store.SetChannelState(ctx, string(ch.ID), string(ChannelExpired)); err != nil {
		return fmt.Errorf("expiring %s: %w", ch.ID, err)
	}
	ch.State = ChannelExpired
	m.cfg.Notifier.MatchEnded(ctx, ch)
	m.cfg.Logger.Info("channel expired", "channel_id", ch.ID, "host", ch.Host)
	return nil
}

// closeLocked moves a channel to closed and tears down the platform
// resource. Idempotent; caller holds the host lock.
func (m *ChannelManager) closeLocked(ctx context.Context, ch Channel) error {
	if ch.State == ChannelClosed {
		return nil
	}
	m.dropTimers(ch.ID)
	if err := m.cfg.Store.SetChannelState(ctx, string(ch.ID), string(ChannelClosed)); err != nil {
		return fmt.Errorf("closing %s: %w", ch.ID, err)
	}
	if err := m.cfg.Provider.Teardown(ctx, ch.Handle); err != nil {
		// The record is closed; the platform resource leaks until an
		// operator removes it. Loud log, no rollback.
		m.cfg.Logger.Error("channel teardown failed",
			"channel_id", ch.ID, "handle", ch.Handle, "error", err)
	}
	m.cfg.Logger.Info("channel closed", "channel_id", ch.ID, "host", ch.Host)
	return nil
}

// teardownQuietly discards a freshly provisioned resource that never
// made it into the store.
func (m *ChannelManager) teardownQuietly(handle ChannelHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), timerBudget)
	defer cancel()
	if err := m.cfg.Provider.Teardown(ctx, handle); err != nil {
		m.cfg.Logger.Error("discarding unrecorded channel failed", "handle", handle, "error", err)
	}
}

func channelFromRow(row store.ChannelRow) Channel {
	members := make([]ActorID, len(row.Members))
	for i, m := range row.Members {
		members[i] = ActorID(m)
	}
	return Channel{
		ID:        ChannelID(row.ChannelID),
		Host:      ActorID(row.HostID),
		Handle:    ChannelHandle(row.Handle),
		State:     ChannelState(row.State),
		Members:   members,
		CreatedAt: row.CreatedAt,
	}
}
