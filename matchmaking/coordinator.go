// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Coordinator drives the matchmaking flows end to end: opening
// sessions, relaying join requests through the cooldown and counter,
// seating accepted players, and closing matches. It owns the policy
// ordering; the gate, registry, counter, and channel manager supply
// the mechanics.
type Coordinator struct {
	registry *SessionRegistry
	channels *ChannelManager
	gate     *CooldownGate
	counter  *RequestCounter
	notifier Notifier
	links    LinkValidator
	logger   *slog.Logger

	pairCooldown time.Duration
}

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Registry     *SessionRegistry
	Channels     *ChannelManager
	Gate         *CooldownGate
	Counter      *RequestCounter
	Notifier     Notifier
	Links        LinkValidator
	Logger       *slog.Logger
	PairCooldown time.Duration
}

// NewCoordinator builds a coordinator. A nil Logger discards.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		registry:     cfg.Registry,
		channels:     cfg.Channels,
		gate:         cfg.Gate,
		counter:      cfg.Counter,
		notifier:     cfg.Notifier,
		links:        cfg.Links,
		logger:       logger,
		pairCooldown: cfg.PairCooldown,
	}
}

// CreateSession opens a recruiting session for the host and announces
// it. The host cooldown gates the whole operation.
func (c *Coordinator) CreateSession(ctx context.Context, host ActorID, mode Mode, profile StatsRecord) (HostSession, error) {
	session, err := c.registry.Open(ctx, host, mode, profile)
	if err != nil {
		return HostSession{}, err
	}
	c.notifier.SessionCreated(ctx, session)
	c.logger.Info("session opened", "host", host, "mode", mode)
	return session, nil
}

// RequestJoin relays the requester's interest to the host. The pair
// cooldown gates it; on success the requester's player profile is
// snapshotted, the pair cooldown restarts, and the request gets the
// next ordinal from the host's counter. Declines do not refund the
// cooldown, so a requester gets one approach per window whatever the
// host decides.
func (c *Coordinator) RequestJoin(ctx context.Context, requester, host ActorID, profile StatsRecord) (int, error) {
	if _, err := c.registry.Lookup(ctx, host); err != nil {
		return 0, err
	}
	if err := c.gate.Check(ctx, PairKey(requester, host), c.pairCooldown); err != nil {
		return 0, err
	}

	if err := c.registry.SnapshotProfile(ctx, requester, RolePlayer, profile); err != nil {
		return 0, err
	}
	if err := c.gate.Touch(ctx, PairKey(requester, host)); err != nil {
		return 0, err
	}
	number, err := c.counter.Increment(ctx, host)
	if err != nil {
		return 0, err
	}
	c.notifier.JoinRequested(ctx, host, requester, profile, number)
	c.logger.Info("join requested", "host", host, "requester", requester, "number", number)
	return number, nil
}

// Accept seats the requester in the host's match, creating the channel
// from the host's open session if this is the first acceptance.
func (c *Coordinator) Accept(ctx context.Context, host, requester ActorID) (Channel, error) {
	session, err := c.registry.Lookup(ctx, host)
	if err != nil {
		return Channel{}, err
	}
	if _, err := c.channels.Ensure(ctx, host, session.Mode); err != nil {
		return Channel{}, err
	}
	ch, err := c.channels.AddMember(ctx, host, requester)
	if err != nil {
		return Channel{}, err
	}
	c.notifier.MemberJoined(ctx, ch, requester)
	c.logger.Info("request accepted", "host", host, "requester", requester, "channel_id", ch.ID)
	return ch, nil
}

// Decline tells the requester the host passed. Nothing else changes;
// the pair cooldown was spent when the request went out.
func (c *Coordinator) Decline(ctx context.Context, host, requester ActorID) error {
	c.notifier.RequestDeclined(ctx, host, requester)
	c.logger.Info("request declined", "host", host, "requester", requester)
	return nil
}

// Finish ends the host's match now. Only the host may finish; anyone
// else gets ErrForbidden before any state is read.
func (c *Coordinator) Finish(ctx context.Context, caller, host ActorID) error {
	if caller != host {
		return fmt.Errorf("finish by %s for %s: %w", caller, host, ErrForbidden)
	}
	if err := c.channels.Finish(ctx, host); err != nil {
		return err
	}
	c.logger.Info("match finished", "host", host)
	return nil
}

// ShareLink validates a private match link and relays it inside the
// host's live channel. Only seated members may share.
func (c *Coordinator) ShareLink(ctx context.Context, sender, host ActorID, raw string) error {
	ch, found, err := c.channels.Live(ctx, host)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sharing link for %s: %w", host, ErrNoChannel)
	}
	if ch.State != ChannelOpen {
		return fmt.Errorf("sharing link in %s: %w", ch.ID, ErrChannelExpired)
	}
	member := false
	for _, m := range ch.Members {
		if m == sender {
			member = true
			break
		}
	}
	if !member {
		return fmt.Errorf("link from non-member %s in %s: %w", sender, ch.ID, ErrForbidden)
	}
	link, err := c.links.Validate(raw)
	if err != nil {
		return fmt.Errorf("link from %s: %w: %v", sender, ErrInvalidLink, err)
	}
	c.notifier.LinkShared(ctx, ch, sender, link)
	c.logger.Info("link shared", "channel_id", ch.ID, "sender", sender)
	return nil
}

// StatusReport is a point-in-time view of a host's matchmaking state.
type StatusReport struct {
	Session *HostSession
	Channel *Channel
}

// Status reports the host's open session and live channel, either of
// which may be absent.
func (c *Coordinator) Status(ctx context.Context, host ActorID) (StatusReport, error) {
	var report StatusReport
	session, err := c.registry.Lookup(ctx, host)
	switch {
	case err == nil:
		report.Session = &session
	case errors.Is(err, ErrNoSession):
	default:
		return StatusReport{}, err
	}
	ch, found, err := c.channels.Live(ctx, host)
	if err != nil {
		return StatusReport{}, err
	}
	if found {
		report.Channel = &ch
	}
	return report, nil
}
