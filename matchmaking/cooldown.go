// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/volleylegends/matchbot/lib/clock"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

// CooldownGate answers whether a subject may act yet, based on the last
// time the subject acted. Records are last-write-wins timestamps; the
// window length lives here, not in the store, so reconfiguring a
// cooldown applies to existing records immediately.
type CooldownGate struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewCooldownGate builds a gate over the given store. A nil logger
// discards.
func NewCooldownGate(st *store.Store, clk clock.Clock, logger *slog.Logger) *CooldownGate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CooldownGate{store: st, clock: clk, logger: logger}
}

// Check returns a *CooldownError if the subject acted within window of
// now, nil if the subject is clear. Store failures propagate; a broken
// store never reads as a lapsed cooldown.
func (g *CooldownGate) Check(ctx context.Context, subject string, window time.Duration) error {
	touched, found, err := g.store.GetCooldown(ctx, subject)
	if err != nil {
		return fmt.Errorf("checking cooldown for %s: %w", subject, err)
	}
	if !found {
		return nil
	}
	elapsed := g.clock.Now().Sub(touched)
	if elapsed >= window {
		return nil
	}
	return &CooldownError{Subject: subject, Remaining: window - elapsed}
}

// Touch records the subject acting now, starting or restarting its
// cooldown window.
func (g *CooldownGate) Touch(ctx context.Context, subject string) error {
	if err := g.store.TouchCooldown(ctx, subject, g.clock.Now()); err != nil {
		return fmt.Errorf("touching cooldown for %s: %w", subject, err)
	}
	return nil
}

// Prune deletes records old enough that no configured window could
// still cover them. horizon is the longest window in use.
func (g *CooldownGate) Prune(ctx context.Context, horizon time.Duration) (int, error) {
	n, err := g.store.PruneCooldowns(ctx, g.clock.Now().Add(-horizon))
	if err != nil {
		return 0, fmt.Errorf("pruning cooldowns: %w", err)
	}
	return n, nil
}

// RunSweeper prunes on the given interval until ctx is canceled. Prune
// failures are logged and the sweeper keeps going; a missed sweep only
// delays reclamation.
func (g *CooldownGate) RunSweeper(ctx context.Context, interval, horizon time.Duration) {
	ticker := g.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Prune(ctx, horizon)
			if err != nil {
				g.logger.Error("cooldown sweep failed", "error", err)
				continue
			}
			if n > 0 {
				g.logger.Info("cooldown sweep", "pruned", n)
			}
		}
	}
}
