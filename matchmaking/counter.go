// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"context"
	"fmt"

	"github.com/volleylegends/matchbot/matchmaking/store"
)

// RequestCounter numbers join requests against a host's session. The
// increment is a single atomic statement in the store, so concurrent
// requests each get a distinct ordinal with no lost updates.
type RequestCounter struct {
	store *store.Store
}

// NewRequestCounter builds a counter over the given store.
func NewRequestCounter(st *store.Store) *RequestCounter {
	return &RequestCounter{store: st}
}

// Reset zeroes the host's counter. Called when a session opens so its
// first request reads as number one.
func (c *RequestCounter) Reset(ctx context.Context, host ActorID) error {
	if err := c.store.ResetCounter(ctx, string(host)); err != nil {
		return fmt.Errorf("resetting request counter for %s: %w", host, err)
	}
	return nil
}

// Increment bumps the host's counter and returns the new value. The
// first increment after a reset returns 1.
func (c *RequestCounter) Increment(ctx context.Context, host ActorID) (int, error) {
	n, err := c.store.IncrementCounter(ctx, string(host))
	if err != nil {
		return 0, fmt.Errorf("incrementing request counter for %s: %w", host, err)
	}
	return n, nil
}
