// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"errors"
	"fmt"
	"time"

	"github.com/volleylegends/matchbot/matchmaking/store"
)

// Sentinel errors returned by lifecycle operations. Callers branch on
// these with errors.Is to pick a user-facing response.
var (
	// ErrSeatsFull rejects a join when the channel is at capacity.
	ErrSeatsFull = errors.New("matchmaking: channel seats are full")
	// ErrChannelExpired rejects a join against a channel past its TTL.
	ErrChannelExpired = errors.New("matchmaking: channel has expired")
	// ErrChannelClosed rejects operations on a torn-down channel.
	ErrChannelClosed = errors.New("matchmaking: channel is closed")
	// ErrForbidden rejects an operation by an actor without standing,
	// such as a non-host finishing a match or a non-member sharing a link.
	ErrForbidden = errors.New("matchmaking: actor may not perform this operation")
	// ErrNoSession means the referenced host has no open session.
	ErrNoSession = errors.New("matchmaking: host has no open session")
	// ErrNoChannel means the referenced host has no live channel.
	ErrNoChannel = errors.New("matchmaking: host has no live channel")
	// ErrInvalidLink rejects a private link that failed validation.
	ErrInvalidLink = errors.New("matchmaking: invalid link")
)

// CooldownError rejects an operation whose subject is still cooling
// down. Remaining is the exact time left; format it for display with
// RemainingMinutes.
type CooldownError struct {
	Subject   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("matchmaking: %s is on cooldown for another %s", e.Subject, e.Remaining)
}

// RemainingMinutes is the remaining cooldown rounded up to whole
// minutes, never below one. A cooldown with any time left at all reads
// as "1 minute", not "0 minutes".
func (e *CooldownError) RemainingMinutes() int {
	m := int((e.Remaining + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// IsStoreUnavailable reports whether err originates in the persistence
// layer. Store failures must surface as failures; they never read as a
// cooldown having lapsed or a seat being free.
func IsStoreUnavailable(err error) bool {
	var se *store.Error
	return errors.As(err, &se)
}
