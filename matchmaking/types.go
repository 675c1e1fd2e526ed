// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import (
	"fmt"
	"time"
)

// ActorID identifies a participant. The engine treats it as opaque; the
// daemon maps platform user IDs onto it.
type ActorID string

// Mode is the match format a host is recruiting for.
type Mode string

const (
	ModeTwos   Mode = "2v2"
	ModeThrees Mode = "3v3"
	ModeFours  Mode = "4v4"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTwos, ModeThrees, ModeFours:
		return Mode(s), nil
	}
	return "", fmt.Errorf("matchmaking: unknown mode %q", s)
}

// StatsRecord is the self-reported profile a participant attaches to a
// session or join request. It is stored verbatim and replayed into
// notifications; the engine never interprets the fields.
type StatsRecord struct {
	Gameplay      string `cbor:"gameplay"`
	Ability       string `cbor:"ability"`
	Region        string `cbor:"region"`
	Communication string `cbor:"communication"`
	Notes         string `cbor:"notes,omitempty"`
}

// HostSession is an open recruiting session. A host has at most one;
// opening a new one supersedes the old.
type HostSession struct {
	Host      ActorID
	Mode      Mode
	Profile   StatsRecord
	CreatedAt time.Time
}

// ChannelID is the engine's identity for a channel instance. It is
// minted fresh per channel so that a timer armed for one instance can
// never act on a later channel reusing the host's slot.
type ChannelID string

// ChannelHandle is the backing platform's identity for the channel
// resource, returned by the ChannelProvider on creation.
type ChannelHandle string

// ChannelState is the lifecycle position of a channel.
type ChannelState string

const (
	// ChannelOpen accepts members and messages.
	ChannelOpen ChannelState = "open"
	// ChannelExpired has hit its TTL or been finished; it rejects new
	// members and is waiting out the close grace period.
	ChannelExpired ChannelState = "expired"
	// ChannelClosed is torn down. Terminal.
	ChannelClosed ChannelState = "closed"
)

// Channel is a live or recently live match channel.
type Channel struct {
	ID        ChannelID
	Host      ActorID
	Handle    ChannelHandle
	State     ChannelState
	Members   []ActorID
	CreatedAt time.Time
}

// HostKey is the cooldown subject for a host opening sessions.
func HostKey(host ActorID) string {
	return "host:" + string(host)
}

// PairKey is the cooldown subject for a requester approaching a
// particular host. Direction matters: alice requesting bob's session
// is a different subject than bob requesting alice's.
func PairKey(requester, host ActorID) string {
	return "pair:" + string(requester) + ":" + string(host)
}
