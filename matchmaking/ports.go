// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package matchmaking

import "context"

// ChannelProvider creates and tears down the backing channel resource
// on the chat platform and grants members access to it. Implementations
// must make Teardown safe to call on an already-gone resource.
type ChannelProvider interface {
	// Create provisions a private channel for the host's match and
	// returns the platform handle.
	Create(ctx context.Context, host ActorID, mode Mode) (ChannelHandle, error)

	// Grant gives the actor access to the channel.
	Grant(ctx context.Context, handle ChannelHandle, actor ActorID) error

	// Teardown removes the channel resource.
	Teardown(ctx context.Context, handle ChannelHandle) error
}

// Notifier delivers lifecycle announcements to participants. Delivery
// is best effort: the engine logs failures and moves on, so a flaky
// notification path never wedges the match lifecycle.
type Notifier interface {
	// SessionCreated announces a newly opened recruiting session.
	SessionCreated(ctx context.Context, session HostSession)

	// JoinRequested relays a numbered join request to the host.
	JoinRequested(ctx context.Context, host ActorID, requester ActorID, profile StatsRecord, number int)

	// RequestDeclined tells the requester the host passed.
	RequestDeclined(ctx context.Context, host ActorID, requester ActorID)

	// MemberJoined announces the requester entering the channel.
	MemberJoined(ctx context.Context, channel Channel, member ActorID)

	// MatchEnded announces the channel expiring, before teardown.
	MatchEnded(ctx context.Context, channel Channel)

	// LinkShared relays a validated private link inside the channel.
	LinkShared(ctx context.Context, channel Channel, sender ActorID, link string)
}

// LinkValidator checks a raw private-match link before it is relayed.
type LinkValidator interface {
	// Validate returns the canonical form of the link, or an error
	// describing why it was rejected.
	Validate(raw string) (string, error)
}
