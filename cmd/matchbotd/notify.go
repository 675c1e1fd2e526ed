// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/volleylegends/matchbot/matchmaking"
)

// logNotifier emits lifecycle announcements as structured log events.
// The chat layer tails these to render user-facing messages; the
// engine itself never blocks on delivery.
type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	return &logNotifier{logger: logger.With("event", "announce")}
}

func (n *logNotifier) SessionCreated(_ context.Context, session matchmaking.HostSession) {
	n.logger.Info("session created",
		"host", session.Host,
		"mode", session.Mode,
		"region", session.Profile.Region)
}

func (n *logNotifier) JoinRequested(_ context.Context, host, requester matchmaking.ActorID, profile matchmaking.StatsRecord, number int) {
	n.logger.Info("join requested",
		"host", host,
		"requester", requester,
		"number", number,
		"region", profile.Region)
}

func (n *logNotifier) RequestDeclined(_ context.Context, host, requester matchmaking.ActorID) {
	n.logger.Info("request declined", "host", host, "requester", requester)
}

func (n *logNotifier) MemberJoined(_ context.Context, channel matchmaking.Channel, member matchmaking.ActorID) {
	n.logger.Info("member joined",
		"channel_id", channel.ID,
		"member", member,
		"seats", len(channel.Members))
}

func (n *logNotifier) MatchEnded(_ context.Context, channel matchmaking.Channel) {
	n.logger.Info("match ended",
		"channel_id", channel.ID,
		"host", channel.Host,
		"members", len(channel.Members))
}

func (n *logNotifier) LinkShared(_ context.Context, channel matchmaking.Channel, sender matchmaking.ActorID, link string) {
	n.logger.Info("link shared",
		"channel_id", channel.ID,
		"sender", sender,
		"link", link)
}
