// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/volleylegends/matchbot/lib/codec"
	"github.com/volleylegends/matchbot/matchmaking"
)

// connectionDeadline bounds a whole request/response cycle. The chat
// layer's requests are small and local, so anything slower than this
// is a wedged peer.
const connectionDeadline = 30 * time.Second

// Request is one action from the chat layer. Actor is the platform
// user issuing the command; Host names the session or channel the
// action targets; Target is the requester an accept or decline refers
// to.
type Request struct {
	Action  string          `cbor:"action"`
	Actor   string          `cbor:"actor"`
	Host    string          `cbor:"host,omitempty"`
	Target  string          `cbor:"target,omitempty"`
	Mode    string          `cbor:"mode,omitempty"`
	Profile *ProfilePayload `cbor:"profile,omitempty"`
	Link    string          `cbor:"link,omitempty"`
}

// ProfilePayload is the wire form of a stats profile.
type ProfilePayload struct {
	Gameplay      string `cbor:"gameplay"`
	Ability       string `cbor:"ability"`
	Region        string `cbor:"region"`
	Communication string `cbor:"communication"`
	Notes         string `cbor:"notes,omitempty"`
}

// ChannelPayload is the wire form of a channel.
type ChannelPayload struct {
	ID      string   `cbor:"id"`
	Host    string   `cbor:"host"`
	Handle  string   `cbor:"handle"`
	State   string   `cbor:"state"`
	Members []string `cbor:"members"`
}

// SessionPayload is the wire form of an open session.
type SessionPayload struct {
	Host    string          `cbor:"host"`
	Mode    string          `cbor:"mode"`
	Profile *ProfilePayload `cbor:"profile,omitempty"`
}

// Response answers a Request. On failure, Kind names the rejection so
// the chat layer can render a precise reason; RetryMinutes is set for
// cooldown rejections.
type Response struct {
	OK           bool            `cbor:"ok"`
	Error        string          `cbor:"error,omitempty"`
	Kind         string          `cbor:"kind,omitempty"`
	Number       int             `cbor:"number,omitempty"`
	RetryMinutes int             `cbor:"retry_minutes,omitempty"`
	Session      *SessionPayload `cbor:"session,omitempty"`
	Channel      *ChannelPayload `cbor:"channel,omitempty"`
}

// Rejection kinds.
const (
	KindCooldown         = "cooldown"
	KindSeatsFull        = "seats-full"
	KindChannelExpired   = "channel-expired"
	KindForbidden        = "forbidden"
	KindNoSession        = "no-session"
	KindNoChannel        = "no-channel"
	KindInvalidLink      = "invalid-link"
	KindBadRequest       = "bad-request"
	KindStoreUnavailable = "store-unavailable"
	KindInternal         = "internal"
)

// Daemon serves the action API: one CBOR request and one response per
// connection.
type Daemon struct {
	coordinator *matchmaking.Coordinator
	logger      *slog.Logger
}

// NewDaemon builds a daemon over the coordinator.
func NewDaemon(coordinator *matchmaking.Coordinator, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Daemon{coordinator: coordinator, logger: logger}
}

// Serve accepts connections until ctx is canceled or the listener is
// closed. Each connection is handled in its own goroutine.
func (d *Daemon) Serve(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			d.logger.Error("accept error", "error", err)
			continue
		}
		go d.handleConnection(ctx, conn)
	}
}

// handleConnection processes a single request/response cycle.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(connectionDeadline)); err != nil {
		d.logger.Error("setting connection deadline", "error", err)
		return
	}

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var request Request
	if err := decoder.Decode(&request); err != nil {
		d.logger.Error("decoding request", "error", err)
		if err := encoder.Encode(Response{Error: "invalid request", Kind: KindBadRequest}); err != nil {
			d.logger.Error("encoding error response", "error", err)
		}
		return
	}

	d.logger.Info("request", "action", request.Action, "actor", request.Actor, "host", request.Host)
	response := d.dispatch(ctx, &request)
	if err := encoder.Encode(response); err != nil {
		d.logger.Error("encoding response", "error", err)
	}
}

func (d *Daemon) dispatch(ctx context.Context, request *Request) Response {
	if request.Actor == "" {
		return Response{Error: "actor is required", Kind: KindBadRequest}
	}
	switch request.Action {
	case "create":
		return d.handleCreate(ctx, request)
	case "join":
		return d.handleJoin(ctx, request)
	case "accept":
		return d.handleAccept(ctx, request)
	case "decline":
		return d.handleDecline(ctx, request)
	case "finish":
		return d.handleFinish(ctx, request)
	case "send-link":
		return d.handleSendLink(ctx, request)
	case "status":
		return d.handleStatus(ctx, request)
	}
	return Response{Error: "unknown action " + request.Action, Kind: KindBadRequest}
}

func (d *Daemon) handleCreate(ctx context.Context, request *Request) Response {
	mode, err := matchmaking.ParseMode(request.Mode)
	if err != nil {
		return Response{Error: err.Error(), Kind: KindBadRequest}
	}
	if request.Profile == nil {
		return Response{Error: "profile is required", Kind: KindBadRequest}
	}
	session, err := d.coordinator.CreateSession(ctx,
		matchmaking.ActorID(request.Actor), mode, profileFromPayload(request.Profile))
	if err != nil {
		return failure(err)
	}
	return Response{OK: true, Session: sessionPayload(session)}
}

func (d *Daemon) handleJoin(ctx context.Context, request *Request) Response {
	if request.Host == "" {
		return Response{Error: "host is required", Kind: KindBadRequest}
	}
	if request.Profile == nil {
		return Response{Error: "profile is required", Kind: KindBadRequest}
	}
	number, err := d.coordinator.RequestJoin(ctx,
		matchmaking.ActorID(request.Actor), matchmaking.ActorID(request.Host),
		profileFromPayload(request.Profile))
	if err != nil {
		return failure(err)
	}
	return Response{OK: true, Number: number}
}

// Accept and decline are decisions by the host, so the acting host is
// the request's Actor and the requester being answered is its Target.

func (d *Daemon) handleAccept(ctx context.Context, request *Request) Response {
	if request.Target == "" {
		return Response{Error: "target is required", Kind: KindBadRequest}
	}
	channel, err := d.coordinator.Accept(ctx,
		matchmaking.ActorID(request.Actor), matchmaking.ActorID(request.Target))
	if err != nil {
		return failure(err)
	}
	return Response{OK: true, Channel: channelPayload(channel)}
}

func (d *Daemon) handleDecline(ctx context.Context, request *Request) Response {
	if request.Target == "" {
		return Response{Error: "target is required", Kind: KindBadRequest}
	}
	if err := d.coordinator.Decline(ctx,
		matchmaking.ActorID(request.Actor), matchmaking.ActorID(request.Target)); err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

func (d *Daemon) handleFinish(ctx context.Context, request *Request) Response {
	host := request.Host
	if host == "" {
		host = request.Actor
	}
	err := d.coordinator.Finish(ctx,
		matchmaking.ActorID(request.Actor), matchmaking.ActorID(host))
	if err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

func (d *Daemon) handleSendLink(ctx context.Context, request *Request) Response {
	if request.Host == "" {
		return Response{Error: "host is required", Kind: KindBadRequest}
	}
	err := d.coordinator.ShareLink(ctx,
		matchmaking.ActorID(request.Actor), matchmaking.ActorID(request.Host), request.Link)
	if err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

func (d *Daemon) handleStatus(ctx context.Context, request *Request) Response {
	host := request.Host
	if host == "" {
		host = request.Actor
	}
	report, err := d.coordinator.Status(ctx, matchmaking.ActorID(host))
	if err != nil {
		return failure(err)
	}
	response := Response{OK: true}
	if report.Session != nil {
		response.Session = sessionPayload(*report.Session)
	}
	if report.Channel != nil {
		response.Channel = channelPayload(*report.Channel)
	}
	return response
}

// failure maps an engine error onto a wire response. The kind drives
// the chat layer's wording; the error string is for operators.
func failure(err error) Response {
	response := Response{Error: err.Error()}
	var cooldown *matchmaking.CooldownError
	switch {
	case errors.As(err, &cooldown):
		response.Kind = KindCooldown
		response.RetryMinutes = cooldown.RemainingMinutes()
	case errors.Is(err, matchmaking.ErrSeatsFull):
		response.Kind = KindSeatsFull
	case errors.Is(err, matchmaking.ErrChannelExpired),
		errors.Is(err, matchmaking.ErrChannelClosed):
		response.Kind = KindChannelExpired
	case errors.Is(err, matchmaking.ErrForbidden):
		response.Kind = KindForbidden
	case errors.Is(err, matchmaking.ErrNoSession):
		response.Kind = KindNoSession
	case errors.Is(err, matchmaking.ErrNoChannel):
		response.Kind = KindNoChannel
	case errors.Is(err, matchmaking.ErrInvalidLink):
		response.Kind = KindInvalidLink
	case matchmaking.IsStoreUnavailable(err):
		response.Kind = KindStoreUnavailable
	default:
		response.Kind = KindInternal
	}
	return response
}

func profileFromPayload(p *ProfilePayload) matchmaking.StatsRecord {
	return matchmaking.StatsRecord{
		Gameplay:      p.Gameplay,
		Ability:       p.Ability,
		Region:        p.Region,
		Communication: p.Communication,
		Notes:         p.Notes,
	}
}

func payloadFromProfile(p matchmaking.StatsRecord) *ProfilePayload {
	return &ProfilePayload{
		Gameplay:      p.Gameplay,
		Ability:       p.Ability,
		Region:        p.Region,
		Communication: p.Communication,
		Notes:         p.Notes,
	}
}

func sessionPayload(s matchmaking.HostSession) *SessionPayload {
	return &SessionPayload{
		Host:    string(s.Host),
		Mode:    string(s.Mode),
		Profile: payloadFromProfile(s.Profile),
	}
}

func channelPayload(ch matchmaking.Channel) *ChannelPayload {
	members := make([]string, len(ch.Members))
	for i, m := range ch.Members {
		members[i] = string(m)
	}
	return &ChannelPayload{
		ID:      string(ch.ID),
		Host:    string(ch.Host),
		Handle:  string(ch.Handle),
		State:   string(ch.State),
		Members: members,
	}
}
