// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/volleylegends/matchbot/matchmaking"
)

// localProvider mints channel handles and tracks grants in memory.
// The actual chat-platform resource (the private voice or text room)
// is created by the chat layer when it sees the handle in a response;
// the daemon only needs handles to be unique and teardown to be
// idempotent.
type localProvider struct {
	logger *slog.Logger

	mu     sync.Mutex
	grants map[matchmaking.ChannelHandle][]matchmaking.ActorID
}

func newLocalProvider(logger *slog.Logger) *localProvider {
	return &localProvider{
		logger: logger,
		grants: make(map[matchmaking.ChannelHandle][]matchmaking.ActorID),
	}
}

func (p *localProvider) Create(_ context.Context, host matchmaking.ActorID, mode matchmaking.Mode) (matchmaking.ChannelHandle, error) {
	handle := matchmaking.ChannelHandle(fmt.Sprintf("match-%s-%s", mode, uuid.NewString()[:8]))
	p.mu.Lock()
	p.grants[handle] = []matchmaking.ActorID{host}
	p.mu.Unlock()
	p.logger.Info("channel provisioned", "handle", handle, "host", host, "mode", mode)
	return handle, nil
}

func (p *localProvider) Grant(_ context.Context, handle matchmaking.ChannelHandle, actor matchmaking.ActorID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.grants[handle]; !ok {
		return fmt.Errorf("granting access to unknown channel %s", handle)
	}
	p.grants[handle] = append(p.grants[handle], actor)
	return nil
}

func (p *localProvider) Teardown(_ context.Context, handle matchmaking.ChannelHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.grants, handle)
	return nil
}
