// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// matchbotd is the matchmaking lifecycle daemon. It owns the durable
// store, the cooldown and counter state, and every channel timer, and
// exposes a CBOR action API on a local Unix socket for the chat layer
// to drive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/volleylegends/matchbot/lib/clock"
	"github.com/volleylegends/matchbot/lib/config"
	"github.com/volleylegends/matchbot/matchmaking"
	"github.com/volleylegends/matchbot/matchmaking/store"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "matchbotd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to matchbot.yaml (defaults to $MATCHBOT_CONFIG)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Config{
		Path:     cfg.Storage.Path,
		PoolSize: cfg.Storage.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	clk := clock.Real()
	notifier := newLogNotifier(logger)
	provider := newLocalProvider(logger)
	gate := matchmaking.NewCooldownGate(st, clk, logger)
	counter := matchmaking.NewRequestCounter(st)
	registry := matchmaking.NewSessionRegistry(st, clk, gate, counter, cfg.HostCooldown.Std())
	channels, err := matchmaking.NewChannelManager(matchmaking.ChannelManagerConfig{
		TTL:        cfg.ChannelTTL.Std(),
		CloseGrace: cfg.CloseGrace.Std(),
		MaxSeats:   cfg.MaxSeats,
		Store:      st,
		Clock:      clk,
		Provider:   provider,
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer channels.Shutdown()

	coordinator := matchmaking.NewCoordinator(matchmaking.CoordinatorConfig{
		Registry:     registry,
		Channels:     channels,
		Gate:         gate,
		Counter:      counter,
		Notifier:     notifier,
		Links:        newLinkValidator(cfg.LinkHosts),
		Logger:       logger,
		PairCooldown: cfg.PairCooldown.Std(),
	})

	// Pick up channels that were live before the last shutdown so
	// their TTL and grace timers keep running.
	if err := channels.Restore(ctx); err != nil {
		return fmt.Errorf("restoring channels: %w", err)
	}

	// Cooldown hygiene. The horizon is the longest window in use, so
	// a record is only dropped once no check could still need it.
	horizon := cfg.HostCooldown.Std()
	if cfg.PairCooldown.Std() > horizon {
		horizon = cfg.PairCooldown.Std()
	}
	go gate.RunSweeper(ctx, cfg.SweepInterval.Std(), horizon)

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	// A previous instance that died uncleanly leaves the socket file
	// behind; remove it so Listen does not fail with EADDRINUSE.
	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.SocketPath, err)
	}
	defer listener.Close()

	daemon := NewDaemon(coordinator, logger)
	logger.Info("matchbotd started",
		"version", version,
		"socket", cfg.SocketPath,
		"storage", cfg.Storage.Path,
		"channel_ttl", cfg.ChannelTTL.Std(),
		"max_seats", cfg.MaxSeats)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	daemon.Serve(ctx, listener)

	logger.Info("matchbotd stopped")
	return nil
}
