// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package matchmaking implements the session and channel lifecycle for
// pickup-game matchmaking: host sessions with per-request counters,
// cooldown gating on hosts and requester/host pairs, and ephemeral
// match channels with a TTL, a seat cap, and a grace-period teardown.
//
// The package is storage-backed (see the store subpackage) and clock
// injected, so every timed behavior is testable without sleeping.
package matchmaking
