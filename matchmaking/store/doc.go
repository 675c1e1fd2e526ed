// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable SQLite persistence layer for the
// matchmaking engine.
//
// It holds four record families: cooldown timestamps keyed by subject
// ("host:{id}" or "pair:{requester}:{host}"), per-host request
// counters, host sessions with their profile snapshots, and ephemeral
// channels with their member sets. Timestamps are stored as Unix
// milliseconds.
//
// Two operations carry the engine's atomicity requirements and are
// implemented as single SQL statements rather than read-modify-write:
//
//   - IncrementCounter uses an upsert with RETURNING, so concurrent
//     increments for one host can never lose an update.
//   - CreateChannel relies on a partial unique index over non-closed
//     channels per host; the insert either claims the slot or changes
//     nothing, which is the compare-and-create the channel manager
//     builds its single-live-channel guarantee on.
//
// Every failure is wrapped in *Error so callers can classify storage
// trouble as retryable without inspecting SQLite result codes.
package store
