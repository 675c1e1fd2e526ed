// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool backing the
// matchmaking store.
//
// It wraps zombiezen.com/go/sqlite with the pragmas the engine needs:
// WAL journaling so cooldown reads never block counter writes,
// NORMAL synchronous for durability across process crashes without
// per-commit fsync cost, and a busy timeout so concurrent accept
// handlers wait on the write lock instead of surfacing SQLITE_BUSY.
//
// Callers Take a connection, run their statements, and Put it back.
// Connections are not safe for concurrent use; each goroutine holds
// its own for the duration of its work. The package deliberately
// exposes the zombiezen types directly — the store writes SQL, it
// does not go through a query-builder layer.
//
// Tests open Path ":memory:" with PoolSize 1 (each in-memory
// connection is an independent database, so a larger pool would see
// different data per connection).
package sqlitepool
