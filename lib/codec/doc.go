// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration point for matchbot.
// Both the daemon's socket protocol and the persisted profile blobs go
// through it, so the wire and the store always agree on encoding.
package codec
