// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so individual tests never hang on a channel that a
// bug left silent. These helpers are the only place the test suite
// touches real wall-clock timeouts; everything else runs on
// lib/clock's FakeClock.
//
// Helpers call t.Fatalf rather than returning errors; a failed wait
// is never recoverable for the test.
package testutil
