// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the lifecycle engine.
//
// Every engine component that reads the wall clock or schedules a
// deadline (cooldown checks, channel TTL expiry, grace-period close,
// the cooldown sweeper) takes a Clock instead of calling the time
// package directly. Production wiring injects Real(); tests inject
// Fake() and drive time explicitly.
//
// The FakeClock registers a pending entry for every After, AfterFunc,
// and NewTicker call. Tests block on WaitForTimers until the code
// under test has scheduled its deadlines, then call Advance to fire
// them deterministically:
//
//	c := clock.Fake(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
//	manager := newManagerWith(c)
//	// ... Ensure() schedules the TTL timer ...
//	c.WaitForTimers(1)
//	c.Advance(3 * time.Minute) // channel expires now
package clock
