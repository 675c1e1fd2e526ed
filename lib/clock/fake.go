// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// when Advance is called; every timer and ticker registered against
// the clock fires, in deadline order, as Advance sweeps past its
// deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests.
//
// AfterFunc callbacks run synchronously inside Advance. Do not call
// Advance from within a callback; that deadlocks.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	pending    []*pendingEntry
	registered *sync.Cond
}

// pendingEntry is one scheduled timer, ticker interval, or After wait.
type pendingEntry struct {
	deadline time.Time

	// ch receives the fire time for After and Ticker entries; nil for
	// AfterFunc entries.
	ch chan time.Time

	// fn runs synchronously during Advance for AfterFunc entries; nil
	// otherwise.
	fn func()

	// every is non-zero for ticker entries, which re-arm at
	// deadline+every after each fire.
	every time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// d. If d <= 0 it receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.pending = append(c.pending, &pendingEntry{deadline: c.current.Add(d), ch: ch})
	c.registered.Broadcast()
	return ch
}

// AfterFunc schedules f to run when the clock advances past d. If
// d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()

	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{
			stopFunc:  func() bool { return false },
			resetFunc: func(time.Duration) bool { return false },
		}
	}

	entry := &pendingEntry{deadline: c.current.Add(d), fn: f}
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()
	c.mu.Unlock()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if entry.stopped || entry.fired {
				return false
			}
			entry.stopped = true
			return true
		},
		resetFunc: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			active := !entry.stopped && !entry.fired
			entry.stopped = false
			entry.fired = false
			entry.deadline = c.current.Add(d)
			if !active {
				// The entry was dropped from the pending list when it
				// fired; put it back.
				c.pending = append(c.pending, entry)
				c.registered.Broadcast()
			}
			return active
		},
	}
}

// NewTicker delivers a tick for every interval the clock advances
// past. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	entry := &pendingEntry{deadline: c.current.Add(d), ch: ch, every: d}
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()

	return &Ticker{
		C: ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
		},
		resetFunc: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.every = d
			entry.deadline = c.current.Add(d)
			entry.stopped = false
		},
	}
}

// Advance moves the clock forward by d and fires everything whose
// deadline falls within the new time, in deadline order. AfterFunc
// callbacks run in the calling goroutine; channel sends never block
// (a full channel drops the tick, matching time.Ticker).
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
		for _, entry := range due {
			if entry.fn != nil {
				entry.fn()
			} else if entry.ch != nil {
				select {
				case entry.ch <- target:
				default:
				}
			}
		}
	}
}

// takeDue removes due entries from the pending list, re-arming
// tickers, and returns them for firing.
func (c *FakeClock) takeDue(target time.Time) []*pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingEntry
	for _, entry := range c.pending {
		if entry.stopped {
			continue
		}
		if entry.deadline.After(target) {
			keep = append(keep, entry)
		} else {
			due = append(due, entry)
		}
	}
	for _, entry := range due {
		if entry.every > 0 {
			entry.deadline = entry.deadline.Add(entry.every)
			keep = append(keep, entry)
		} else {
			entry.fired = true
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n timers or tickers are pending.
// Eliminates the race between a goroutine scheduling a deadline and
// the test advancing the clock past it.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of active pending timers and
// tickers. Useful for asserting that cancellation happened.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	n := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			n++
		}
	}
	return n
}
