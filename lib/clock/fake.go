// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	current time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time // After waiters
	callback func()         // AfterFunc waiters
	stopped  bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (clock *FakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

// After registers a channel waiter.
func (clock *FakeClock) After(d time.Duration) <-chan time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- clock.current
		return channel
	}
	clock.addLocked(&waiter{deadline: clock.current.Add(d), channel: channel})
	return channel
}

// AfterFunc registers a callback waiter. A non-positive d runs f
// before returning.
func (clock *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	clock.mu.Lock()
	if d <= 0 {
		clock.mu.Unlock()
		f()
		return &Timer{stop: func() bool { return false }}
	}
	entry := &waiter{deadline: clock.current.Add(d), callback: f}
	clock.addLocked(entry)
	clock.mu.Unlock()

	return &Timer{stop: func() bool {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		for index, pending := range clock.waiters {
			if pending == entry {
				entry.stopped = true
				clock.waiters = append(clock.waiters[:index], clock.waiters[index+1:]...)
				clock.changed.Broadcast()
				return true
			}
		}
		return false
	}}
}

func (clock *FakeClock) addLocked(entry *waiter) {
	clock.waiters = append(clock.waiters, entry)
	clock.changed.Broadcast()
}

// Advance moves time forward by d and fires every waiter whose
// deadline has been reached, in deadline order. Callbacks run on the
// calling goroutine without the clock's lock held, so they may
// register new timers; a new timer that is already due fires within
// the same Advance.
func (clock *FakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	clock.current = clock.current.Add(d)
	target := clock.current
	clock.mu.Unlock()

	for {
		due := clock.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

func (clock *FakeClock) takeDue(target time.Time) []*waiter {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	var due, remaining []*waiter
	for _, entry := range clock.waiters {
		if entry.deadline.After(target) {
			remaining = append(remaining, entry)
		} else {
			due = append(due, entry)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	if len(due) > 0 {
		clock.waiters = remaining
		clock.changed.Broadcast()
	}
	return due
}

// PendingCount returns the number of registered, unfired waiters.
func (clock *FakeClock) PendingCount() int {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return len(clock.waiters)
}

// WaitForTimers blocks until at least n waiters are pending. Use it to
// close the race between a goroutine registering a timer and the test
// advancing past it.
func (clock *FakeClock) WaitForTimers(n int) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	for len(clock.waiters) < n {
		clock.changed.Wait()
	}
}
