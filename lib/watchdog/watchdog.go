// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"sync"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
)

// Watchdog is a re-armable single deadline. Safe for concurrent use.
type Watchdog struct {
	clock  clock.Clock
	expire func(generation uint64)

	mu         sync.Mutex
	timer      *clock.Timer
	generation uint64
	armed      bool
	deadline   time.Time
}

// New returns a disarmed watchdog. expire is called on the clock's
// goroutine (or from FakeClock.Advance) with the generation that
// expired.
func New(source clock.Clock, expire func(generation uint64)) *Watchdog {
	return &Watchdog{clock: source, expire: expire}
}

// Arm starts a deadline timeout from now, replacing any pending one.
// Returns the new generation.
func (watchdog *Watchdog) Arm(timeout time.Duration) uint64 {
	watchdog.mu.Lock()
	defer watchdog.mu.Unlock()

	watchdog.stopLocked()
	watchdog.generation++
	generation := watchdog.generation
	watchdog.armed = true
	watchdog.deadline = watchdog.clock.Now().Add(timeout)
	watchdog.timer = watchdog.clock.AfterFunc(timeout, func() {
		watchdog.fire(generation)
	})
	return generation
}

// Disarm cancels the pending deadline. Any expiry already in flight
// for an earlier generation becomes stale.
func (watchdog *Watchdog) Disarm() {
	watchdog.mu.Lock()
	defer watchdog.mu.Unlock()
	watchdog.stopLocked()
	watchdog.generation++
}

// Deadline returns the pending deadline and whether one is armed.
func (watchdog *Watchdog) Deadline() (time.Time, bool) {
	watchdog.mu.Lock()
	defer watchdog.mu.Unlock()
	return watchdog.deadline, watchdog.armed
}

// Expire marks generation as consumed if it is still current, and
// reports whether it was. The owner calls this from its event loop
// when it processes an expiry; a true result means the primary has
// genuinely timed out.
func (watchdog *Watchdog) Expire(generation uint64) bool {
	watchdog.mu.Lock()
	defer watchdog.mu.Unlock()
	if !watchdog.armed || watchdog.generation != generation {
		return false
	}
	watchdog.armed = false
	watchdog.timer = nil
	return true
}

func (watchdog *Watchdog) stopLocked() {
	if watchdog.timer != nil {
		watchdog.timer.Stop()
		watchdog.timer = nil
	}
	watchdog.armed = false
	watchdog.deadline = time.Time{}
}

func (watchdog *Watchdog) fire(generation uint64) {
	if watchdog.expire != nil {
		watchdog.expire(generation)
	}
}
