// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by every
// timer in the mediator: the primary watchdog, the quit grace period,
// and engine kill escalation.
//
// Production code uses [Real]. Tests use [Fake], whose time moves only
// when [FakeClock.Advance] is called, so a watchdog expiry can be
// produced deterministically without sleeping:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := newSession(fake)
//	fake.WaitForTimers(1)
//	fake.Advance(10 * time.Second) // watchdog fires
package clock
