// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs one mediator session: the host channel, the
// primary and backup engines, the primary watchdog, and the relay
// state machine.
//
// A single goroutine owns the [relay.Machine]. Host lines arrive from a
// reader goroutine, engine output and exits from each engine's event
// channel, and watchdog and quit-grace expiries from clock callbacks
// that post into channels. Nothing calls into the machine from any
// other goroutine, so the machine itself needs no locking.
//
// Watchdog expiries are tagged with the generation of the deadline
// that produced them. An expiry for a deadline that was disarmed or
// re-armed before the loop got to it is discarded.
//
// Teardown:
//
//   - quit from the host (or end of host input, which counts as quit)
//     sends quit to both engines and arms the grace timer. The session
//     ends with status 0 once both engines have exited or the grace
//     timer fires, whichever comes first. Engines still running are
//     terminated.
//   - both engines exiting without a quit ends the session with the
//     exit status of the engine that was serving the host.
//   - a failed write to the host ends the session with status 1.
//
// A failed backup has no recovery path. It is logged and recorded in
// the transcript, and the session keeps relaying with whatever remains.
package session
