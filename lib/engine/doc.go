// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine supervises one USI engine subprocess.
//
// A [Process] owns the child's stdin and stdout pipes. Stdout is read
// in chunks and framed into lines by [lineframe.Scan]; stderr is passed
// straight through to the mediator's stderr, where engines commonly
// print diagnostics. Everything the child does is reported on a single
// ordered channel of [Event] values: every [EventLine] the child
// printed, at most one [EventWriteError], and finally one [EventExit]
// carrying the exit status, after which the channel is closed.
//
// [Process.Send] never blocks the caller. Lines go into an unbounded
// FIFO drained by a writer goroutine, so a wedged engine that stops
// reading its stdin cannot stall the mediator's event loop. The first
// failed write is reported once and all later writes are discarded.
//
// The child runs in its own process group. [Process.Terminate] sends
// SIGTERM to the whole group and escalates to SIGKILL after
// [Config.KillDelay], so helper processes an engine spawns (cluster
// workers, wrapper scripts) do not outlive the mediator.
package engine
