// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog implements the primary engine's search deadline.
//
// A [Watchdog] is armed when the primary starts a normal search and
// re-armed by every line the primary prints while searching; silence
// for the full timeout means the primary is presumed hung. Disarming
// happens when the search ends or the session fails over.
//
// The watchdog never calls into the relay state machine. On expiry it
// invokes the configured callback with the generation number of the
// deadline that expired; the owner posts that into its serialized
// event loop and passes it to [Watchdog.Expire] before acting, so an
// expiry that raced with a re-arm or disarm is discarded.
package watchdog
