// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit checks session transcripts after the fact.
//
// An [Auditor] consumes [transcript.Record] values in order and builds
// a [Report]:
//
//   - per-kind record counts;
//   - echo accounting for each engine: every line read from an engine
//     must match a previously written, not yet matched line with the
//     same text. This is meaningful for transcripts produced against
//     echoing test engines (usi-mock-engine --echo, usi-stdio-check);
//   - failover accounting: once a state record names a failed-over
//     state, any write to the primary other than quit is a violation;
//   - the number of bestmove resign lines the host received that the
//     backup did not produce itself.
package audit
