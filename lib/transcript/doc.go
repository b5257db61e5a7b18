// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript records what a mediator session did, one record
// per observable event: every line read from or written to each peer,
// state transitions, primary failures with their cause, and engine
// exits. The audit tool (lib/audit) replays transcripts offline to
// check echo accounting and failover discipline.
//
// Two encodings are supported, selected by [Format]: JSONL (one JSON
// object per line, readable with standard tools) and a CBOR sequence
// (via lib/codec). Either may be compressed; the compression is chosen
// by the path suffix: ".zst" for zstd, ".lz4" for LZ4 frames.
//
//	session.jsonl          JSONL, uncompressed
//	session.cbor.zst       CBOR, zstd
//	session.jsonl.lz4      JSONL, LZ4
package transcript
