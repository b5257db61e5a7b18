// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash fingerprints engine executables with BLAKE3.
//
// Shogi engines are swapped often (new builds, new evaluation
// functions) while the descriptor keeps the same path. The mediator
// logs a digest of each engine binary at startup and writes it into
// the transcript as an engine-digest record, so a transcript can
// always be tied to the exact binaries that produced it.
//
//   - [HashFile] streams a file through BLAKE3 with constant memory.
//   - [Fingerprint] resolves an executable path and describes it.
//   - [FormatDigest] and [ParseDigest] convert digests to and from the
//     hex form used in logs and transcripts.
package binhash
