// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single place the mediator configures CBOR. The
// session transcript can be written as a CBOR sequence (one
// self-delimiting item per record) instead of JSONL; every encoder and
// decoder for it comes from here so both ends agree on options.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): identical
// records always produce identical bytes, which keeps transcripts
// diffable and hashable.
package codec
