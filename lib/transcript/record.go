// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/select766/shogi-usi-failover/lib/usi"
)

// Kind classifies a transcript record.
type Kind string

const (
	KindHostRead          Kind = "host-read"
	KindHostWrite         Kind = "host-write"
	KindPrimaryRead       Kind = "primary-read"
	KindPrimaryWrite      Kind = "primary-write"
	KindBackupRead        Kind = "backup-read"
	KindBackupWrite       Kind = "backup-write"
	KindPrimaryWriteError Kind = "primary-write-error"
	KindBackupWriteError  Kind = "backup-write-error"
	KindPrimaryFailure    Kind = "primary-failure"
	KindPrimaryExit       Kind = "primary-exit"
	KindBackupExit        Kind = "backup-exit"
	KindState             Kind = "state"
	KindEngineDigest      Kind = "engine-digest"
	KindQuit              Kind = "quit"

	// KindRun carries the mediator's run identifier, also attached to
	// every log record, so a transcript can be matched to its log.
	KindRun Kind = "run"

	// Stress harness markers (cmd/usi-stdio-check).
	KindStop Kind = "stop"
	KindKill Kind = "kill"
)

// ReadKind returns the kind for a line received from peer.
func ReadKind(peer usi.Peer) Kind {
	return Kind(string(peer) + "-read")
}

// WriteKind returns the kind for a line sent to peer.
func WriteKind(peer usi.Peer) Kind {
	return Kind(string(peer) + "-write")
}

// Record is one transcript entry. Field names are shared by the JSON
// and CBOR encodings.
type Record struct {
	Timestamp time.Time `json:"timestamp" cbor:"timestamp"`
	Type      Kind      `json:"type" cbor:"type"`

	// Data is the protocol line for read/write kinds, the state name
	// for KindState, the failure reason for KindPrimaryFailure, and
	// "name digest" for KindEngineDigest.
	Data string `json:"data,omitempty" cbor:"data,omitempty"`

	// Code is the exit code for exit kinds.
	Code *int `json:"code,omitempty" cbor:"code,omitempty"`

	// Error describes write errors and spawn failures.
	Error string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Format is a transcript encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCBOR  Format = "cbor"
)

// ParseFormat validates a format name. Empty means "infer from path".
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return "", nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown transcript format %q (want jsonl or cbor)", name)
	}
}

// Compression is a transcript stream compression.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// DetectPath infers encoding and compression from a file name. An
// unrecognized extension means JSONL.
func DetectPath(path string) (Format, Compression) {
	name := strings.ToLower(filepath.Base(path))
	compression := CompressionNone
	switch {
	case strings.HasSuffix(name, ".zst"):
		compression = CompressionZstd
		name = strings.TrimSuffix(name, ".zst")
	case strings.HasSuffix(name, ".lz4"):
		compression = CompressionLZ4
		name = strings.TrimSuffix(name, ".lz4")
	}
	if strings.HasSuffix(name, ".cbor") {
		return FormatCBOR, compression
	}
	return FormatJSONL, compression
}
