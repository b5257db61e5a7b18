// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Digest is a 256-bit BLAKE3 digest.
type Digest [32]byte

// String returns the hex encoding.
func (digest Digest) String() string {
	return FormatDigest(digest)
}

// Short returns the first 12 hex characters, for log lines.
func (digest Digest) Short() string {
	return FormatDigest(digest)[:12]
}

// HashFile computes the BLAKE3 digest of the file at path.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// Identity describes one executable on disk.
type Identity struct {
	// Path is the resolved absolute path, symlinks followed.
	Path   string
	Size   int64
	Digest Digest
}

// Fingerprint resolves path (searching PATH for a bare name, following
// symlinks) and hashes the result.
func Fingerprint(path string) (Identity, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Identity{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return Identity{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = target
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Identity{}, fmt.Errorf("stat %s: %w", resolved, err)
	}
	digest, err := HashFile(resolved)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Path: resolved, Size: info.Size(), Digest: digest}, nil
}

// FormatDigest returns the hex encoding of digest.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a 64-character hex digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("hash digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
