// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"runtime"

	"github.com/select766/shogi-usi-failover/lib/binhash"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version and
// the digest of the running binary when it can be computed.
func Full() string {
	full := fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if identity, err := Self(); err == nil {
		full += fmt.Sprintf("\n  Binary: %s\n  BLAKE3: %s", identity.Path, identity.Digest)
	}
	return full
}

// Self fingerprints the currently running executable.
func Self() (binhash.Identity, error) {
	path, err := os.Executable()
	if err != nil {
		return binhash.Identity{}, fmt.Errorf("locating running binary: %w", err)
	}
	return binhash.Fingerprint(path)
}

// Print writes "binary" followed by [Full] to stdout for --version.
// Binaries that speak a protocol on stdout only call it before the
// protocol starts.
func Print(binary string) {
	fmt.Fprintf(os.Stdout, "%s %s\n", binary, Full())
}
