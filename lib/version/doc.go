// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the mediator
// binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are set with
// -ldflags -X in release builds and keep their placeholder values in
// development builds and tests.
//
// [Info] is the one-line form logged when the mediator starts. [Full]
// adds the Go toolchain, platform and BLAKE3 digest of the running
// executable ([Self]), so a bug report names the exact build. [Print]
// implements --version for every binary.
package version
