// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the mediator's engine descriptor.
//
// The descriptor names the two engine executables, the primary
// watchdog timeout, the quit grace period, the backup's startup
// setoption groups, and optional transcript and log destinations. It
// may be YAML (.yaml, .yml) or JSON with comments and trailing commas
// allowed (.json, .jsonc); historical installations ship an
// engine.json next to the mediator executable.
//
// Game hosts launch an engine executable without arguments, so the
// file is found by [Discover]: an explicit path (the --config flag),
// then the USI_FAILOVER_CONFIG environment variable, then engine.yaml,
// engine.yml or engine.json in the working directory, then the same
// names next to the executable.
//
// After loading, ${VAR} and ${VAR:-default} are expanded in path
// fields, and relative paths are resolved against the directory that
// holds the descriptor. No other environment variables override values.
package config
