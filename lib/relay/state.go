// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "fmt"

// State is the active control state of a [Machine].
type State int

const (
	// BackupStartup waits for the backup engine to finish its
	// usi/isready handshake. Host commands are queued.
	BackupStartup State = iota

	// PrimaryWaitPosition relays host and primary traffic until the
	// host sends a position.
	PrimaryWaitPosition

	// PrimaryWaitGo has a position snapshot and waits for go.
	PrimaryWaitGo

	// PrimaryGo is a normal primary search. The watchdog is armed and
	// every primary message extends it.
	PrimaryGo

	// PrimaryPonder is a primary ponder search. Pondering has no
	// deadline, so the watchdog is not armed.
	PrimaryPonder

	// BackupRelay is the post-failover state: the backup is the only
	// engine relayed to.
	BackupRelay

	// BackupPonder follows a failover that happened while the primary
	// was pondering. The backup has nothing to resume, so the machine
	// waits for the host to resolve the ponder.
	BackupPonder
)

var stateNames = [...]string{
	BackupStartup:       "backup-startup",
	PrimaryWaitPosition: "primary-wait-position",
	PrimaryWaitGo:       "primary-wait-go",
	PrimaryGo:           "primary-go",
	PrimaryPonder:       "primary-ponder",
	BackupRelay:         "backup-relay",
	BackupPonder:        "backup-ponder",
}

// String returns the kebab-case state name used in logs and
// transcripts.
func (state State) String() string {
	if state >= 0 && int(state) < len(stateNames) {
		return stateNames[state]
	}
	return fmt.Sprintf("state(%d)", int(state))
}

// ParseState is the inverse of String.
func ParseState(name string) (State, error) {
	for index, candidate := range stateNames {
		if candidate == name {
			return State(index), nil
		}
	}
	return 0, fmt.Errorf("unknown relay state %q", name)
}

// FailedOver reports whether the state belongs to the post-failover
// phase, in which the primary is out of the game.
func (state State) FailedOver() bool {
	return state == BackupRelay || state == BackupPonder
}

// FailureReason records what detected a primary failure. The machine
// handles every reason identically; the reason exists for logs.
type FailureReason string

const (
	// FailureTimeout is a watchdog expiry during a primary search.
	FailureTimeout FailureReason = "timeout"

	// FailureExit is the primary process exiting, with any code.
	FailureExit FailureReason = "exit"

	// FailureSpawn is the primary process failing to start.
	FailureSpawn FailureReason = "spawn"

	// FailureWrite is a write error on the primary's stdin.
	FailureWrite FailureReason = "write"
)
