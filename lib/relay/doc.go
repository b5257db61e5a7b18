// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the protocol relay state machine at the
// heart of the failover mediator.
//
// A [Machine] sits between the host and two engines. It consumes
// command events tagged with their source [usi.Peer] and primary
// failure signals, and performs every observable side effect through a
// [Transport]: writing a command to a peer, requesting process
// teardown, and arming or disarming the primary watchdog.
//
// The machine is in exactly one [State] at a time:
//
//	BackupStartup -> PrimaryWaitPosition -> PrimaryWaitGo -> PrimaryGo / PrimaryPonder
//	                        ^                                     |
//	                        +-------------------------------------+
//	any primary state --(primary failure)--> BackupRelay or BackupPonder
//
// Primary failure is permanent: once a backup state is entered the
// primary is never written to again, except for the quit broadcast.
//
// A Machine is not safe for concurrent use. The owner must serialize
// all events onto one goroutine (see lib/session), which is what lets
// the machine hold the position snapshot, the go parameters, and the
// dummy-bestmove flag without locking.
package relay
