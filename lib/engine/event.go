// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// EventKind discriminates [Event] values.
type EventKind int

const (
	// EventLine is one complete line from the engine's stdout, without
	// its terminator.
	EventLine EventKind = iota

	// EventWriteError reports that writing to the engine's stdin
	// failed. Emitted at most once per process.
	EventWriteError

	// EventExit reports that the engine exited. Always the final event.
	EventExit
)

func (kind EventKind) String() string {
	switch kind {
	case EventLine:
		return "line"
	case EventWriteError:
		return "write-error"
	case EventExit:
		return "exit"
	default:
		return fmt.Sprintf("EventKind(%d)", int(kind))
	}
}

// Event is one observation of an engine subprocess.
type Event struct {
	Kind EventKind

	// Line is the output line for EventLine, and the line that could
	// not be written for EventWriteError.
	Line string

	// Err is the write error for EventWriteError, or a wait error for
	// EventExit when the exit status could not be determined.
	Err error

	// Code is the exit status for EventExit. A child killed by a signal
	// reports 128 plus the signal number, as shells do.
	Code int
}
