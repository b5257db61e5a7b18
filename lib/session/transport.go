// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"time"

	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/usi"
)

// transport is the Session seen as the relay machine's side-effect
// sink. Every method runs on the event loop goroutine.
type transport Session

func (t *transport) session() *Session {
	return (*Session)(t)
}

// Write sends command to a peer. Engine writes are queued; host writes
// go straight to the host output, and the first failure ends the
// session.
func (t *transport) Write(to usi.Peer, command usi.Command) {
	session := t.session()
	line := command.String()
	session.record(transcript.Record{Type: transcript.WriteKind(to), Data: line})

	switch to {
	case usi.Host:
		if session.hostErr != nil {
			return
		}
		if _, err := io.WriteString(session.config.HostOutput, line+"\n"); err != nil {
			session.logger.Error("host write failed", "line", line, "error", err)
			session.hostErr = err
		}
	case usi.Primary:
		session.config.Primary.Send(line)
	case usi.Backup:
		session.config.Backup.Send(line)
	}
}

// RequestQuit enters teardown: further engine output is recorded but
// not relayed, and the grace timer starts.
func (t *transport) RequestQuit() {
	session := t.session()
	if session.quitting {
		return
	}
	session.quitting = true
	session.watchdog.Disarm()
	session.record(transcript.Record{Type: transcript.KindQuit})
	session.graceTimer = session.clock.AfterFunc(session.config.QuitGrace, func() {
		select {
		case session.graceExpired <- struct{}{}:
		default:
		}
	})
}

// ArmWatchdog restarts the primary deadline.
func (t *transport) ArmWatchdog(timeout time.Duration) {
	t.session().watchdog.Arm(timeout)
}

// DisarmWatchdog cancels the primary deadline.
func (t *transport) DisarmWatchdog() {
	t.session().watchdog.Disarm()
}
