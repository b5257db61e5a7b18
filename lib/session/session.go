// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/engine"
	"github.com/select766/shogi-usi-failover/lib/lineframe"
	"github.com/select766/shogi-usi-failover/lib/relay"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/usi"
	"github.com/select766/shogi-usi-failover/lib/watchdog"
)

// DefaultQuitGrace bounds how long a quit waits for engine exits.
const DefaultQuitGrace = 5 * time.Second

// DefaultTerminateWait bounds how long teardown waits for terminated
// engines to report their exit.
const DefaultTerminateWait = 3 * time.Second

// Engine is one supervised engine subprocess. *engine.Process
// satisfies it.
type Engine interface {
	// Start spawns the engine. An error is a spawn failure; Events is
	// closed in that case.
	Start(ctx context.Context) error

	// Events delivers output lines, write errors and the final exit.
	Events() <-chan engine.Event

	// Send queues a line for the engine's stdin without blocking.
	Send(line string)

	// Terminate stops the engine forcibly. Idempotent.
	Terminate()
}

// Config holds the construction parameters for a Session.
type Config struct {
	// HostInput is the host's command stream (the mediator's stdin).
	HostInput io.Reader

	// HostOutput receives responses for the host (the mediator's
	// stdout). Nothing else may write to it.
	HostOutput io.Writer

	// Primary and Backup are the two engines. Both required.
	Primary Engine
	Backup  Engine

	// Clock drives the watchdog and teardown timers. Nil means real.
	Clock clock.Clock

	// WatchdogTimeout is the primary search deadline. Required.
	WatchdogTimeout time.Duration

	// QuitGrace bounds the wait for engine exits after quit. Zero
	// means DefaultQuitGrace.
	QuitGrace time.Duration

	// TerminateWait bounds the wait for terminated engines to exit.
	// Zero means DefaultTerminateWait.
	TerminateWait time.Duration

	// BackupOptions are the backup's startup setoption groups.
	BackupOptions [][]string

	// Transcript, when non-nil, records every line and lifecycle event.
	// The session does not close it.
	Transcript *transcript.Recorder

	// Logger receives diagnostics. Nil discards.
	Logger *slog.Logger

	// OnTransition, when set, is called on the event loop goroutine
	// after every relay state change.
	OnTransition func(from, to relay.State)
}

// Session is a single mediator run. Create with New and call Run once.
type Session struct {
	config     Config
	clock      clock.Clock
	logger     *slog.Logger
	transcript *transcript.Recorder

	machine  *relay.Machine
	watchdog *watchdog.Watchdog

	// expiries carries watchdog generations from clock callbacks into
	// the event loop.
	expiries chan uint64

	// stopped is closed when Run returns, releasing blocked callbacks.
	stopped chan struct{}

	// graceExpired is signalled by the quit grace timer.
	graceExpired chan struct{}
	graceTimer   *clock.Timer

	quitting bool

	// hostErr is the first host write failure. Once set the loop exits.
	hostErr error

	primaryExited bool
	primaryCode   int
	backupExited  bool
	backupCode    int

	recordFailed bool
}

// Result summarizes a completed session.
type Result struct {
	// ExitCode is the process exit status the mediator should use.
	ExitCode int

	// FailedOver reports whether the backup took over.
	FailedOver bool

	// FinalState is the relay state when the session ended.
	FinalState relay.State
}

// New validates config and returns a Session.
func New(config Config) (*Session, error) {
	if config.HostInput == nil || config.HostOutput == nil {
		return nil, errors.New("session: host input and output are required")
	}
	if config.Primary == nil || config.Backup == nil {
		return nil, errors.New("session: primary and backup engines are required")
	}
	if config.QuitGrace <= 0 {
		config.QuitGrace = DefaultQuitGrace
	}
	if config.TerminateWait <= 0 {
		config.TerminateWait = DefaultTerminateWait
	}
	source := config.Clock
	if source == nil {
		source = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	session := &Session{
		config:       config,
		clock:        source,
		logger:       logger,
		transcript:   config.Transcript,
		expiries:     make(chan uint64, 16),
		stopped:      make(chan struct{}),
		graceExpired: make(chan struct{}, 1),
	}
	session.watchdog = watchdog.New(source, session.postExpiry)

	machine, err := relay.New(relay.Config{
		Transport:       (*transport)(session),
		BackupOptions:   config.BackupOptions,
		WatchdogTimeout: config.WatchdogTimeout,
		Logger:          logger,
		OnTransition: func(from, to relay.State) {
			session.logger.Info("state changed", "from", from.String(), "to", to.String())
			session.record(transcript.Record{Type: transcript.KindState, Data: to.String()})
			if config.OnTransition != nil {
				config.OnTransition(from, to)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	session.machine = machine
	return session, nil
}

// State returns the relay state. Only meaningful after Run returns.
func (session *Session) State() relay.State {
	return session.machine.State()
}

// Run drives the session to completion. The returned error is non-nil
// only when the session ended because of a failure (host write error,
// cancelled context); Result.ExitCode is set either way.
func (session *Session) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(session.stopped)
	defer session.watchdog.Disarm()

	primaryEvents := session.start(ctx, usi.Primary, session.config.Primary)
	backupEvents := session.start(ctx, usi.Backup, session.config.Backup)
	if primaryEvents == nil {
		session.primaryExited = true
		session.primaryCode = 1
		session.record(transcript.Record{Type: transcript.KindPrimaryFailure, Data: string(relay.FailureSpawn)})
		session.machine.HandlePrimaryFailure(relay.FailureSpawn)
	}
	if backupEvents == nil {
		session.backupExited = true
		session.backupCode = 1
	}

	session.machine.Start()

	hostLines := make(chan string, 64)
	hostDone := make(chan error, 1)
	go func() {
		hostDone <- lineframe.Scan(session.config.HostInput, func(line string) {
			select {
			case hostLines <- line:
			case <-ctx.Done():
			}
		})
	}()

	for {
		if result, done := session.finished(); done {
			session.teardown()
			return result, session.hostErr
		}

		select {
		case line := <-hostLines:
			session.handleHostLine(line)

		case err := <-hostDone:
			hostDone = nil
			// Lines emitted before EOF may still be buffered.
			for drained := false; !drained; {
				select {
				case line := <-hostLines:
					session.handleHostLine(line)
				default:
					drained = true
				}
			}
			if err != nil {
				session.logger.Warn("host input failed", "error", err)
			} else {
				session.logger.Info("host input closed")
			}
			if !session.quitting {
				session.record(transcript.Record{Type: transcript.KindQuit, Data: "host-eof"})
				session.machine.HandleCommand(usi.Host, usi.New(usi.CommandQuit))
			}

		case event, ok := <-primaryEvents:
			if !ok {
				primaryEvents = nil
				continue
			}
			session.handlePrimaryEvent(event)

		case event, ok := <-backupEvents:
			if !ok {
				backupEvents = nil
				continue
			}
			session.handleBackupEvent(event)

		case generation := <-session.expiries:
			deadline, _ := session.watchdog.Deadline()
			if session.quitting || !session.watchdog.Expire(generation) {
				continue
			}
			session.logger.Warn("primary watchdog expired",
				"timeout", session.config.WatchdogTimeout,
				"deadline", deadline,
				"state", session.machine.State().String(),
			)
			session.record(transcript.Record{Type: transcript.KindPrimaryFailure, Data: string(relay.FailureTimeout)})
			session.machine.HandlePrimaryFailure(relay.FailureTimeout)

		case <-session.graceExpired:
			session.logger.Warn("engines did not exit within quit grace period",
				"grace", session.config.QuitGrace,
				"primary_exited", session.primaryExited,
				"backup_exited", session.backupExited,
			)
			session.teardown()
			return session.result(0), nil

		case <-ctx.Done():
			session.logger.Info("session cancelled", "error", ctx.Err())
			session.teardown()
			return session.result(1), ctx.Err()
		}
	}
}

// start spawns one engine and returns its event channel, or nil on a
// spawn failure.
func (session *Session) start(ctx context.Context, peer usi.Peer, target Engine) <-chan engine.Event {
	if err := target.Start(ctx); err != nil {
		session.logger.Error("engine failed to start", "engine", string(peer), "error", err)
		session.note(session.transcript.RecordExit(exitKind(peer), 1, err))
		return nil
	}
	return target.Events()
}

func (session *Session) handleHostLine(line string) {
	session.record(transcript.Record{Type: transcript.KindHostRead, Data: line})
	if session.quitting {
		session.logger.Debug("ignoring host input after quit", "line", line)
		return
	}
	session.machine.HandleCommand(usi.Host, usi.Parse(line))
}

func (session *Session) handlePrimaryEvent(event engine.Event) {
	switch event.Kind {
	case engine.EventLine:
		session.record(transcript.Record{Type: transcript.KindPrimaryRead, Data: event.Line})
		if !session.quitting {
			session.machine.HandleCommand(usi.Primary, usi.Parse(event.Line))
		}
	case engine.EventWriteError:
		session.note(session.transcript.RecordError(transcript.KindPrimaryWriteError, event.Line, event.Err))
		if !session.quitting {
			session.record(transcript.Record{Type: transcript.KindPrimaryFailure, Data: string(relay.FailureWrite)})
			session.machine.HandlePrimaryFailure(relay.FailureWrite)
		}
	case engine.EventExit:
		session.primaryExited = true
		session.primaryCode = event.Code
		session.note(session.transcript.RecordExit(transcript.KindPrimaryExit, event.Code, event.Err))
		if !session.quitting {
			session.record(transcript.Record{Type: transcript.KindPrimaryFailure, Data: string(relay.FailureExit)})
			session.machine.HandlePrimaryFailure(relay.FailureExit)
		}
	}
}

func (session *Session) handleBackupEvent(event engine.Event) {
	switch event.Kind {
	case engine.EventLine:
		session.record(transcript.Record{Type: transcript.KindBackupRead, Data: event.Line})
		if !session.quitting {
			session.machine.HandleCommand(usi.Backup, usi.Parse(event.Line))
		}
	case engine.EventWriteError:
		session.note(session.transcript.RecordError(transcript.KindBackupWriteError, event.Line, event.Err))
		if !session.quitting {
			session.logger.Error("backup write failed; no recovery available", "error", event.Err)
		}
	case engine.EventExit:
		session.backupExited = true
		session.backupCode = event.Code
		session.note(session.transcript.RecordExit(transcript.KindBackupExit, event.Code, event.Err))
		if !session.quitting {
			session.logger.Error("backup exited; no recovery available", "code", event.Code)
		}
	}
}

// finished reports whether the loop should stop, and with what result.
func (session *Session) finished() (Result, bool) {
	if session.hostErr != nil {
		return session.result(1), true
	}
	if !session.primaryExited || !session.backupExited {
		return Result{}, false
	}
	if session.quitting {
		return session.result(0), true
	}
	code := session.primaryCode
	if session.machine.Failed() {
		code = session.backupCode
	}
	session.logger.Warn("both engines exited without quit", "exit_code", code)
	return session.result(code), true
}

func (session *Session) result(code int) Result {
	return Result{
		ExitCode:   code,
		FailedOver: session.machine.Failed(),
		FinalState: session.machine.State(),
	}
}

// teardown terminates engines that are still running and waits a
// bounded time for their exits, recording them.
func (session *Session) teardown() {
	session.graceTimer.Stop()
	session.watchdog.Disarm()

	pending := 0
	var primaryEvents, backupEvents <-chan engine.Event
	if !session.primaryExited {
		session.config.Primary.Terminate()
		primaryEvents = session.config.Primary.Events()
		pending++
	}
	if !session.backupExited {
		session.config.Backup.Terminate()
		backupEvents = session.config.Backup.Events()
		pending++
	}
	if pending == 0 {
		return
	}

	deadline := session.clock.After(session.config.TerminateWait)
	for primaryEvents != nil || backupEvents != nil {
		select {
		case event, ok := <-primaryEvents:
			if !ok {
				primaryEvents = nil
				continue
			}
			if event.Kind == engine.EventExit {
				session.primaryExited = true
				session.note(session.transcript.RecordExit(transcript.KindPrimaryExit, event.Code, event.Err))
			}
		case event, ok := <-backupEvents:
			if !ok {
				backupEvents = nil
				continue
			}
			if event.Kind == engine.EventExit {
				session.backupExited = true
				session.note(session.transcript.RecordExit(transcript.KindBackupExit, event.Code, event.Err))
			}
		case <-deadline:
			session.logger.Warn("engines still running after terminate",
				"primary_exited", session.primaryExited,
				"backup_exited", session.backupExited,
			)
			return
		}
	}
}

// postExpiry hands a watchdog generation to the event loop. It blocks
// while the loop is behind so the live expiry is never lost, and gives
// up once Run has returned.
func (session *Session) postExpiry(generation uint64) {
	select {
	case session.expiries <- generation:
	case <-session.stopped:
	}
}

func (session *Session) record(record transcript.Record) {
	session.note(session.transcript.Write(record))
}

// note logs the first transcript failure.
func (session *Session) note(err error) {
	if err != nil && !session.recordFailed {
		session.recordFailed = true
		session.logger.Error("transcript write failed; further failures are not logged", "error", err)
	}
}

func exitKind(peer usi.Peer) transcript.Kind {
	if peer == usi.Primary {
		return transcript.KindPrimaryExit
	}
	return transcript.KindBackupExit
}
