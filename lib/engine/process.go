// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/lineframe"
)

// DefaultKillDelay is how long Terminate waits after SIGTERM before
// sending SIGKILL.
const DefaultKillDelay = 2 * time.Second

// Config describes one engine subprocess.
type Config struct {
	// Name identifies the engine in logs ("primary", "backup").
	Name string

	// Path is the executable. Required.
	Path string

	// Args are command-line arguments, not including the program name.
	Args []string

	// WorkingDirectory is the child's working directory. Empty
	// inherits the mediator's.
	WorkingDirectory string

	// Env are extra KEY=VALUE entries appended to the mediator's
	// environment.
	Env []string

	// Stderr receives the child's stderr. Nil means os.Stderr.
	Stderr io.Writer

	// KillDelay is the SIGTERM to SIGKILL escalation delay. Zero means
	// DefaultKillDelay.
	KillDelay time.Duration

	// Clock schedules the SIGKILL escalation. Nil means the real clock.
	Clock clock.Clock

	// Logger receives lifecycle diagnostics. Nil discards.
	Logger *slog.Logger
}

// Process is a running (or exited) engine subprocess. Create with New,
// then call Start once.
type Process struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	events chan Event

	// emitMu guards closed and serializes sends on events against the
	// final close.
	emitMu sync.Mutex
	closed bool

	command *exec.Cmd
	writer  *lineWriter
	exited  chan struct{}

	started       bool
	terminateOnce sync.Once
	context       context.Context

	timerMu   sync.Mutex
	killTimer *clock.Timer
}

// New returns an unstarted Process.
func New(config Config) *Process {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Name != "" {
		logger = logger.With("engine", config.Name)
	}
	source := config.Clock
	if source == nil {
		source = clock.Real()
	}
	if config.KillDelay <= 0 {
		config.KillDelay = DefaultKillDelay
	}
	return &Process{
		config: config,
		logger: logger,
		clock:  source,
		events: make(chan Event, 64),
		exited: make(chan struct{}),
	}
}

// Name returns the configured engine name.
func (process *Process) Name() string {
	return process.config.Name
}

// Events returns the ordered event stream. It is closed after the
// EventExit event. Pending sends are abandoned when the context passed
// to Start is cancelled.
func (process *Process) Events() <-chan Event {
	return process.events
}

// Done is closed once the child has been reaped.
func (process *Process) Done() <-chan struct{} {
	return process.exited
}

// Start spawns the child. A spawn failure is returned directly and no
// events are delivered; the Events channel is closed.
func (process *Process) Start(ctx context.Context) error {
	if process.started {
		return errors.New("engine: process already started")
	}
	process.started = true
	process.context = ctx

	if process.config.Path == "" {
		process.abandon()
		return errors.New("engine: path is required")
	}

	command := exec.Command(process.config.Path, process.config.Args...)
	command.Dir = process.config.WorkingDirectory
	if len(process.config.Env) > 0 {
		command.Env = append(os.Environ(), process.config.Env...)
	}
	command.Stderr = process.config.Stderr
	if command.Stderr == nil {
		command.Stderr = os.Stderr
	}

	// Own process group so Terminate reaches the engine's children.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := command.StdinPipe()
	if err != nil {
		process.abandon()
		return fmt.Errorf("engine %s: stdin pipe: %w", process.config.Name, err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		process.abandon()
		return fmt.Errorf("engine %s: stdout pipe: %w", process.config.Name, err)
	}

	if err := command.Start(); err != nil {
		process.abandon()
		return fmt.Errorf("engine %s: starting %s: %w", process.config.Name, process.config.Path, err)
	}
	process.command = command
	process.logger.Info("engine started",
		"path", process.config.Path,
		"pid", command.Process.Pid,
		"working_directory", process.config.WorkingDirectory,
	)

	process.writer = newLineWriter(stdin, func(line string, err error) {
		process.logger.Warn("engine write failed", "line", line, "error", err)
		process.emit(Event{Kind: EventWriteError, Line: line, Err: err})
	})
	go process.writer.run()
	go process.read(stdout)
	return nil
}

// Send queues line for the child's stdin. It never blocks. Lines sent
// before Start, after a write failure, or after exit are dropped.
func (process *Process) Send(line string) {
	if process.writer == nil {
		return
	}
	process.writer.enqueue(line)
}

// Terminate sends SIGTERM to the child's process group and SIGKILL
// after the configured delay if the child is still running. Safe to
// call more than once and after exit.
func (process *Process) Terminate() {
	if process.command == nil {
		return
	}
	process.terminateOnce.Do(func() {
		select {
		case <-process.exited:
			return
		default:
		}
		processGroupID := -process.command.Process.Pid
		process.logger.Info("terminating engine", "pid", process.command.Process.Pid)
		if err := unix.Kill(processGroupID, unix.SIGTERM); err != nil {
			// Group already gone or unreachable; escalate.
			_ = unix.Kill(processGroupID, unix.SIGKILL)
			return
		}
		process.timerMu.Lock()
		defer process.timerMu.Unlock()
		process.killTimer = process.clock.AfterFunc(process.config.KillDelay, func() {
			select {
			case <-process.exited:
			default:
				process.logger.Warn("engine ignored SIGTERM, killing", "pid", -processGroupID)
				_ = unix.Kill(processGroupID, unix.SIGKILL)
			}
		})
	})
}

// read frames stdout into EventLine events, then reaps the child and
// emits EventExit.
func (process *Process) read(stdout io.Reader) {
	err := lineframe.Scan(stdout, func(line string) {
		process.emit(Event{Kind: EventLine, Line: line})
	})
	if err != nil {
		process.logger.Debug("engine stdout read ended", "error", err)
	}

	code, waitErr := exitStatus(process.command.Wait())
	process.writer.stop()
	close(process.exited)
	process.timerMu.Lock()
	process.killTimer.Stop()
	process.timerMu.Unlock()
	process.logger.Info("engine exited", "code", code)

	process.emit(Event{Kind: EventExit, Code: code, Err: waitErr})
	process.emitMu.Lock()
	process.closed = true
	close(process.events)
	process.emitMu.Unlock()
}

func (process *Process) emit(event Event) {
	process.emitMu.Lock()
	defer process.emitMu.Unlock()
	if process.closed {
		return
	}
	select {
	case process.events <- event:
	case <-process.context.Done():
	}
}

func (process *Process) abandon() {
	process.emitMu.Lock()
	process.closed = true
	close(process.events)
	process.emitMu.Unlock()
	close(process.exited)
}

// exitStatus converts the result of Cmd.Wait into a shell-style exit
// code. The error is non-nil only when the status is unknown.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
		return exitError.ExitCode(), nil
	}
	return -1, err
}
