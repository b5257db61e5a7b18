// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/select766/shogi-usi-failover/lib/testutil"
)

const eventTimeout = 10 * time.Second

func startShell(t *testing.T, script string, configure func(*Config)) *Process {
	t.Helper()
	config := Config{
		Name: "test",
		Path: "/bin/sh",
		Args: []string{"-c", script},
	}
	if configure != nil {
		configure(&config)
	}
	process := New(config)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		process.Terminate()
		cancel()
	})
	if err := process.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return process
}

// drain reads events until the channel closes.
func drain(t *testing.T, process *Process) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case event, ok := <-process.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-time.After(eventTimeout): //nolint:realclock test hang prevention
			t.Fatalf("timed out waiting for engine events; have %v", events)
		}
	}
}

func TestProcessEchoesLines(t *testing.T) {
	process := startShell(t, `while read line; do echo "got $line"; [ "$line" = quit ] && exit 0; done`, nil)

	process.Send("usi")
	process.Send("isready")
	process.Send("quit")

	events := drain(t, process)
	var lines []string
	for _, event := range events[:len(events)-1] {
		if event.Kind != EventLine {
			t.Fatalf("unexpected event before exit: %+v", event)
		}
		lines = append(lines, event.Line)
	}
	if got := strings.Join(lines, "|"); got != "got usi|got isready|got quit" {
		t.Errorf("lines = %q", got)
	}
	last := events[len(events)-1]
	if last.Kind != EventExit || last.Code != 0 {
		t.Errorf("final event = %+v, want exit 0", last)
	}
}

func TestProcessStripsCarriageReturns(t *testing.T) {
	process := startShell(t, `printf 'usiok\r\nreadyok\r\n'`, nil)

	events := drain(t, process)
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Line != "usiok" || events[1].Line != "readyok" {
		t.Errorf("lines = %q, %q", events[0].Line, events[1].Line)
	}
}

func TestProcessReportsExitCode(t *testing.T) {
	process := startShell(t, `echo partial; exit 3`, nil)

	events := drain(t, process)
	if len(events) != 2 || events[0].Line != "partial" {
		t.Fatalf("events = %+v", events)
	}
	if events[1].Kind != EventExit || events[1].Code != 3 {
		t.Errorf("exit event = %+v, want code 3", events[1])
	}
	testutil.RequireClosed(t, process.Done(), eventTimeout, "process should be reaped")
}

func TestProcessWorkingDirectoryAndEnv(t *testing.T) {
	directory := t.TempDir()
	process := startShell(t, `pwd; echo "$USI_ENGINE_TEST"`, func(config *Config) {
		config.WorkingDirectory = directory
		config.Env = []string{"USI_ENGINE_TEST=hello"}
	})

	events := drain(t, process)
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	resolved, err := filepath.EvalSymlinks(directory)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Line != resolved && events[0].Line != directory {
		t.Errorf("pwd = %q, want %q", events[0].Line, directory)
	}
	if events[1].Line != "hello" {
		t.Errorf("env = %q", events[1].Line)
	}
}

func TestProcessStartFailure(t *testing.T) {
	process := New(Config{Name: "missing", Path: filepath.Join(t.TempDir(), "no-such-engine")})
	if err := process.Start(context.Background()); err == nil {
		t.Fatal("expected spawn error")
	}
	if _, ok := <-process.Events(); ok {
		t.Error("events channel should be closed after a spawn failure")
	}
	testutil.RequireClosed(t, process.Done(), eventTimeout, "done after spawn failure")

	// Send and Terminate are harmless on a process that never ran.
	process.Send("usi")
	process.Terminate()
}

func TestProcessStartTwice(t *testing.T) {
	process := startShell(t, `exit 0`, nil)
	if err := process.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	drain(t, process)
}

func TestProcessTerminateSendsSIGTERM(t *testing.T) {
	process := startShell(t, `echo ready; sleep 30`, func(config *Config) {
		config.KillDelay = time.Minute
	})

	first := testutil.RequireReceive(t, process.Events(), eventTimeout, "waiting for ready")
	if first.Line != "ready" {
		t.Fatalf("first event = %+v", first)
	}
	process.Terminate()

	events := drain(t, process)
	last := events[len(events)-1]
	if last.Kind != EventExit || last.Code != 128+15 {
		t.Errorf("exit event = %+v, want SIGTERM status", last)
	}
}

func TestProcessTerminateEscalatesToSIGKILL(t *testing.T) {
	// An ignored signal disposition is inherited by sleep as well.
	process := startShell(t, `trap "" TERM; echo ready; sleep 30`, func(config *Config) {
		config.KillDelay = 100 * time.Millisecond
	})

	testutil.RequireReceive(t, process.Events(), eventTimeout, "waiting for ready")
	process.Terminate()
	process.Terminate()

	events := drain(t, process)
	last := events[len(events)-1]
	if last.Kind != EventExit || last.Code != 128+9 {
		t.Errorf("exit event = %+v, want SIGKILL status", last)
	}
}

type failingWriter struct {
	mu      sync.Mutex
	written []string
	failAt  int
}

func (writer *failingWriter) Write(data []byte) (int, error) {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.written) == writer.failAt {
		return 0, errors.New("broken pipe")
	}
	writer.written = append(writer.written, string(data))
	return len(data), nil
}

func TestLineWriterReportsFirstFailureOnce(t *testing.T) {
	output := &failingWriter{failAt: 2}
	failures := make(chan string, 4)
	writer := newLineWriter(output, func(line string, err error) {
		failures <- line
	})
	go writer.run()

	writer.enqueue("usi")
	writer.enqueue("isready")
	writer.enqueue("go")
	writer.enqueue("stop")

	failed := testutil.RequireReceive(t, failures, eventTimeout, "waiting for failure")
	if failed != "go" {
		t.Errorf("failed line = %q, want go", failed)
	}
	testutil.RequireClosed(t, writer.done, eventTimeout, "writer should stop after failure")

	writer.enqueue("quit")
	select {
	case extra := <-failures:
		t.Errorf("unexpected second failure for %q", extra)
	default:
	}

	output.mu.Lock()
	defer output.mu.Unlock()
	if got := strings.Join(output.written, ""); got != "usi\nisready\n" {
		t.Errorf("written = %q", got)
	}
}

func TestLineWriterStop(t *testing.T) {
	output := &failingWriter{failAt: -1}
	writer := newLineWriter(output, func(string, error) {
		t.Error("unexpected failure")
	})
	go writer.run()
	writer.stop()
	testutil.RequireClosed(t, writer.done, eventTimeout, "writer should exit on stop")

	writer.enqueue("usi")
	output.mu.Lock()
	defer output.mu.Unlock()
	if len(output.written) != 0 {
		t.Errorf("written after stop: %q", output.written)
	}
}

func TestEventKindString(t *testing.T) {
	for kind, want := range map[EventKind]string{
		EventLine:       "line",
		EventWriteError: "write-error",
		EventExit:       "exit",
		EventKind(9):    "EventKind(9)",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(kind), got, want)
		}
	}
}
