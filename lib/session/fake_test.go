// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/select766/shogi-usi-failover/lib/engine"
	"github.com/select766/shogi-usi-failover/lib/testutil"
)

const testTimeout = 10 * time.Second

// fakeEngine is an in-memory Engine. Lines the session sends appear on
// sent; the test injects output with emit and ends it with exit.
type fakeEngine struct {
	name     string
	startErr error

	// exitOnQuit makes the engine exit with status 0 when it receives
	// quit. exitOnTerminate makes Terminate end it with status 143.
	exitOnQuit      bool
	exitOnTerminate bool

	events     chan engine.Event
	sent       chan string
	terminated chan struct{}

	mu             sync.Mutex
	exited         bool
	terminateCalls int
}

func newFakeEngine(name string) *fakeEngine {
	return &fakeEngine{
		name:            name,
		exitOnQuit:      true,
		exitOnTerminate: true,
		events:          make(chan engine.Event, 256),
		sent:            make(chan string, 256),
		terminated:      make(chan struct{}),
	}
}

func (fake *fakeEngine) Start(ctx context.Context) error {
	if fake.startErr != nil {
		fake.mu.Lock()
		fake.exited = true
		fake.mu.Unlock()
		close(fake.events)
		return fake.startErr
	}
	return nil
}

func (fake *fakeEngine) Events() <-chan engine.Event {
	return fake.events
}

func (fake *fakeEngine) Send(line string) {
	fake.mu.Lock()
	exited := fake.exited
	fake.mu.Unlock()
	if exited {
		return
	}
	fake.sent <- line
	if line == "quit" && fake.exitOnQuit {
		fake.exit(0)
	}
}

func (fake *fakeEngine) Terminate() {
	fake.mu.Lock()
	fake.terminateCalls++
	first := fake.terminateCalls == 1
	fake.mu.Unlock()
	if first {
		close(fake.terminated)
	}
	if fake.exitOnTerminate {
		fake.exit(143)
	}
}

func (fake *fakeEngine) emit(line string) {
	fake.events <- engine.Event{Kind: engine.EventLine, Line: line}
}

func (fake *fakeEngine) writeError(line string) {
	fake.events <- engine.Event{Kind: engine.EventWriteError, Line: line, Err: errors.New("broken pipe")}
}

func (fake *fakeEngine) exit(code int) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.exited {
		return
	}
	fake.exited = true
	fake.events <- engine.Event{Kind: engine.EventExit, Code: code}
	close(fake.events)
}

// expect reads the next line sent to the engine and compares it.
func (fake *fakeEngine) expect(t *testing.T, want string) {
	t.Helper()
	got := testutil.RequireReceive(t, fake.sent, testTimeout, "waiting for %s to receive %q", fake.name, want)
	if got != want {
		t.Fatalf("%s received %q, want %q", fake.name, got, want)
	}
}

// expectNothing fails if any line is already queued for the engine.
func (fake *fakeEngine) expectNothing(t *testing.T) {
	t.Helper()
	testutil.RequireEmpty(t, fake.sent, "%s received a line", fake.name)
}

// hostSink collects host output lines. Writes never block.
type hostSink struct {
	lines chan string
	err   error

	mu      sync.Mutex
	partial string
}

func newHostSink() *hostSink {
	return &hostSink{lines: make(chan string, 256)}
}

func (sink *hostSink) Write(data []byte) (int, error) {
	if sink.err != nil {
		return 0, sink.err
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.partial += string(data)
	for {
		index := strings.IndexByte(sink.partial, '\n')
		if index < 0 {
			break
		}
		sink.lines <- sink.partial[:index]
		sink.partial = sink.partial[index+1:]
	}
	return len(data), nil
}

func (sink *hostSink) expect(t *testing.T, want string) {
	t.Helper()
	got := testutil.RequireReceive(t, sink.lines, testTimeout, "waiting for host to receive %q", want)
	if got != want {
		t.Fatalf("host received %q, want %q", got, want)
	}
}

func (sink *hostSink) expectNothing(t *testing.T) {
	t.Helper()
	testutil.RequireEmpty(t, sink.lines, "host received a line")
}
