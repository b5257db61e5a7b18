// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/testutil"
)

type output struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (o *output) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer.Write(data)
}

// take returns and clears the lines written so far.
func (o *output) take() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	text := strings.TrimSpace(o.buffer.String())
	o.buffer.Reset()
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func newTestMock(options Options) (*Mock, *output, *clock.FakeClock) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	out := &output{}
	if options.Move == "" {
		options.Move = "7g7f"
	}
	if options.Name == "" {
		options.Name = "mock"
	}
	if options.Think == 0 {
		options.Think = time.Second
	}
	return NewMock(options, out, fake), out, fake
}

func expectLines(t *testing.T, out *output, want ...string) {
	t.Helper()
	got := out.take()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestHandshake(t *testing.T) {
	mock, out, _ := newTestMock(Options{Name: "primary"})

	mock.Handle("usi")
	got := out.take()
	if len(got) < 2 || got[0] != "id name primary" || got[len(got)-1] != "usiok" {
		t.Errorf("usi output = %q", got)
	}
	mock.Handle("setoption name USI_Hash value 16")
	mock.Handle("isready")
	expectLines(t, out, "readyok")
}

func TestTimedSearch(t *testing.T) {
	mock, out, fake := newTestMock(Options{Move: "2g2f"})

	mock.Handle("position startpos")
	mock.Handle("go btime 0 wtime 0 byoyomi 1000")
	expectLines(t, out)

	fake.Advance(time.Second)
	expectLines(t, out, "info depth 1 score cp 0 pv 2g2f", "bestmove 2g2f")
}

func TestPonderStopAndHit(t *testing.T) {
	mock, out, fake := newTestMock(Options{})

	mock.Handle("go ponder btime 0 wtime 0")
	fake.Advance(time.Minute)
	expectLines(t, out)
	mock.Handle("stop")
	expectLines(t, out, "bestmove 7g7f")

	mock.Handle("go ponder byoyomi 1000")
	mock.Handle("ponderhit")
	fake.Advance(time.Second)
	expectLines(t, out, "info depth 1 score cp 0 pv 7g7f", "bestmove 7g7f")

	// stop while idle is ignored.
	mock.Handle("stop")
	expectLines(t, out)
}

func TestInfiniteWithInfo(t *testing.T) {
	mock, out, fake := newTestMock(Options{InfoInterval: 100 * time.Millisecond})

	mock.Handle("go infinite")
	fake.Advance(100 * time.Millisecond)
	fake.Advance(100 * time.Millisecond)
	expectLines(t, out, "info depth 1", "info depth 2")
	mock.Handle("stop")
	expectLines(t, out, "bestmove 7g7f")
	if fake.PendingCount() != 0 {
		t.Errorf("pending timers after stop = %d", fake.PendingCount())
	}
}

func TestFaults(t *testing.T) {
	t.Run("hang", func(t *testing.T) {
		mock, out, fake := newTestMock(Options{Fault: FaultHang})
		mock.Handle("go depth 1")
		fake.Advance(time.Hour)
		expectLines(t, out)
	})

	t.Run("exit on second go", func(t *testing.T) {
		mock, out, fake := newTestMock(Options{Fault: FaultExit, FaultAfter: 2, ExitCode: 5})
		mock.Handle("go depth 1")
		fake.Advance(time.Second)
		expectLines(t, out, "info depth 1 score cp 0 pv 7g7f", "bestmove 7g7f")
		mock.Handle("go depth 1")
		if code := testutil.RequireReceive(t, mock.exit, time.Second, "exit"); code != 5 {
			t.Errorf("exit code = %d, want 5", code)
		}
	})

	t.Run("mute", func(t *testing.T) {
		mock, out, fake := newTestMock(Options{Fault: FaultMute})
		mock.Handle("go depth 1")
		fake.Advance(time.Second)
		mock.Handle("isready")
		expectLines(t, out)
	})

	t.Run("deaf", func(t *testing.T) {
		mock, _, _ := newTestMock(Options{Fault: FaultDeaf})
		if mock.Handle("go depth 1") {
			t.Error("deaf fault should stop reading")
		}
	})
}

func TestStdioStressCommands(t *testing.T) {
	mock, out, _ := newTestMock(Options{ExitCode: 1})

	mock.Handle("echo P_abc123")
	expectLines(t, out, "echo P_abc123")

	mock.Handle("stop-write")
	mock.Handle("echo P_hidden")
	expectLines(t, out)

	if mock.Handle("stop-read") {
		t.Error("stop-read should stop reading")
	}
}

func TestRunUntilQuit(t *testing.T) {
	mock, out, _ := newTestMock(Options{})
	code, err := mock.Run(context.Background(), strings.NewReader("usi\nisready\nquit\nisready\n"))
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	got := out.take()
	if got[len(got)-1] != "readyok" {
		t.Errorf("output = %q", got)
	}
}

func TestRunEndsAtEOF(t *testing.T) {
	mock, _, _ := newTestMock(Options{})
	code, err := mock.Run(context.Background(), strings.NewReader("usi\n"))
	if err != nil || code != 0 {
		t.Errorf("Run = %d, %v", code, err)
	}
}

func TestRunFlags(t *testing.T) {
	if code, err := run(context.Background(), []string{"--fault", "explode"}, strings.NewReader(""), io.Discard, io.Discard); err == nil || code != 2 {
		t.Errorf("bad fault: run = %d, %v", code, err)
	}

	var stdout bytes.Buffer
	code, err := run(context.Background(), []string{"--name", "flagged", "--think", "0s"}, strings.NewReader("usi\ngo depth 1\nquit\n"), &stdout, io.Discard)
	if err != nil || code != 0 {
		t.Fatalf("run = %d, %v", code, err)
	}
	if !strings.Contains(stdout.String(), "id name flagged") || !strings.Contains(stdout.String(), "bestmove 7g7f") {
		t.Errorf("stdout = %q", stdout.String())
	}
}
