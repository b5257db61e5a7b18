// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/logging"
	"github.com/select766/shogi-usi-failover/lib/testutil"
	"github.com/select766/shogi-usi-failover/lib/transcript"
)

const echoEngine = `
while IFS= read -r line; do
  case "$line" in
    echo\ *) printf '%s\n' "$line" ;;
    exit) exit 1 ;;
    stop-write) exec >/dev/null ;;
    stop-read) sleep 60 ;;
  esac
done`

func runChecker(t *testing.T, settings Settings) (*Checker, []transcript.Record) {
	t.Helper()
	settings.Engine = testutil.WriteScript(t, t.TempDir(), "echo-engine", echoEngine)
	if err := settings.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var buffer bytes.Buffer
	recorder, err := transcript.NewRecorder(&buffer, transcript.FormatJSONL, clock.Real())
	if err != nil {
		t.Fatal(err)
	}
	checker := NewChecker(settings, recorder, clock.Real(), logging.Discard())

	done := make(chan error, 1)
	go func() { done <- checker.Run(context.Background()) }()
	if err := testutil.RequireReceive(t, done, 20*time.Second, "waiting for checker"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	reader, err := transcript.NewReader(&buffer, transcript.FormatJSONL)
	if err != nil {
		t.Fatal(err)
	}
	var records []transcript.Record
	if err := reader.Each(func(record transcript.Record) error {
		records = append(records, record)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return checker, records
}

func TestCheckerWithoutFault(t *testing.T) {
	checker, records := runChecker(t, Settings{
		Fault:    FaultOK,
		StopAt:   150 * time.Millisecond,
		KillAt:   time.Second,
		Interval: 5 * time.Millisecond,
		Timeout:  5 * time.Second,
	})

	report := checker.Report()
	if report.Primary.Written == 0 || report.Backup.Written == 0 {
		t.Fatalf("nothing written: %+v", report)
	}
	if report.Violations() != 0 {
		t.Errorf("echo violations: primary %+v backup %+v", report.Primary, report.Backup)
	}
	if report.Counts[transcript.KindStop] != 1 || report.Counts[transcript.KindKill] != 1 {
		t.Errorf("counts = %v", report.Counts)
	}
	if report.Counts[transcript.KindPrimaryFailure] != 0 {
		t.Error("primary should not time out")
	}

	// Nothing is written after stop.
	stopped := false
	for _, record := range records {
		switch record.Type {
		case transcript.KindStop:
			stopped = true
		case transcript.KindPrimaryWrite, transcript.KindBackupWrite:
			if stopped {
				t.Errorf("write after stop: %+v", record)
			}
		}
	}
}

func TestCheckerExitFault(t *testing.T) {
	checker, records := runChecker(t, Settings{
		Fault:    FaultExit,
		FaultAt:  50 * time.Millisecond,
		StopAt:   300 * time.Millisecond,
		KillAt:   800 * time.Millisecond,
		Interval: 5 * time.Millisecond,
		Timeout:  200 * time.Millisecond,
	})

	var primaryExit *int
	for _, record := range records {
		if record.Type == transcript.KindPrimaryExit {
			primaryExit = record.Code
		}
	}
	if primaryExit == nil || *primaryExit != 1 {
		t.Errorf("primary exit code = %v, want 1", primaryExit)
	}

	report := checker.Report()
	if report.Counts[transcript.KindPrimaryFailure] != 1 {
		t.Errorf("primary-failure records = %d, want 1", report.Counts[transcript.KindPrimaryFailure])
	}
	if report.Primary.NotEchoed == 0 {
		t.Error("writes after the primary exited should be unechoed")
	}
	if report.Backup.NotEchoed != 0 || len(report.Backup.Unsent) != 0 {
		t.Errorf("backup should be unaffected: %+v", report.Backup)
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{Engine: "e", Interval: time.Millisecond, Timeout: time.Second, StopAt: time.Second, KillAt: 2 * time.Second}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid settings: %v", err)
	}
	invalid := valid
	invalid.KillAt = time.Millisecond
	if err := invalid.Validate(); err == nil {
		t.Error("kill before stop should be rejected")
	}
	invalid = valid
	invalid.Engine = ""
	invalid.Interval = 0
	err := invalid.Validate()
	if err == nil || !strings.Contains(err.Error(), "--engine") || !strings.Contains(err.Error(), "--interval") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestRandomPayload(t *testing.T) {
	for i := 0; i < 200; i++ {
		payload := randomPayload()
		if len(payload) < 1 || len(payload) > 100 {
			t.Fatalf("payload length %d", len(payload))
		}
		if strings.Trim(payload, payloadAlphabet) != "" {
			t.Fatalf("payload %q has characters outside the alphabet", payload)
		}
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	if code, err := run(context.Background(), []string{"--fault", "crash"}, io.Discard, io.Discard); err == nil || code != 2 {
		t.Errorf("bad fault: run = %d, %v", code, err)
	}
	if code, err := run(context.Background(), []string{"--stop-at", "2s", "--kill-at", "1s"}, io.Discard, io.Discard); err == nil || code != 2 {
		t.Errorf("bad timeline: run = %d, %v", code, err)
	}
}
