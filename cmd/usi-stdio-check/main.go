// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// usi-stdio-check stress-tests the stdio plumbing the mediator relies
// on. It starts two copies of an echoing engine (usi-mock-engine by
// default), floods both with random "echo" lines, optionally injects a
// fault into the primary part way through, and records every write,
// read, write error, timeout and exit as a transcript.
//
// The transcript is audited on the fly; with --fault ok any unechoed
// or unexpected line is a failure. The same transcript can be checked
// again later with usi-failover-audit --echo.
//
// Timeline (defaults): faults at 2s, writing stops at 5s, both engines
// are killed at 6s.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/select766/shogi-usi-failover/lib/audit"
	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/logging"
	"github.com/select766/shogi-usi-failover/lib/process"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	code, err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	process.Exit(code, err)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	settings := Settings{
		Engine:   "usi-mock-engine",
		FaultAt:  2 * time.Second,
		StopAt:   5 * time.Second,
		KillAt:   6 * time.Second,
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	}
	var fault, output string
	flagSet := pflag.NewFlagSet("usi-stdio-check", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&settings.Engine, "engine", settings.Engine, "echoing engine executable")
	flagSet.StringArrayVar(&settings.Args, "engine-arg", nil, "argument for the engine (repeatable)")
	flagSet.StringVar(&fault, "fault", "ok", "fault injected into the primary: ok, stop-read, stop-write, exit")
	flagSet.DurationVar(&settings.FaultAt, "fault-at", settings.FaultAt, "when the fault command is sent")
	flagSet.DurationVar(&settings.StopAt, "stop-at", settings.StopAt, "when writing stops")
	flagSet.DurationVar(&settings.KillAt, "kill-at", settings.KillAt, "when both engines are killed")
	flagSet.DurationVar(&settings.Interval, "interval", settings.Interval, "delay between echo lines")
	flagSet.DurationVar(&settings.Timeout, "timeout", settings.Timeout, "primary silence that counts as a failure")
	flagSet.StringVarP(&output, "output", "o", "-", "transcript path (- for stdout; .cbor, .zst and .lz4 suffixes honoured)")

	if len(args) > 0 && args[0] == "--version" {
		version.Print("usi-stdio-check")
		return 0, nil
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, nil
		}
		return 2, err
	}
	parsed, err := ParseFault(fault)
	if err != nil {
		return 2, err
	}
	settings.Fault = parsed
	if err := settings.Validate(); err != nil {
		return 2, err
	}

	logger, closeLog, err := logging.New(logging.Options{Stderr: stderr})
	if err != nil {
		return 1, err
	}
	defer closeLog()

	var recorder *transcript.Recorder
	if output == "-" {
		recorder, err = transcript.NewRecorder(stdout, transcript.FormatJSONL, clock.Real())
	} else {
		recorder, err = transcript.Create(output, "", clock.Real())
	}
	if err != nil {
		return 1, err
	}

	checker := NewChecker(settings, recorder, clock.Real(), logger)
	runErr := checker.Run(ctx)
	closeErr := recorder.Close()
	if err := errors.Join(runErr, closeErr); err != nil {
		return 1, err
	}

	report := checker.Report()
	if err := audit.WriteText(stderr, report); err != nil {
		return 1, err
	}
	if settings.Fault == FaultOK && report.Violations() > 0 {
		return 1, fmt.Errorf("%d echo violations without an injected fault", report.Violations())
	}
	return 0, nil
}
