// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// usi-mock-engine is a scripted USI engine for exercising the mediator
// without a real shogi engine. It answers the handshake, plays a fixed
// move after a configurable think time, honours ponder/ponderhit/stop,
// and can misbehave on demand:
//
//	--fault hang      never answer go
//	--fault exit      exit with --exit-code on go
//	--fault mute      stop writing after go (keeps reading)
//	--fault deaf      stop reading after go (keeps running)
//
// The stdio stress commands from usi-stdio-check are also understood:
// "echo ..." is echoed back, and "stop-read", "stop-write" and "exit"
// trigger the corresponding fault immediately.
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

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/process"
	"github.com/select766/shogi-usi-failover/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM)
	code, err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	process.Exit(code, err)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	var options Options
	var fault string
	flagSet := pflag.NewFlagSet("usi-mock-engine", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&options.Name, "name", "usi-mock-engine", "engine name reported in id name")
	flagSet.StringVar(&options.Move, "move", "7g7f", "move returned by every search")
	flagSet.DurationVar(&options.Think, "think", 100*time.Millisecond, "time spent on each timed search")
	flagSet.DurationVar(&options.InfoInterval, "info-interval", 0, "emit an info line this often while searching (0 disables)")
	flagSet.StringVar(&fault, "fault", "none", "misbehaviour on go: none, hang, exit, mute, deaf")
	flagSet.IntVar(&options.ExitCode, "exit-code", 1, "exit status for --fault exit and the exit command")
	flagSet.IntVar(&options.FaultAfter, "fault-after", 1, "inject the fault on this go (1 = first)")

	if len(args) > 0 && args[0] == "--version" {
		version.Print("usi-mock-engine")
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
	options.Fault = parsed

	mock := NewMock(options, stdout, clock.Real())
	return mock.Run(ctx, stdin)
}

// Fault selects how the mock misbehaves on go.
type Fault string

const (
	FaultNone Fault = "none"
	FaultHang Fault = "hang"
	FaultExit Fault = "exit"
	FaultMute Fault = "mute"
	FaultDeaf Fault = "deaf"
)

// ParseFault validates a --fault value.
func ParseFault(name string) (Fault, error) {
	switch fault := Fault(name); fault {
	case FaultNone, FaultHang, FaultExit, FaultMute, FaultDeaf:
		return fault, nil
	case "":
		return FaultNone, nil
	default:
		return "", fmt.Errorf("unknown fault %q (want none, hang, exit, mute, deaf)", name)
	}
}
