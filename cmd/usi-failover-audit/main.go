// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// usi-failover-audit checks a mediator or usi-stdio-check transcript.
//
// It always prints per-kind record counts and the number of synthetic
// bestmove resign lines the host received. --echo adds echo accounting
// for both engines; --failover reports writes to the primary (other
// than quit) after the session failed over. The exit status is 1 when
// an enabled check finds violations.
//
// --dump prints every record instead: JSON lines, or CBOR diagnostic
// notation for CBOR transcripts.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/select766/shogi-usi-failover/lib/audit"
	"github.com/select766/shogi-usi-failover/lib/codec"
	"github.com/select766/shogi-usi-failover/lib/process"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/version"
)

func main() {
	code, err := run(os.Args[1:], os.Stdout, os.Stderr)
	process.Exit(code, err)
}

func run(args []string, stdout, stderr io.Writer) (int, error) {
	var options audit.Options
	var format string
	var dump bool
	flagSet := pflag.NewFlagSet("usi-failover-audit", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&options.Echo, "echo", false, "check that every engine read echoes a pending write")
	flagSet.BoolVar(&options.Failover, "failover", false, "check that the primary receives nothing but quit after failover")
	flagSet.StringVar(&format, "format", "", "transcript format: jsonl or cbor (default: from the file name)")
	flagSet.BoolVar(&dump, "dump", false, "print the records instead of auditing them")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "usage: usi-failover-audit [--echo] [--failover] [--format jsonl|cbor] [--dump] FILE\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if len(args) > 0 && args[0] == "--version" {
		version.Print("usi-failover-audit")
		return 0, nil
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, nil
		}
		return 2, err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return 2, errors.New("exactly one transcript file is required")
	}
	parsed, err := transcript.ParseFormat(format)
	if err != nil {
		return 2, err
	}
	path := flagSet.Arg(0)
	if parsed == "" {
		parsed, _ = transcript.DetectPath(path)
	}

	reader, err := transcript.Open(path, parsed)
	if err != nil {
		return 1, err
	}
	defer reader.Close()

	if dump {
		return dumpRecords(reader, parsed, stdout)
	}

	report, err := audit.Run(reader, options)
	if err != nil {
		return 1, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := audit.WriteText(stdout, report); err != nil {
		return 1, err
	}
	if violations := report.Violations(); violations > 0 {
		return 1, fmt.Errorf("%d violations", violations)
	}
	return 0, nil
}

func dumpRecords(reader *transcript.Reader, format transcript.Format, stdout io.Writer) (int, error) {
	encoder := json.NewEncoder(stdout)
	encoder.SetEscapeHTML(false)
	err := reader.Each(func(record transcript.Record) error {
		if format != transcript.FormatCBOR {
			return encoder.Encode(record)
		}
		encoded, err := codec.Marshal(record)
		if err != nil {
			return err
		}
		notation, err := codec.Diagnose(encoded)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, notation)
		return err
	})
	if err != nil {
		return 1, err
	}
	return 0, nil
}
