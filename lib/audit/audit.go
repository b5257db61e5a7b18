// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/select766/shogi-usi-failover/lib/binhash"
	"github.com/select766/shogi-usi-failover/lib/relay"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/usi"
)

// Options selects which checks contribute violations. Counts and
// synthetic resign accounting are always computed.
type Options struct {
	Echo     bool
	Failover bool
}

// EchoReport is the echo accounting for one engine.
type EchoReport struct {
	Written int
	Read    int

	// Unsent lists lines read from the engine that match no pending
	// write, in transcript order.
	Unsent []string

	// NotEchoed counts writes never matched by a read.
	NotEchoed int
}

// Violation is one failover rule breach.
type Violation struct {
	// Index is the zero-based record position in the transcript.
	Index  int
	Record transcript.Record

	// State is the failed-over state in effect.
	State string
}

func (violation Violation) String() string {
	return fmt.Sprintf("record %d: %s %q written in state %s",
		violation.Index, violation.Record.Type, violation.Record.Data, violation.State)
}

// Report is the outcome of auditing one transcript.
type Report struct {
	Options Options
	Records int
	Counts  map[transcript.Kind]int

	Primary EchoReport
	Backup  EchoReport

	// FailedOver reports whether the transcript entered a backup state.
	FailedOver         bool
	FailoverViolations []Violation

	// SyntheticResigns counts host bestmove resign lines not preceded
	// by a bestmove resign read from the backup.
	SyntheticResigns int

	// Engines maps each engine to the BLAKE3 digest of its binary, from
	// engine-digest records. Malformed records are skipped.
	Engines map[usi.Peer]binhash.Digest
}

// Violations returns the number of violations for the enabled checks.
func (report Report) Violations() int {
	count := 0
	if report.Options.Echo {
		count += len(report.Primary.Unsent) + report.Primary.NotEchoed
		count += len(report.Backup.Unsent) + report.Backup.NotEchoed
	}
	if report.Options.Failover {
		count += len(report.FailoverViolations)
	}
	return count
}

// Auditor accumulates a Report one record at a time.
type Auditor struct {
	report Report

	primaryPending []string
	backupPending  []string

	failedOverState string

	// backupResigns counts bestmove resign lines from the backup not
	// yet forwarded to the host.
	backupResigns int
}

// New returns an Auditor with the given checks enabled.
func New(options Options) *Auditor {
	return &Auditor{
		report: Report{
			Options: options,
			Counts:  make(map[transcript.Kind]int),
			Engines: make(map[usi.Peer]binhash.Digest),
		},
	}
}

// Add consumes the next record.
func (auditor *Auditor) Add(record transcript.Record) {
	index := auditor.report.Records
	auditor.report.Records++
	auditor.report.Counts[record.Type]++

	switch record.Type {
	case transcript.KindPrimaryWrite:
		auditor.report.Primary.Written++
		auditor.primaryPending = append(auditor.primaryPending, record.Data)
		if auditor.failedOverState != "" && !usi.Parse(record.Data).Is(usi.CommandQuit) {
			auditor.report.FailoverViolations = append(auditor.report.FailoverViolations, Violation{
				Index:  index,
				Record: record,
				State:  auditor.failedOverState,
			})
		}
	case transcript.KindPrimaryRead:
		auditor.report.Primary.Read++
		auditor.primaryPending = match(auditor.primaryPending, record.Data, &auditor.report.Primary)
	case transcript.KindBackupWrite:
		auditor.report.Backup.Written++
		auditor.backupPending = append(auditor.backupPending, record.Data)
	case transcript.KindBackupRead:
		auditor.report.Backup.Read++
		auditor.backupPending = match(auditor.backupPending, record.Data, &auditor.report.Backup)
		if isResign(record.Data) {
			auditor.backupResigns++
		}
	case transcript.KindHostWrite:
		if isResign(record.Data) {
			if auditor.backupResigns > 0 {
				auditor.backupResigns--
			} else {
				auditor.report.SyntheticResigns++
			}
		}
	case transcript.KindEngineDigest:
		name, hexDigest, found := strings.Cut(record.Data, " ")
		peer := usi.Peer(name)
		if !found || !peer.IsEngine() {
			break
		}
		if digest, err := binhash.ParseDigest(hexDigest); err == nil {
			auditor.report.Engines[peer] = digest
		}
	case transcript.KindState:
		if state, err := relay.ParseState(record.Data); err == nil && state.FailedOver() {
			auditor.failedOverState = record.Data
			auditor.report.FailedOver = true
		}
	}
}

// Report returns the accumulated report. The Auditor may keep
// accepting records afterwards.
func (auditor *Auditor) Report() Report {
	report := auditor.report
	report.Counts = make(map[transcript.Kind]int, len(auditor.report.Counts))
	for kind, count := range auditor.report.Counts {
		report.Counts[kind] = count
	}
	report.Primary.Unsent = append([]string(nil), auditor.report.Primary.Unsent...)
	report.Backup.Unsent = append([]string(nil), auditor.report.Backup.Unsent...)
	report.FailoverViolations = append([]Violation(nil), auditor.report.FailoverViolations...)
	report.Engines = make(map[usi.Peer]binhash.Digest, len(auditor.report.Engines))
	for peer, digest := range auditor.report.Engines {
		report.Engines[peer] = digest
	}
	report.Primary.NotEchoed = len(auditor.primaryPending)
	report.Backup.NotEchoed = len(auditor.backupPending)
	return report
}

// Run audits every record from reader.
func Run(reader *transcript.Reader, options Options) (Report, error) {
	auditor := New(options)
	err := reader.Each(func(record transcript.Record) error {
		auditor.Add(record)
		return nil
	})
	return auditor.Report(), err
}

// WriteText prints report in a human-readable form.
func WriteText(w io.Writer, report Report) error {
	var builder strings.Builder

	kinds := make([]string, 0, len(report.Counts))
	for kind := range report.Counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	fmt.Fprintf(&builder, "records: %d\n", report.Records)
	for _, kind := range kinds {
		fmt.Fprintf(&builder, "  %-20s %d\n", kind, report.Counts[transcript.Kind(kind)])
	}
	for _, peer := range []usi.Peer{usi.Primary, usi.Backup} {
		if digest, ok := report.Engines[peer]; ok {
			fmt.Fprintf(&builder, "%s binary: blake3 %s\n", peer, digest.Short())
		}
	}

	if report.Options.Echo {
		for _, engine := range []struct {
			name   string
			report EchoReport
		}{
			{"primary", report.Primary},
			{"backup", report.Backup},
		} {
			for _, line := range engine.report.Unsent {
				fmt.Fprintf(&builder, "%s: echoed not sent message %s\n", engine.name, line)
			}
			fmt.Fprintf(&builder, "%s: %d messages not echoed\n", engine.name, engine.report.NotEchoed)
		}
	}

	if report.Options.Failover {
		fmt.Fprintf(&builder, "failed over: %t\n", report.FailedOver)
		for _, violation := range report.FailoverViolations {
			fmt.Fprintf(&builder, "failover violation: %s\n", violation)
		}
	}
	fmt.Fprintf(&builder, "synthetic resigns: %d\n", report.SyntheticResigns)

	_, err := io.WriteString(w, builder.String())
	return err
}

// match removes the first pending entry equal to line, or records line
// as unsent.
func match(pending []string, line string, report *EchoReport) []string {
	for index, candidate := range pending {
		if candidate == line {
			return append(pending[:index], pending[index+1:]...)
		}
	}
	report.Unsent = append(report.Unsent, line)
	return pending
}

func isResign(line string) bool {
	command := usi.Parse(line)
	return command.Is(usi.CommandBestMove) && command.Arg(1) == "resign"
}
