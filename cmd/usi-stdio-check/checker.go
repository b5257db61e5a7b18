// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/select766/shogi-usi-failover/lib/audit"
	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/engine"
	"github.com/select766/shogi-usi-failover/lib/relay"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/usi"
	"github.com/select766/shogi-usi-failover/lib/watchdog"
)

// Fault is the command sent to the primary at FaultAt.
type Fault string

const (
	FaultOK        Fault = "ok"
	FaultStopRead  Fault = "stop-read"
	FaultStopWrite Fault = "stop-write"
	FaultExit      Fault = "exit"
)

// ParseFault validates a --fault value.
func ParseFault(name string) (Fault, error) {
	switch fault := Fault(name); fault {
	case FaultOK, FaultStopRead, FaultStopWrite, FaultExit:
		return fault, nil
	default:
		return "", fmt.Errorf("unknown fault %q (want ok, stop-read, stop-write, exit)", name)
	}
}

// Settings configures a Checker.
type Settings struct {
	Engine   string
	Args     []string
	Fault    Fault
	FaultAt  time.Duration
	StopAt   time.Duration
	KillAt   time.Duration
	Interval time.Duration
	Timeout  time.Duration
}

// Validate checks the timeline.
func (settings Settings) Validate() error {
	var errs []error
	if settings.Engine == "" {
		errs = append(errs, errors.New("--engine is required"))
	}
	if settings.Interval <= 0 || settings.Timeout <= 0 {
		errs = append(errs, errors.New("--interval and --timeout must be positive"))
	}
	if settings.StopAt <= 0 || settings.KillAt < settings.StopAt {
		errs = append(errs, fmt.Errorf("need 0 < --stop-at (%v) <= --kill-at (%v)", settings.StopAt, settings.KillAt))
	}
	return errors.Join(errs...)
}

// Checker drives one stress run.
type Checker struct {
	settings Settings
	recorder *transcript.Recorder
	clock    clock.Clock
	logger   *slog.Logger
	auditor  *audit.Auditor

	primaryFailed bool
}

// NewChecker returns a Checker recording to recorder.
func NewChecker(settings Settings, recorder *transcript.Recorder, source clock.Clock, logger *slog.Logger) *Checker {
	return &Checker{
		settings: settings,
		recorder: recorder,
		clock:    source,
		logger:   logger,
		auditor:  audit.New(audit.Options{Echo: true}),
	}
}

// Report returns the echo audit of everything recorded so far.
func (checker *Checker) Report() audit.Report {
	return checker.auditor.Report()
}

// Run executes the timeline. It returns when both engines have been
// killed and reaped (or failed to report within a short bound), or
// when ctx is cancelled.
func (checker *Checker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	primary := checker.newEngine(usi.Primary)
	backup := checker.newEngine(usi.Backup)
	if err := primary.Start(ctx); err != nil {
		return err
	}
	if err := backup.Start(ctx); err != nil {
		primary.Terminate()
		return err
	}
	engines := map[usi.Peer]*engine.Process{usi.Primary: primary, usi.Backup: backup}

	expiries := make(chan uint64, 4)
	primaryWatchdog := watchdog.New(checker.clock, func(generation uint64) {
		select {
		case expiries <- generation:
		case <-ctx.Done():
		}
	})
	defer primaryWatchdog.Disarm()
	primaryWatchdog.Arm(checker.settings.Timeout)

	ticks := make(chan struct{}, 1)
	var tickTimer *clock.Timer
	scheduleTick := func() {
		tickTimer = checker.clock.AfterFunc(checker.settings.Interval, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
	}
	scheduleTick()
	defer func() { tickTimer.Stop() }()

	var faultAt <-chan time.Time
	if checker.settings.Fault != FaultOK {
		faultAt = checker.clock.After(checker.settings.FaultAt)
	}
	stopAt := checker.clock.After(checker.settings.StopAt)
	killAt := checker.clock.After(checker.settings.KillAt)
	writing := true

	primaryEvents, backupEvents := primary.Events(), backup.Events()
	for {
		select {
		case <-ticks:
			if !writing {
				continue
			}
			checker.write(engines, usi.Primary, "echo P_"+randomPayload())
			checker.write(engines, usi.Backup, "echo B_"+randomPayload())
			scheduleTick()

		case event, ok := <-primaryEvents:
			if !ok {
				primaryEvents = nil
				continue
			}
			if event.Kind == engine.EventLine && !checker.primaryFailed {
				primaryWatchdog.Arm(checker.settings.Timeout)
			}
			checker.recordEvent(usi.Primary, event)

		case event, ok := <-backupEvents:
			if !ok {
				backupEvents = nil
				continue
			}
			checker.recordEvent(usi.Backup, event)

		case generation := <-expiries:
			deadline, _ := primaryWatchdog.Deadline()
			if primaryWatchdog.Expire(generation) {
				checker.primaryFailed = true
				checker.logger.Warn("primary timed out", "timeout", checker.settings.Timeout, "deadline", deadline)
				checker.record(transcript.Record{Type: transcript.KindPrimaryFailure, Data: string(relay.FailureTimeout)})
			}

		case <-faultAt:
			checker.logger.Info("injecting fault", "fault", string(checker.settings.Fault))
			checker.write(engines, usi.Primary, string(checker.settings.Fault))

		case <-stopAt:
			writing = false
			checker.record(transcript.Record{Type: transcript.KindStop})

		case <-killAt:
			checker.record(transcript.Record{Type: transcript.KindKill})
			primary.Terminate()
			backup.Terminate()
			checker.reap(primaryEvents, backupEvents)
			return nil

		case <-ctx.Done():
			primary.Terminate()
			backup.Terminate()
			checker.reap(primaryEvents, backupEvents)
			return ctx.Err()
		}
	}
}

func (checker *Checker) newEngine(peer usi.Peer) *engine.Process {
	return engine.New(engine.Config{
		Name:      string(peer),
		Path:      checker.settings.Engine,
		Args:      checker.settings.Args,
		KillDelay: 500 * time.Millisecond,
		Clock:     checker.clock,
		Logger:    checker.logger,
	})
}

// reap records the remaining events of terminated engines, bounded by
// a short deadline.
func (checker *Checker) reap(primaryEvents, backupEvents <-chan engine.Event) {
	deadline := checker.clock.After(2 * time.Second)
	for primaryEvents != nil || backupEvents != nil {
		select {
		case event, ok := <-primaryEvents:
			if !ok {
				primaryEvents = nil
				continue
			}
			checker.recordEvent(usi.Primary, event)
		case event, ok := <-backupEvents:
			if !ok {
				backupEvents = nil
				continue
			}
			checker.recordEvent(usi.Backup, event)
		case <-deadline:
			checker.logger.Warn("engines did not exit after kill")
			return
		}
	}
}

func (checker *Checker) write(engines map[usi.Peer]*engine.Process, peer usi.Peer, line string) {
	checker.record(transcript.Record{Type: transcript.WriteKind(peer), Data: line})
	engines[peer].Send(line)
}

func (checker *Checker) recordEvent(peer usi.Peer, event engine.Event) {
	switch event.Kind {
	case engine.EventLine:
		checker.record(transcript.Record{Type: transcript.ReadKind(peer), Data: event.Line})
	case engine.EventWriteError:
		kind := transcript.KindPrimaryWriteError
		if peer == usi.Backup {
			kind = transcript.KindBackupWriteError
		}
		record := transcript.Record{Type: kind, Data: event.Line}
		if event.Err != nil {
			record.Error = event.Err.Error()
		}
		checker.record(record)
	case engine.EventExit:
		kind := transcript.KindPrimaryExit
		if peer == usi.Backup {
			kind = transcript.KindBackupExit
		}
		code := event.Code
		checker.record(transcript.Record{Type: kind, Code: &code})
	}
}

func (checker *Checker) record(record transcript.Record) {
	checker.auditor.Add(record)
	if err := checker.recorder.Write(record); err != nil {
		checker.logger.Error("transcript write failed", "error", err)
	}
}

const payloadAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomPayload returns 1 to 100 random alphanumerics.
func randomPayload() string {
	length := rand.Intn(100) + 1
	payload := make([]byte, length)
	for index := range payload {
		payload[index] = payloadAlphabet[rand.Intn(len(payloadAlphabet))]
	}
	return string(payload)
}
