// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/lineframe"
	"github.com/select766/shogi-usi-failover/lib/usi"
)

// Options configures a Mock.
type Options struct {
	Name         string
	Move         string
	Think        time.Duration
	InfoInterval time.Duration
	Fault        Fault
	FaultAfter   int
	ExitCode     int
}

// Mock is the scripted engine. Handle is called from one goroutine;
// search timers write from the clock's goroutine, so output is
// serialized by mu.
type Mock struct {
	options Options
	clock   clock.Clock

	mu     sync.Mutex
	output io.Writer
	mute   bool

	// search is the active search, nil when idle.
	search *search
	goes   int

	// exit receives the status when the mock decides to terminate.
	exit chan int
}

type search struct {
	ponder   bool
	infinite bool
	timer    *clock.Timer
	info     *clock.Timer
	depth    int
}

// NewMock returns a Mock writing protocol output to output.
func NewMock(options Options, output io.Writer, source clock.Clock) *Mock {
	if options.FaultAfter <= 0 {
		options.FaultAfter = 1
	}
	if options.Fault == "" {
		options.Fault = FaultNone
	}
	return &Mock{
		options: options,
		clock:   source,
		output:  output,
		exit:    make(chan int, 1),
	}
}

// Run reads commands from input until quit, a fault exit, EOF, or ctx
// cancellation, and returns the exit status.
func (mock *Mock) Run(ctx context.Context, input io.Reader) (int, error) {
	lines := make(chan string)
	readDone := make(chan error, 1)
	go func() {
		readDone <- lineframe.Scan(input, func(line string) {
			select {
			case lines <- line:
			case <-ctx.Done():
			}
		})
	}()

	for {
		select {
		case line := <-lines:
			if !mock.Handle(line) {
				// Deaf: stop consuming input but keep running until
				// killed.
				select {
				case code := <-mock.exit:
					return code, nil
				case <-ctx.Done():
					return 0, nil
				}
			}
		case code := <-mock.exit:
			return code, nil
		case err := <-readDone:
			return 0, err
		case <-ctx.Done():
			return 0, nil
		}
	}
}

// Handle processes one command line. It returns false when the mock
// has stopped reading input.
func (mock *Mock) Handle(line string) bool {
	command := usi.Parse(line)
	switch command.Name() {
	case usi.CommandUSI:
		mock.println("id name " + mock.options.Name)
		mock.println("id author shogi-usi-failover")
		mock.println("option name USI_Hash type spin default 256 min 1 max 1024")
		mock.println(usi.CommandUSIOK)
	case usi.CommandIsReady:
		mock.println(usi.CommandReadyOK)
	case usi.CommandGo:
		return mock.startSearch(command)
	case usi.CommandPonderHit:
		mock.ponderHit()
	case usi.CommandStop:
		mock.finishSearch()
	case usi.CommandQuit:
		mock.terminate(0)
	case "echo":
		mock.println(line)
	case "stop-read":
		return false
	case "stop-write":
		mock.setMute()
	case "exit":
		mock.terminate(mock.options.ExitCode)
	}
	return true
}

func (mock *Mock) startSearch(command usi.Command) bool {
	mock.mu.Lock()
	mock.goes++
	faulty := mock.goes >= mock.options.FaultAfter
	mock.mu.Unlock()

	if faulty {
		switch mock.options.Fault {
		case FaultHang:
			return true
		case FaultExit:
			mock.terminate(mock.options.ExitCode)
			return true
		case FaultMute:
			mock.setMute()
		case FaultDeaf:
			return false
		}
	}

	mock.mu.Lock()
	defer mock.mu.Unlock()
	mock.stopSearchLocked()
	current := &search{
		ponder:   command.Arg(1) == usi.CommandPonder,
		infinite: containsToken(command, "infinite"),
	}
	mock.search = current
	if !current.ponder && !current.infinite {
		mock.scheduleBestmoveLocked(current)
	}
	if mock.options.InfoInterval > 0 {
		mock.scheduleInfoLocked(current)
	}
	return true
}

func (mock *Mock) ponderHit() {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.search == nil || !mock.search.ponder {
		return
	}
	mock.search.ponder = false
	if !mock.search.infinite {
		mock.scheduleBestmoveLocked(mock.search)
	}
}

func (mock *Mock) finishSearch() {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.search == nil {
		return
	}
	mock.stopSearchLocked()
	mock.printlnLocked("bestmove " + mock.options.Move)
}

func (mock *Mock) scheduleBestmoveLocked(current *search) {
	if mock.options.Think <= 0 {
		mock.stopSearchLocked()
		mock.printlnLocked("bestmove " + mock.options.Move)
		return
	}
	current.timer = mock.clock.AfterFunc(mock.options.Think, func() {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		if mock.search != current {
			return
		}
		mock.stopSearchLocked()
		mock.printlnLocked("info depth 1 score cp 0 pv " + mock.options.Move)
		mock.printlnLocked("bestmove " + mock.options.Move)
	})
}

func (mock *Mock) scheduleInfoLocked(current *search) {
	current.info = mock.clock.AfterFunc(mock.options.InfoInterval, func() {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		if mock.search != current {
			return
		}
		current.depth++
		mock.printlnLocked("info depth " + strconv.Itoa(current.depth))
		mock.scheduleInfoLocked(current)
	})
}

func (mock *Mock) stopSearchLocked() {
	if mock.search == nil {
		return
	}
	mock.search.timer.Stop()
	mock.search.info.Stop()
	mock.search = nil
}

func (mock *Mock) setMute() {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	mock.mute = true
}

func (mock *Mock) terminate(code int) {
	mock.mu.Lock()
	mock.stopSearchLocked()
	mock.mu.Unlock()
	select {
	case mock.exit <- code:
	default:
	}
}

func (mock *Mock) println(line string) {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	mock.printlnLocked(line)
}

func (mock *Mock) printlnLocked(line string) {
	if mock.mute {
		return
	}
	// A host that stopped reading is not the mock's problem.
	_, _ = io.WriteString(mock.output, line+"\n")
}

func containsToken(command usi.Command, token string) bool {
	for _, candidate := range command {
		if strings.EqualFold(candidate, token) {
			return true
		}
	}
	return false
}
