// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"io"
	"sync"
)

// lineWriter serializes lines onto an io.Writer from its own goroutine.
// The queue is unbounded; enqueue never blocks.
type lineWriter struct {
	output io.Writer
	fail   func(line string, err error)

	mu      sync.Mutex
	queue   []string
	failed  bool
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newLineWriter(output io.Writer, fail func(line string, err error)) *lineWriter {
	return &lineWriter{
		output: output,
		fail:   fail,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueue appends line to the FIFO. Lines enqueued after a failure or
// after stop are discarded.
func (writer *lineWriter) enqueue(line string) {
	writer.mu.Lock()
	if writer.failed || writer.stopped {
		writer.mu.Unlock()
		return
	}
	writer.queue = append(writer.queue, line)
	writer.mu.Unlock()

	select {
	case writer.wake <- struct{}{}:
	default:
	}
}

// stop ends the writer goroutine after the line in flight, if any.
// Queued lines are dropped.
func (writer *lineWriter) stop() {
	writer.mu.Lock()
	writer.stopped = true
	writer.queue = nil
	writer.mu.Unlock()

	select {
	case writer.wake <- struct{}{}:
	default:
	}
}

// run drains the FIFO until stop is called or a write fails.
func (writer *lineWriter) run() {
	defer close(writer.done)
	for {
		writer.mu.Lock()
		if writer.stopped || writer.failed {
			writer.mu.Unlock()
			return
		}
		if len(writer.queue) == 0 {
			writer.mu.Unlock()
			<-writer.wake
			continue
		}
		line := writer.queue[0]
		writer.queue[0] = ""
		writer.queue = writer.queue[1:]
		writer.mu.Unlock()

		if _, err := io.WriteString(writer.output, line+"\n"); err != nil {
			writer.mu.Lock()
			writer.failed = true
			writer.queue = nil
			writer.mu.Unlock()
			writer.fail(line, err)
			return
		}
	}
}
