// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package lineframe

import (
	"bytes"
	"errors"
	"io"
)

// ReadSize is the chunk size Scan reads with.
const ReadSize = 4096

// Framer accumulates raw chunks and yields complete lines. The zero
// value is ready to use. A Framer is not safe for concurrent use; each
// stream gets its own.
type Framer struct {
	pending []byte
}

// Push appends a chunk to the unparsed buffer. The chunk is copied, so
// the caller may reuse its read buffer.
func (framer *Framer) Push(chunk []byte) {
	framer.pending = append(framer.pending, chunk...)
}

// Next returns the next complete line and true, or "" and false when
// no LF is buffered yet.
func (framer *Framer) Next() (string, bool) {
	index := bytes.IndexByte(framer.pending, '\n')
	if index < 0 {
		return "", false
	}
	end := index
	if end > 0 && framer.pending[end-1] == '\r' {
		end--
	}
	line := string(framer.pending[:end])

	// Shift the remainder down instead of reslicing forward so a long
	// lived stream does not pin an ever-growing backing array.
	remaining := copy(framer.pending, framer.pending[index+1:])
	framer.pending = framer.pending[:remaining]
	return line, true
}

// Lines pushes chunk and returns every line it completed, in order.
func (framer *Framer) Lines(chunk []byte) []string {
	framer.Push(chunk)
	var lines []string
	for {
		line, ok := framer.Next()
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

// Remainder returns the buffered bytes of an unterminated final line
// (with a trailing CR stripped) and clears the buffer.
func (framer *Framer) Remainder() string {
	rest := framer.pending
	framer.pending = nil
	rest = bytes.TrimSuffix(rest, []byte{'\r'})
	return string(rest)
}

// Buffered returns the number of bytes waiting for a terminator.
func (framer *Framer) Buffered() int {
	return len(framer.pending)
}

// Scan reads reader until EOF or error and calls emit for every
// complete line. On EOF an unterminated final line is emitted too, as
// a process that exits mid-line has still said what it said. Returns
// nil on EOF, otherwise the read error.
func Scan(reader io.Reader, emit func(line string)) error {
	var framer Framer
	buffer := make([]byte, ReadSize)
	for {
		count, err := reader.Read(buffer)
		if count > 0 {
			for _, line := range framer.Lines(buffer[:count]) {
				emit(line)
			}
		}
		if err != nil {
			if rest := framer.Remainder(); rest != "" {
				emit(rest)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
