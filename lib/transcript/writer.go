// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/codec"
)

// compressor is the subset of *zstd.Encoder and *lz4.Writer the
// recorder needs.
type compressor interface {
	io.Writer
	Flush() error
	Close() error
}

// Recorder appends records to a transcript. It is safe for concurrent
// use. A nil *Recorder accepts and discards everything, so callers
// with transcripts disabled need no nil checks.
type Recorder struct {
	mutex      sync.Mutex
	clock      clock.Clock
	file       io.Closer
	compressor compressor
	encode     func(Record) error
	closed     bool
	counts     map[Kind]int64
}

// Create opens path for writing (truncating it) and returns a Recorder.
// An empty format is inferred from the path; compression always is.
func Create(path string, format Format, source clock.Clock) (*Recorder, error) {
	detected, compression := DetectPath(path)
	if format == "" {
		format = detected
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating transcript %q: %w", path, err)
	}

	var sink io.Writer = file
	var stream compressor
	switch compression {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd encoder for %q: %w", path, err)
		}
		stream = encoder
		sink = encoder
	case CompressionLZ4:
		writer := lz4.NewWriter(file)
		stream = writer
		sink = writer
	}

	recorder, err := newRecorder(sink, format, source)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		file.Close()
		return nil, err
	}
	recorder.file = file
	recorder.compressor = stream
	return recorder, nil
}

// NewRecorder returns a Recorder writing uncompressed records to w.
// Close does not close w.
func NewRecorder(w io.Writer, format Format, source clock.Clock) (*Recorder, error) {
	if format == "" {
		format = FormatJSONL
	}
	return newRecorder(w, format, source)
}

func newRecorder(w io.Writer, format Format, source clock.Clock) (*Recorder, error) {
	if source == nil {
		source = clock.Real()
	}
	recorder := &Recorder{clock: source, counts: make(map[Kind]int64)}
	switch format {
	case FormatJSONL:
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		recorder.encode = func(record Record) error { return encoder.Encode(record) }
	case FormatCBOR:
		encoder := codec.NewEncoder(w)
		recorder.encode = func(record Record) error { return encoder.Encode(record) }
	default:
		return nil, fmt.Errorf("unknown transcript format %q", format)
	}
	return recorder, nil
}

// Write appends record, stamping it with the recorder's clock when the
// timestamp is zero. Compressed streams are flushed after every record
// so a crash loses at most the record in flight.
func (recorder *Recorder) Write(record Record) error {
	if recorder == nil {
		return nil
	}
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.closed {
		return errors.New("transcript: write after close")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = recorder.clock.Now().UTC()
	}
	if err := recorder.encode(record); err != nil {
		return fmt.Errorf("encoding transcript record: %w", err)
	}
	if recorder.compressor != nil {
		if err := recorder.compressor.Flush(); err != nil {
			return fmt.Errorf("flushing transcript: %w", err)
		}
	}
	recorder.counts[record.Type]++
	return nil
}

// Record writes a record with only a kind and data.
func (recorder *Recorder) Record(kind Kind, data string) error {
	return recorder.Write(Record{Type: kind, Data: data})
}

// RecordExit writes an exit record carrying code and, when err is not
// nil, its description.
func (recorder *Recorder) RecordExit(kind Kind, code int, err error) error {
	record := Record{Type: kind, Code: &code}
	if err != nil {
		record.Error = err.Error()
	}
	return recorder.Write(record)
}

// RecordError writes a record describing err. data may be empty.
func (recorder *Recorder) RecordError(kind Kind, data string, err error) error {
	record := Record{Type: kind, Data: data}
	if err != nil {
		record.Error = err.Error()
	}
	return recorder.Write(record)
}

// Counts returns a copy of the per-kind record counts written so far.
func (recorder *Recorder) Counts() map[Kind]int64 {
	if recorder == nil {
		return nil
	}
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	counts := make(map[Kind]int64, len(recorder.counts))
	for kind, count := range recorder.counts {
		counts[kind] = count
	}
	return counts
}

// Close finishes the compression stream and closes the file. Close is
// idempotent.
func (recorder *Recorder) Close() error {
	if recorder == nil {
		return nil
	}
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.closed {
		return nil
	}
	recorder.closed = true

	var errs []error
	if recorder.compressor != nil {
		if err := recorder.compressor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing transcript compressor: %w", err))
		}
	}
	if recorder.file != nil {
		if err := recorder.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing transcript file: %w", err))
		}
	}
	return errors.Join(errs...)
}
