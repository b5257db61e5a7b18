// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/select766/shogi-usi-failover/lib/codec"
)

// maxLineSize bounds a single JSONL record. Engine info lines with
// long PVs stay far below this.
const maxLineSize = 1 << 20

// Reader iterates over transcript records.
type Reader struct {
	next    func() (Record, error)
	closers []func() error
	line    int
}

// Open opens a transcript file. An empty format is inferred from the
// path; compression always is.
func Open(path string, format Format) (*Reader, error) {
	detected, compression := DetectPath(path)
	if format == "" {
		format = detected
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %q: %w", path, err)
	}
	closers := []func() error{file.Close}

	var source io.Reader = file
	switch compression {
	case CompressionZstd:
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd decoder for %q: %w", path, err)
		}
		closers = append([]func() error{func() error { decoder.Close(); return nil }}, closers...)
		source = decoder
	case CompressionLZ4:
		source = lz4.NewReader(file)
	}

	reader, err := NewReader(source, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.closers = closers
	return reader, nil
}

// NewReader reads uncompressed records from r.
func NewReader(r io.Reader, format Format) (*Reader, error) {
	reader := &Reader{}
	switch format {
	case FormatJSONL, "":
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		reader.next = func() (Record, error) {
			for scanner.Scan() {
				reader.line++
				data := scanner.Bytes()
				if len(data) == 0 {
					continue
				}
				var record Record
				if err := json.Unmarshal(data, &record); err != nil {
					return Record{}, fmt.Errorf("transcript line %d: %w", reader.line, err)
				}
				return record, nil
			}
			if err := scanner.Err(); err != nil {
				return Record{}, fmt.Errorf("reading transcript: %w", err)
			}
			return Record{}, io.EOF
		}
	case FormatCBOR:
		decoder := codec.NewDecoder(r)
		reader.next = func() (Record, error) {
			var record Record
			if err := decoder.Decode(&record); err != nil {
				if errors.Is(err, io.EOF) {
					return Record{}, io.EOF
				}
				return Record{}, fmt.Errorf("transcript record %d: %w", reader.line+1, err)
			}
			reader.line++
			return record, nil
		}
	default:
		return nil, fmt.Errorf("unknown transcript format %q", format)
	}
	return reader, nil
}

// Next returns the next record, or io.EOF after the last one.
func (reader *Reader) Next() (Record, error) {
	return reader.next()
}

// Each calls fn for every remaining record, stopping at the first
// error from either side.
func (reader *Reader) Each(fn func(Record) error) error {
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// Close releases the decompressor and file, if any.
func (reader *Reader) Close() error {
	var errs []error
	for _, closer := range reader.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	reader.closers = nil
	return errors.Join(errs...)
}

// ReadAll returns every record in the file at path.
func ReadAll(path string, format Format) ([]Record, error) {
	reader, err := Open(path, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	var records []Record
	err = reader.Each(func(record Record) error {
		records = append(records, record)
		return nil
	})
	return records, err
}
