// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	// Level is the minimum level logged.
	Level slog.Level

	// Path, when non-empty, receives JSON records in append mode.
	Path string

	// Stderr is the default destination. Nil means os.Stderr.
	Stderr io.Writer
}

// New returns a logger and a function that releases its destination.
// The close function is never nil.
func New(options Options) (*slog.Logger, func() error, error) {
	handlerOptions := &slog.HandlerOptions{Level: options.Level}

	if options.Path != "" {
		if err := os.MkdirAll(filepath.Dir(options.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		file, err := os.OpenFile(options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(file, handlerOptions)), file.Close, nil
	}

	output := options.Stderr
	if output == nil {
		output = os.Stderr
	}
	var handler slog.Handler
	if isTerminal(output) {
		handler = slog.NewTextHandler(output, handlerOptions)
	} else {
		handler = slog.NewJSONHandler(output, handlerOptions)
	}
	return slog.New(handler), func() error { return nil }, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
