// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package lineframe turns a stream of arbitrary byte chunks into text
// lines. Engine processes write their output in whatever chunk sizes
// the pipe delivers, so a single read may hold half a line or several
// lines; [Framer] buffers the remainder between reads.
//
// Lines are terminated by LF. A CR immediately before the LF is
// stripped, so engines built for Windows (CRLF) and Unix (LF) frame
// identically. The terminator is never part of the returned line.
//
// [Scan] wraps a Framer around an io.Reader for the common case of a
// goroutine pumping a pipe into a callback.
package lineframe
