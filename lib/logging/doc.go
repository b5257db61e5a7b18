// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the mediator's structured logger.
//
// Stdout carries the USI protocol to the host, so logs never go there.
// By default they go to stderr: human-readable text when stderr is a
// terminal, JSON lines otherwise (game hosts usually capture an
// engine's stderr into a file). With a log path configured, JSON
// records are appended to that file instead.
package logging
