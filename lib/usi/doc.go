// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// Package usi defines the minimal vocabulary the failover mediator
// needs from the USI engine protocol: the three peers a message can
// come from or go to ([Peer]) and the whitespace-tokenized command
// line ([Command]).
//
// The mediator never validates USI syntax beyond the first token.
// Everything after the command name is carried through untouched, so
// engine-specific extensions (custom info fields, setoption values with
// embedded spaces) relay verbatim except for whitespace normalization.
package usi
