// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package usi

import (
	"fmt"
	"strings"
)

// Peer identifies one end of a relayed message.
type Peer string

const (
	// Host is the game-playing application that launched the mediator.
	Host Peer = "host"

	// Primary is the engine that computes moves while it is healthy.
	Primary Peer = "primary"

	// Backup is the engine that shadows the game and takes over on
	// primary failure.
	Backup Peer = "backup"
)

// IsEngine reports whether the peer is one of the two engine
// subprocesses.
func (peer Peer) IsEngine() bool {
	return peer == Primary || peer == Backup
}

// Validate returns an error for values outside the three known peers.
func (peer Peer) Validate() error {
	switch peer {
	case Host, Primary, Backup:
		return nil
	default:
		return fmt.Errorf("unknown peer %q", string(peer))
	}
}

// Command names the mediator inspects. Anything else is relayed
// without interpretation.
const (
	CommandUSI        = "usi"
	CommandUSIOK      = "usiok"
	CommandIsReady    = "isready"
	CommandReadyOK    = "readyok"
	CommandSetOption  = "setoption"
	CommandUSINewGame = "usinewgame"
	CommandPosition   = "position"
	CommandGo         = "go"
	CommandPonder     = "ponder"
	CommandPonderHit  = "ponderhit"
	CommandStop       = "stop"
	CommandBestMove   = "bestmove"
	CommandQuit       = "quit"
)

// Command is one protocol line split on whitespace. The first token is
// the command name. A Command is treated as immutable once parsed:
// code that needs to retain or modify one takes a [Command.Clone].
type Command []string

// Parse splits a line into tokens. Leading, trailing and repeated
// whitespace is discarded; an empty or all-space line yields an empty
// Command.
func Parse(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return Command(fields)
}

// New builds a Command from explicit tokens.
func New(tokens ...string) Command {
	return Command(append([]string(nil), tokens...))
}

// Name returns the first token, or "" for an empty command.
func (command Command) Name() string {
	if len(command) == 0 {
		return ""
	}
	return command[0]
}

// Arg returns the token at index i (0 is the name), or "" when the
// command is shorter.
func (command Command) Arg(i int) string {
	if i < 0 || i >= len(command) {
		return ""
	}
	return command[i]
}

// Is reports whether the command name equals name.
func (command Command) Is(name string) bool {
	return command.Name() == name
}

// Empty reports whether the command has no tokens.
func (command Command) Empty() bool {
	return len(command) == 0
}

// Clone returns an independent copy, so a later overwrite of the
// original cannot change what has already been issued.
func (command Command) Clone() Command {
	if command == nil {
		return nil
	}
	return append(Command(nil), command...)
}

// Without returns a copy with the token at index i removed. Out of
// range indices return a plain copy.
func (command Command) Without(i int) Command {
	clone := command.Clone()
	if i < 0 || i >= len(clone) {
		return clone
	}
	return append(clone[:i], clone[i+1:]...)
}

// String joins the tokens with single spaces. This is the wire form
// without the line terminator.
func (command Command) String() string {
	return strings.Join(command, " ")
}

// BestMoveResign is the synthetic response the mediator sends when the
// host is owed a bestmove no engine will produce.
func BestMoveResign() Command {
	return New(CommandBestMove, "resign")
}
