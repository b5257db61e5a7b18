// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/select766/shogi-usi-failover/lib/usi"
)

// Transport is the only channel through which a Machine affects the
// outside world. Implementations must not call back into the Machine
// synchronously: failures of a write are delivered later as ordinary
// events (for the primary, via HandlePrimaryFailure).
type Transport interface {
	// Write sends command to the peer. Best effort and non-blocking.
	Write(to usi.Peer, command usi.Command)

	// RequestQuit asks the surrounding process to begin teardown.
	RequestQuit()

	// ArmWatchdog starts the primary watchdog, replacing any pending
	// deadline.
	ArmWatchdog(timeout time.Duration)

	// DisarmWatchdog cancels the pending primary deadline, if any.
	DisarmWatchdog()
}

// Config holds the construction parameters for a Machine.
type Config struct {
	// Transport receives every side effect. Required.
	Transport Transport

	// BackupOptions are setoption argument groups sent to the backup,
	// in order, after it answers usiok. Each group is the token list
	// following "setoption" (for example ["name", "USI_Hash", "value",
	// "256"]).
	BackupOptions [][]string

	// WatchdogTimeout is the primary search deadline. Required.
	WatchdogTimeout time.Duration

	// Logger receives transition and drop diagnostics. Nil discards.
	Logger *slog.Logger

	// OnTransition, when set, is called after every state change.
	OnTransition func(from, to State)
}

// Machine is the protocol relay state machine. See the package
// documentation for the state graph.
type Machine struct {
	transport       Transport
	backupOptions   [][]string
	watchdogTimeout time.Duration
	logger          *slog.Logger
	onTransition    func(from, to State)

	state State

	// position is the most recent host position command. Nil until
	// the first one.
	position usi.Command

	// goParameters is the most recent host go command with any ponder
	// token removed.
	goParameters usi.Command

	// dummyBestmove is true while the host is owed a bestmove for a
	// stopped ponder that the primary has not answered yet.
	dummyBestmove bool

	// startupQueue holds host commands received before the backup was
	// ready. Replayed once, then nil for the rest of the session.
	startupQueue []queuedCommand
}

type queuedCommand struct {
	from    usi.Peer
	command usi.Command
}

// New validates config and returns a Machine in BackupStartup. Call
// Start before feeding events.
func New(config Config) (*Machine, error) {
	if config.Transport == nil {
		return nil, errors.New("relay: transport is required")
	}
	if config.WatchdogTimeout <= 0 {
		return nil, errors.New("relay: watchdog timeout must be positive")
	}
	for _, group := range config.BackupOptions {
		if len(group) == 0 {
			return nil, errors.New("relay: empty backup setoption group")
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	options := make([][]string, len(config.BackupOptions))
	for index, group := range config.BackupOptions {
		options[index] = append([]string(nil), group...)
	}
	return &Machine{
		transport:       config.Transport,
		backupOptions:   options,
		watchdogTimeout: config.WatchdogTimeout,
		logger:          logger,
		onTransition:    config.OnTransition,
		state:           BackupStartup,
	}, nil
}

// Start begins the backup handshake by sending usi to the backup.
func (machine *Machine) Start() {
	machine.transport.Write(usi.Backup, usi.New(usi.CommandUSI))
}

// State returns the active state.
func (machine *Machine) State() State {
	return machine.state
}

// Failed reports whether failover has happened.
func (machine *Machine) Failed() bool {
	return machine.state.FailedOver()
}

// Position returns a copy of the stored position snapshot, or nil.
func (machine *Machine) Position() usi.Command {
	return machine.position.Clone()
}

// GoParameters returns a copy of the stored go parameters, or nil.
func (machine *Machine) GoParameters() usi.Command {
	return machine.goParameters.Clone()
}

// DummyBestmoveOwed reports whether a synthetic bestmove is pending.
func (machine *Machine) DummyBestmoveOwed() bool {
	return machine.dummyBestmove
}

// QueuedCommands returns how many host commands wait for backup
// readiness.
func (machine *Machine) QueuedCommands() int {
	return len(machine.startupQueue)
}

// HandleCommand processes one protocol line from a peer. Empty
// commands are ignored. A quit from the host never reaches the state
// handlers: it requests teardown and broadcasts quit to both engines,
// whichever of them is active.
func (machine *Machine) HandleCommand(from usi.Peer, command usi.Command) {
	if command.Empty() {
		return
	}
	if from == usi.Host && command.Is(usi.CommandQuit) {
		machine.logger.Info("quit requested by host", "state", machine.state.String())
		machine.transport.RequestQuit()
		machine.transport.Write(usi.Primary, usi.New(usi.CommandQuit))
		machine.transport.Write(usi.Backup, usi.New(usi.CommandQuit))
		return
	}
	machine.dispatch(from, command)
}

// HandlePrimaryFailure processes a primary failure signal from any
// detector. If a synthetic bestmove is owed it is delivered first,
// since the host is still waiting on the stopped ponder.
func (machine *Machine) HandlePrimaryFailure(reason FailureReason) {
	machine.logger.Warn("primary failure",
		"reason", string(reason),
		"state", machine.state.String(),
	)
	if machine.dummyBestmove {
		machine.write(usi.Host, usi.BestMoveResign())
	}

	switch machine.state {
	case BackupStartup:
		// The backup may not have finished its handshake; later host
		// commands are relayed to it regardless.
		if count := len(machine.startupQueue); count > 0 {
			machine.logger.Warn("primary failed before backup was ready; dropping queued host commands",
				"queued", count,
			)
		}
		machine.startupQueue = nil
		machine.transition(BackupRelay)
	case PrimaryWaitPosition:
		machine.transition(BackupRelay)
	case PrimaryWaitGo:
		machine.write(usi.Backup, machine.position.Clone())
		machine.transition(BackupRelay)
	case PrimaryGo:
		machine.transport.DisarmWatchdog()
		machine.write(usi.Backup, machine.position.Clone())
		machine.write(usi.Backup, machine.goParameters.Clone())
		machine.transition(BackupRelay)
	case PrimaryPonder:
		machine.transition(BackupPonder)
	case BackupRelay, BackupPonder:
		// Already failed over.
	}
}

func (machine *Machine) dispatch(from usi.Peer, command usi.Command) {
	switch machine.state {
	case BackupStartup:
		machine.handleBackupStartup(from, command)
	case PrimaryWaitPosition:
		machine.handlePrimaryWaitPosition(from, command)
	case PrimaryWaitGo:
		machine.handlePrimaryWaitGo(from, command)
	case PrimaryGo:
		machine.handlePrimaryGo(from, command)
	case PrimaryPonder:
		machine.handlePrimaryPonder(from, command)
	case BackupRelay:
		machine.relay(from, command, usi.Backup)
	case BackupPonder:
		machine.handleBackupPonder(from, command)
	}
}

func (machine *Machine) handleBackupStartup(from usi.Peer, command usi.Command) {
	switch from {
	case usi.Backup:
		switch command.Name() {
		case usi.CommandUSIOK:
			for _, option := range machine.backupOptions {
				machine.write(usi.Backup, append(usi.New(usi.CommandSetOption), option...))
			}
			machine.write(usi.Backup, usi.New(usi.CommandIsReady))
		case usi.CommandReadyOK:
			machine.write(usi.Backup, usi.New(usi.CommandUSINewGame))
			machine.transition(PrimaryWaitPosition)
			queue := machine.startupQueue
			machine.startupQueue = nil
			for _, queued := range queue {
				machine.dispatch(queued.from, queued.command)
			}
		}
	case usi.Primary:
		// Nothing has been sent to the primary yet.
		machine.logger.Debug("ignoring primary output during backup startup", "command", command.String())
	case usi.Host:
		machine.startupQueue = append(machine.startupQueue, queuedCommand{from: from, command: command.Clone()})
	}
}

func (machine *Machine) handlePrimaryWaitPosition(from usi.Peer, command usi.Command) {
	machine.relay(from, command, usi.Primary)
	if from == usi.Host && command.Is(usi.CommandPosition) {
		machine.position = command.Clone()
		machine.transition(PrimaryWaitGo)
	}
}

func (machine *Machine) handlePrimaryWaitGo(from usi.Peer, command usi.Command) {
	machine.relay(from, command, usi.Primary)
	if from != usi.Host {
		return
	}
	switch command.Name() {
	case usi.CommandPosition:
		machine.position = command.Clone()
	case usi.CommandGo:
		if command.Arg(1) == usi.CommandPonder {
			machine.goParameters = command.Without(1)
			machine.transition(PrimaryPonder)
		} else {
			machine.goParameters = command.Clone()
			machine.enterPrimaryGo()
		}
	}
}

func (machine *Machine) handlePrimaryGo(from usi.Peer, command usi.Command) {
	machine.relay(from, command, usi.Primary)
	switch from {
	case usi.Primary:
		if command.Is(usi.CommandBestMove) {
			machine.transport.DisarmWatchdog()
			machine.transition(PrimaryWaitPosition)
			return
		}
		// Search output proves the primary is alive.
		machine.transport.ArmWatchdog(machine.watchdogTimeout)
	case usi.Host:
		if command.Is(usi.CommandPosition) {
			machine.position = command.Clone()
		}
	}
}

func (machine *Machine) handlePrimaryPonder(from usi.Peer, command usi.Command) {
	machine.relay(from, command, usi.Primary)
	if from != usi.Host {
		return
	}
	switch command.Name() {
	case usi.CommandPonderHit:
		machine.enterPrimaryGo()
	case usi.CommandStop:
		machine.dummyBestmove = true
		machine.transition(PrimaryWaitPosition)
	case usi.CommandPosition:
		machine.position = command.Clone()
	}
}

func (machine *Machine) handleBackupPonder(from usi.Peer, command usi.Command) {
	if from != usi.Host {
		machine.logger.Debug("dropping message during backup ponder",
			"from", string(from),
			"command", command.String(),
		)
		return
	}
	switch command.Name() {
	case usi.CommandPonderHit:
		machine.write(usi.Backup, machine.position.Clone())
		machine.write(usi.Backup, machine.goParameters.Clone())
		machine.transition(BackupRelay)
	case usi.CommandStop:
		machine.write(usi.Host, usi.BestMoveResign())
		machine.transition(BackupRelay)
	default:
		machine.logger.Debug("dropping host command during backup ponder", "command", command.String())
	}
}

func (machine *Machine) enterPrimaryGo() {
	machine.transition(PrimaryGo)
	machine.transport.ArmWatchdog(machine.watchdogTimeout)
}

// relay forwards between the host and the given engine. Messages from
// the other engine are dropped: after failover the primary may still
// flush buffered output, and it must not reach the host.
func (machine *Machine) relay(from usi.Peer, command usi.Command, engine usi.Peer) bool {
	var to usi.Peer
	switch from {
	case usi.Host:
		to = engine
	case engine:
		to = usi.Host
	default:
		machine.logger.Debug("dropping message from inactive peer",
			"from", string(from),
			"state", machine.state.String(),
			"command", command.String(),
		)
		return false
	}
	machine.write(to, command)
	return true
}

func (machine *Machine) write(to usi.Peer, command usi.Command) {
	if command.Empty() {
		return
	}
	if to == usi.Host && command.Is(usi.CommandBestMove) {
		machine.dummyBestmove = false
	}
	machine.transport.Write(to, command)
}

func (machine *Machine) transition(next State) {
	previous := machine.state
	machine.state = next
	machine.logger.Debug("relay transition", "from", previous.String(), "to", next.String())
	if machine.onTransition != nil {
		machine.onTransition(previous, next)
	}
}
