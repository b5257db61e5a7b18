// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

// usi-failover is a USI engine that is really two engines. It speaks
// USI to the game host on stdin/stdout and relays to a primary engine.
// When the primary fails (does not start, exits, stops reading, or
// goes silent for longer than primary_timeout during a search) it
// hands the game to a backup engine that was started and initialized
// alongside it.
//
// Game hosts launch engines without arguments, so the engine
// descriptor is found automatically; see lib/config for the search
// order. Diagnostics go to stderr or the configured log file, never to
// stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/select766/shogi-usi-failover/lib/binhash"
	"github.com/select766/shogi-usi-failover/lib/clock"
	"github.com/select766/shogi-usi-failover/lib/config"
	"github.com/select766/shogi-usi-failover/lib/engine"
	"github.com/select766/shogi-usi-failover/lib/logging"
	"github.com/select766/shogi-usi-failover/lib/process"
	"github.com/select766/shogi-usi-failover/lib/session"
	"github.com/select766/shogi-usi-failover/lib/transcript"
	"github.com/select766/shogi-usi-failover/lib/usi"
	"github.com/select766/shogi-usi-failover/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	code, err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	process.Exit(code, err)
}

// options are the command-line overrides.
type options struct {
	configPath     string
	logLevel       string
	logPath        string
	transcriptPath string
	checkOnly      bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	var flags options
	flagSet := pflag.NewFlagSet("usi-failover", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&flags.configPath, "config", "c", "", "engine descriptor (default: $"+config.EnvConfigPath+", then engine.yaml/engine.yml/engine.json)")
	flagSet.StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&flags.logPath, "log-file", "", "override log.path")
	flagSet.StringVar(&flags.transcriptPath, "transcript", "", "override transcript.path (.jsonl, .cbor, optionally .zst or .lz4)")
	flagSet.BoolVar(&flags.checkOnly, "check", false, "validate the descriptor, fingerprint both engines, and exit")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Print("usi-failover")
		return 0, nil
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return 0, nil
		}
		return 2, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return 0, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return 2, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	path, err := config.Discover(flags.configPath)
	if err != nil {
		return 1, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return 1, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logPath != "" {
		cfg.Log.Path = flags.logPath
	}
	if flags.transcriptPath != "" {
		cfg.Transcript.Path = flags.transcriptPath
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return 1, err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: level, Path: cfg.Log.Path, Stderr: stderr})
	if err != nil {
		return 1, err
	}
	defer closeLog()
	runID := uuid.NewString()
	logger = logger.With("run", runID)
	logger.Info("usi-failover starting",
		"version", version.Info(),
		"config", cfg.Source(),
		"primary_timeout", cfg.WatchdogTimeout(),
		"quit_grace", cfg.QuitGracePeriod(),
	)

	if flags.checkOnly {
		return check(cfg, stderr)
	}

	var recorder *transcript.Recorder
	if cfg.Transcript.Path != "" {
		format, err := transcript.ParseFormat(cfg.Transcript.Format)
		if err != nil {
			return 1, err
		}
		recorder, err = transcript.Create(cfg.Transcript.Path, format, clock.Real())
		if err != nil {
			return 1, err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing transcript", "error", err)
			}
		}()
		logger.Info("recording transcript", "path", cfg.Transcript.Path)
		if err := recorder.Record(transcript.KindRun, runID); err != nil {
			logger.Warn("recording run id", "error", err)
		}
	}

	fingerprint(logger, recorder, usi.Primary, cfg.Engines.Primary)
	fingerprint(logger, recorder, usi.Backup, cfg.Engines.Backup)

	mediator, err := session.New(session.Config{
		HostInput:       stdin,
		HostOutput:      stdout,
		Primary:         newEngine(usi.Primary, cfg.Engines.Primary, stderr, logger),
		Backup:          newEngine(usi.Backup, cfg.Engines.Backup, stderr, logger),
		Clock:           clock.Real(),
		WatchdogTimeout: cfg.WatchdogTimeout(),
		QuitGrace:       cfg.QuitGracePeriod(),
		BackupOptions:   cfg.BackupOptions,
		Transcript:      recorder,
		Logger:          logger,
	})
	if err != nil {
		return 1, err
	}

	result, err := mediator.Run(ctx)
	logger.Info("session finished",
		"exit_code", result.ExitCode,
		"failed_over", result.FailedOver,
		"state", result.FinalState.String(),
	)
	if recorder != nil {
		logger.Info("transcript summary", "path", cfg.Transcript.Path, "records", recorder.Counts())
	}
	if errors.Is(err, context.Canceled) {
		// Interrupted by a signal; engines have been torn down.
		return result.ExitCode, nil
	}
	return result.ExitCode, err
}

func newEngine(peer usi.Peer, engineConfig config.EngineConfig, stderr io.Writer, logger *slog.Logger) *engine.Process {
	return engine.New(engine.Config{
		Name:             string(peer),
		Path:             engineConfig.Path,
		Args:             engineConfig.Args,
		WorkingDirectory: engineConfig.WorkingDirectory,
		Env:              engineConfig.Env,
		Stderr:           stderr,
		Logger:           logger,
	})
}

// fingerprint logs and records the digest of an engine binary. A
// missing binary is only logged: the spawn failure that follows is
// handled by the session.
func fingerprint(logger *slog.Logger, recorder *transcript.Recorder, peer usi.Peer, engineConfig config.EngineConfig) {
	identity, err := binhash.Fingerprint(engineConfig.Path)
	if err != nil {
		logger.Warn("cannot fingerprint engine", "engine", string(peer), "error", err)
		return
	}
	logger.Info("engine binary",
		"engine", string(peer),
		"path", identity.Path,
		"size", identity.Size,
		"blake3", identity.Digest.String(),
	)
	if err := recorder.Record(transcript.KindEngineDigest, string(peer)+" "+identity.Digest.String()); err != nil {
		logger.Warn("recording engine digest", "error", err)
	}
}

// check implements --check: every problem is reported, and the status
// is 1 if any engine cannot be fingerprinted.
func check(cfg *config.Config, stderr io.Writer) (int, error) {
	var errs []error
	for _, entry := range []struct {
		peer   usi.Peer
		engine config.EngineConfig
	}{
		{usi.Primary, cfg.Engines.Primary},
		{usi.Backup, cfg.Engines.Backup},
	} {
		identity, err := binhash.Fingerprint(entry.engine.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.peer, err))
			continue
		}
		fmt.Fprintf(stderr, "%-7s %s\n        blake3 %s (%s)\n        cwd %s\n",
			entry.peer, identity.Path, identity.Digest, humanize.IBytes(uint64(identity.Size)), entry.engine.WorkingDirectory)
	}
	if err := errors.Join(errs...); err != nil {
		return 1, err
	}
	return 0, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `usi-failover: a USI engine that fails over from a primary engine to a backup.

Register this binary with the game host as the engine. It reads its
engine descriptor from --config, $%s, or engine.yaml / engine.yml /
engine.json in the working directory or next to the executable.

Usage:
  usi-failover [flags]

Example descriptor (engine.yaml):
  engines:
    primary:
      path: /engines/cluster/run.sh
    backup:
      path: /engines/local/YaneuraOu
      working_directory: /engines/local
  primary_timeout: 10
  backup_options:
    - [name, USI_Hash, value, "256"]
  transcript:
    path: logs/session.jsonl.zst

Flags:
`, config.EnvConfigPath)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
