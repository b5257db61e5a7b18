// Copyright 2026 The shogi-usi-failover Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/select766/shogi-usi-failover/lib/transcript"
)

// EnvConfigPath names the environment variable consulted by Discover
// when no explicit path is given.
const EnvConfigPath = "USI_FAILOVER_CONFIG"

// DefaultNames are the descriptor file names Discover looks for.
var DefaultNames = []string{"engine.yaml", "engine.yml", "engine.json"}

const (
	// DefaultPrimaryTimeout is the watchdog deadline in seconds.
	DefaultPrimaryTimeout = 10.0

	// DefaultQuitGrace is how long a quit waits for engines to exit.
	DefaultQuitGrace = 5.0
)

// Config is the engine descriptor.
type Config struct {
	// Engines configures the two engine subprocesses.
	Engines EnginesConfig `yaml:"engines" json:"engines"`

	// PrimaryTimeout is the primary watchdog deadline in seconds. Every
	// line the primary prints during a search restarts it.
	PrimaryTimeout float64 `yaml:"primary_timeout" json:"primary_timeout"`

	// QuitGrace is how many seconds a quit waits for both engines to
	// exit before the mediator terminates them and exits anyway.
	QuitGrace float64 `yaml:"quit_grace" json:"quit_grace"`

	// BackupOptions are setoption argument groups sent to the backup
	// after usiok, in order. Each group is the tokens after
	// "setoption", e.g. ["name", "USI_Hash", "value", "256"].
	BackupOptions [][]string `yaml:"backup_options" json:"backup_options"`

	// Transcript configures the optional session transcript.
	Transcript TranscriptConfig `yaml:"transcript" json:"transcript"`

	// Log configures diagnostics. Stdout belongs to the host protocol,
	// so logs go to stderr or a file.
	Log LogConfig `yaml:"log" json:"log"`

	// source is the absolute path of the loaded descriptor.
	source string
}

// EnginesConfig holds the primary and backup engine settings.
type EnginesConfig struct {
	Primary EngineConfig `yaml:"primary" json:"primary"`
	Backup  EngineConfig `yaml:"backup" json:"backup"`
}

// EngineConfig describes how to start one engine.
type EngineConfig struct {
	// Path is the engine executable. Required.
	Path string `yaml:"path" json:"path"`

	// WorkingDirectory is the engine's working directory. Engines
	// usually load evaluation files relative to it. Defaults to the
	// directory containing Path.
	WorkingDirectory string `yaml:"working_directory" json:"working_directory"`

	// Args are extra command-line arguments.
	Args []string `yaml:"args" json:"args"`

	// Env are extra KEY=VALUE environment entries appended to the
	// mediator's environment.
	Env []string `yaml:"env" json:"env"`
}

// TranscriptConfig configures the session transcript.
type TranscriptConfig struct {
	// Path enables the transcript when non-empty. A ".zst" or ".lz4"
	// suffix selects compression.
	Path string `yaml:"path" json:"path"`

	// Format is "jsonl" or "cbor". Empty infers it from Path.
	Format string `yaml:"format" json:"format"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Path, when set, receives JSON log records instead of stderr.
	Path string `yaml:"path" json:"path"`
}

// Default returns a Config with every optional field at its default.
// Engine paths have no default.
func Default() *Config {
	return &Config{
		PrimaryTimeout: DefaultPrimaryTimeout,
		QuitGrace:      DefaultQuitGrace,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Discover returns the descriptor path to load. explicit wins when
// non-empty; see the package documentation for the search order.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	var directories []string
	if workingDirectory, err := os.Getwd(); err == nil {
		directories = append(directories, workingDirectory)
	}
	if executable, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(executable); err == nil {
			executable = resolved
		}
		directories = append(directories, filepath.Dir(executable))
	}

	var searched []string
	for _, directory := range directories {
		for _, name := range DefaultNames {
			candidate := filepath.Join(directory, name)
			searched = append(searched, candidate)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no engine descriptor found (set --config or %s; searched %s)",
		EnvConfigPath, strings.Join(searched, ", "))
}

// LoadFile reads, expands, resolves and validates the descriptor at
// path.
func LoadFile(path string) (*Config, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %q: %w", path, err)
	}
	data, err := os.ReadFile(absolute)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg := Default()
	if err := decode(absolute, data, cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.source = absolute
	cfg.expandVariables()
	cfg.resolvePaths(filepath.Dir(absolute))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config (%s): %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Source returns the absolute path of the loaded descriptor, or "" for
// a Config that was not loaded from a file.
func (c *Config) Source() string {
	return c.source
}

// WatchdogTimeout returns PrimaryTimeout as a duration.
func (c *Config) WatchdogTimeout() time.Duration {
	return seconds(c.PrimaryTimeout)
}

// QuitGracePeriod returns QuitGrace as a duration.
func (c *Config) QuitGracePeriod() time.Duration {
	return seconds(c.QuitGrace)
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	for _, engine := range []struct {
		name   string
		config EngineConfig
	}{
		{"primary", c.Engines.Primary},
		{"backup", c.Engines.Backup},
	} {
		if strings.TrimSpace(engine.config.Path) == "" {
			errs = append(errs, fmt.Errorf("engines.%s.path is required", engine.name))
		}
	}

	if c.PrimaryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("primary_timeout must be positive, got %v", c.PrimaryTimeout))
	}
	if c.QuitGrace <= 0 {
		errs = append(errs, fmt.Errorf("quit_grace must be positive, got %v", c.QuitGrace))
	}

	for index, group := range c.BackupOptions {
		if len(group) == 0 {
			errs = append(errs, fmt.Errorf("backup_options[%d] is empty", index))
		}
	}

	if _, err := transcript.ParseFormat(c.Transcript.Format); err != nil {
		errs = append(errs, fmt.Errorf("transcript.format: %w", err))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CONFIG_DIR": filepath.Dir(c.source),
	}
	for _, engine := range []*EngineConfig{&c.Engines.Primary, &c.Engines.Backup} {
		engine.Path = expandVars(engine.Path, vars)
		engine.WorkingDirectory = expandVars(engine.WorkingDirectory, vars)
	}
	c.Transcript.Path = expandVars(c.Transcript.Path, vars)
	c.Log.Path = expandVars(c.Log.Path, vars)
}

// resolvePaths makes relative paths absolute against base and fills in
// engine working directories.
func (c *Config) resolvePaths(base string) {
	for _, engine := range []*EngineConfig{&c.Engines.Primary, &c.Engines.Backup} {
		if engine.Path != "" {
			engine.Path = resolve(base, engine.Path)
		}
		if engine.WorkingDirectory == "" && engine.Path != "" {
			engine.WorkingDirectory = filepath.Dir(engine.Path)
		} else if engine.WorkingDirectory != "" {
			engine.WorkingDirectory = resolve(base, engine.WorkingDirectory)
		}
	}
	if c.Transcript.Path != "" {
		c.Transcript.Path = resolve(base, c.Transcript.Path)
	}
	if c.Log.Path != "" {
		c.Log.Path = resolve(base, c.Log.Path)
	}
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
