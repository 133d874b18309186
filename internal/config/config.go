// Package config is the data contract described in spec.md §6: the shape of
// a brood configuration file and the logic to load one. Persistence
// (writing a config back out) is out of scope; only loading is needed by
// the rest of this repository.
package config

import (
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// FailureMode controls what happens when a command exits with a nonzero
// code outside of a terminate/kill the supervisor itself initiated.
type FailureMode string

const (
	Continue   FailureMode = "continue"
	KillOthers FailureMode = "kill_others"
)

// StarterKind tags which Starter variant a CommandConfig uses.
type StarterKind string

const (
	StarterOnce    StarterKind = "once"
	StarterRestart StarterKind = "restart"
	StarterWatch   StarterKind = "watch"
	StarterAfter   StarterKind = "after"
)

// StarterConfig is the tagged union of the four starter policies a command
// can declare (spec.md §3). Exactly one of the variant-specific fields is
// meaningful, selected by Kind.
type StarterConfig struct {
	Kind StarterKind `json:"type" toml:"type" yaml:"type"`

	// Restart
	DelaySeconds float64 `json:"delay,omitempty" toml:"delay,omitempty" yaml:"delay,omitempty"`

	// Watch
	Paths         []string `json:"paths,omitempty" toml:"paths,omitempty" yaml:"paths,omitempty"`
	Poll          bool     `json:"poll,omitempty" toml:"poll,omitempty" yaml:"poll,omitempty"`
	AllowMultiple bool     `json:"allow_multiple,omitempty" toml:"allow_multiple,omitempty" yaml:"allow_multiple,omitempty"`

	// After
	After []string `json:"after,omitempty" toml:"after,omitempty" yaml:"after,omitempty"`
}

// RawCommand is the on-the-wire shape of a command's `command`/`shutdown`
// field: either a single shell string or an argv list. UnmarshalJSON/TOML/YAML
// accept either; Normalize turns it into a single shell string the way the
// original implementation's CommandManager expects.
type RawCommand struct {
	asString string
	asArgv   []string
	isArgv   bool
}

// Normalize returns the shell string to pass to the subshell, joining an
// argv list with shell-safe quoting (spec.md §3: "normalized to a shell
// string").
func (r RawCommand) Normalize() string {
	if !r.isArgv {
		return r.asString
	}
	return shellquote.Join(r.asArgv...)
}

func (r RawCommand) IsZero() bool {
	return !r.isArgv && r.asString == ""
}

// CommandConfig is the immutable declaration of one supervised command
// (spec.md §3).
type CommandConfig struct {
	Name string `json:"name" toml:"name" yaml:"name"`

	Command    RawCommand  `json:"command" toml:"command" yaml:"command"`
	Shutdown   *RawCommand `json:"shutdown,omitempty" toml:"shutdown,omitempty" yaml:"shutdown,omitempty"`
	Tag        string      `json:"tag,omitempty" toml:"tag,omitempty" yaml:"tag,omitempty"`
	Prefix     string      `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	PrefixStyle string     `json:"prefix_style,omitempty" toml:"prefix_style,omitempty" yaml:"prefix_style,omitempty"`

	Starter StarterConfig `json:"starter" toml:"starter" yaml:"starter"`

	// Optional per-command resource limits. They are parsed and appear in
	// the schema, but nothing in this repository reads them: the stats
	// collector only records samples and no limit is enforced.
	MaxMemoryBytes uint64 `json:"max_memory_bytes,omitempty" toml:"max_memory_bytes,omitempty" yaml:"max_memory_bytes,omitempty"`
	MaxCPUPercent  float64 `json:"max_cpu_percent,omitempty" toml:"max_cpu_percent,omitempty" yaml:"max_cpu_percent,omitempty"`
}

// CommandString returns the normalized shell string for the primary command.
func (c CommandConfig) CommandString() string {
	return c.Command.Normalize()
}

// ShutdownConfig synthesizes the shallow-copy "shutdown config" spec.md §3
// describes: same parent fields, `command` replaced by `shutdown`, starter
// forced to Once. Returns false if no shutdown command was declared.
func (c CommandConfig) ShutdownConfig() (CommandConfig, bool) {
	if c.Shutdown == nil || c.Shutdown.IsZero() {
		return CommandConfig{}, false
	}

	shutdown := c
	shutdown.Name = c.Name + "-shutdown"
	shutdown.Command = *c.Shutdown
	shutdown.Shutdown = nil
	shutdown.Starter = StarterConfig{Kind: StarterOnce}
	return shutdown, true
}

// EffectivePrefix resolves the command's prefix template, falling back to
// the BroodConfig-level default (original_source/brood/config.py's
// PROPAGATE_DEFAULT_FIELDS behavior).
func (c CommandConfig) EffectivePrefix(defaultPrefix, defaultStyle string) (prefix, style string) {
	prefix = c.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	style = c.PrefixStyle
	if style == "" {
		style = defaultStyle
	}
	return prefix, style
}

// RendererConfig selects and configures the renderer the Executor mounts.
type RendererConfig struct {
	Type string `json:"type" toml:"type" yaml:"type"` // "null" | "log" | "socket"

	Prefix              string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	PrefixStyle         string `json:"prefix_style,omitempty" toml:"prefix_style,omitempty" yaml:"prefix_style,omitempty"`
	InternalPrefix      string `json:"internal_prefix,omitempty" toml:"internal_prefix,omitempty" yaml:"internal_prefix,omitempty"`
	InternalPrefixStyle string `json:"internal_prefix_style,omitempty" toml:"internal_prefix_style,omitempty" yaml:"internal_prefix_style,omitempty"`

	// SocketPath is used when Type == "socket" (internal/render.SocketRenderer).
	SocketPath string `json:"socket_path,omitempty" toml:"socket_path,omitempty" yaml:"socket_path,omitempty"`

	// MinVerbosity filters which internal messages are printed; it has no
	// effect on what the Supervisor publishes (see SPEC_FULL.md §3).
	MinVerbosity string `json:"min_verbosity,omitempty" toml:"min_verbosity,omitempty" yaml:"min_verbosity,omitempty"`
}

// BroodConfig is the top-level configuration document (spec.md §6).
type BroodConfig struct {
	FailureMode FailureMode     `json:"failure_mode" toml:"failure_mode" yaml:"failure_mode"`
	Commands    []CommandConfig `json:"commands" toml:"commands" yaml:"commands"`
	Renderer    RendererConfig  `json:"renderer" toml:"renderer" yaml:"renderer"`

	// Defaults propagated onto commands that don't set their own (see
	// CommandConfig.EffectivePrefix).
	DefaultPrefix      string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	DefaultPrefixStyle string `json:"prefix_style,omitempty" toml:"prefix_style,omitempty" yaml:"prefix_style,omitempty"`
}

// Validate checks cross-field invariants that can't be expressed in the
// struct tags alone: non-empty unique names, a non-empty command, a known
// starter type, at least one path for a watch starter, and a known
// failure_mode. No Watch+Restart check is needed: StarterConfig holds a
// single Kind, so that combination cannot be declared (SPEC_FULL.md §4).
func (b BroodConfig) Validate() error {
	seen := make(map[string]bool, len(b.Commands))
	for _, c := range b.Commands {
		if c.Name == "" {
			return fmt.Errorf("config: command has empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("config: duplicate command name %q", c.Name)
		}
		seen[c.Name] = true

		if c.Command.IsZero() {
			return fmt.Errorf("config: command %q has no command", c.Name)
		}

		switch c.Starter.Kind {
		case StarterOnce, StarterRestart, StarterWatch, StarterAfter:
		default:
			return fmt.Errorf("config: command %q has unknown starter type %q", c.Name, c.Starter.Kind)
		}

		if c.Starter.Kind == StarterWatch && len(c.Starter.Paths) == 0 {
			return fmt.Errorf("config: command %q: watch starter requires at least one path", c.Name)
		}
	}

	switch b.FailureMode {
	case Continue, KillOthers, "":
	default:
		return fmt.Errorf("config: unknown failure_mode %q", b.FailureMode)
	}

	return nil
}

func normalizeExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}
