package config

import (
	"time"
)

// DefaultPath is where the CLI looks for configuration when --config is
// not given. A missing file at this path is not an error.
const DefaultPath = "data/config/codefuse.toml"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Fusion        Fusion        `toml:"fusion"`
	Validation    Validation    `toml:"validation"`
	Tools         Tools         `toml:"tools"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
	Advisory      Advisory      `toml:"advisory"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
}

type Fusion struct {
	Strategy      string  `toml:"strategy"`
	QualityWeight float64 `toml:"quality_weight"`
	Workers       int     `toml:"workers"`
}

type Validation struct {
	Lint                bool          `toml:"lint"`
	Typecheck           bool          `toml:"typecheck"`
	Tests               bool          `toml:"tests"`
	TestTimeout         time.Duration `toml:"test_timeout"`
	ToolTimeout         time.Duration `toml:"tool_timeout"`
	LintIssueThreshold  int           `toml:"lint_issue_threshold"`
	ToolStartsPerSecond float64       `toml:"tool_starts_per_second"`
	ToolStartBurst      int           `toml:"tool_start_burst"`
}

type Tools struct {
	Lint      ToolCommand `toml:"lint"`
	Typecheck ToolCommand `toml:"typecheck"`
	Tests     ToolCommand `toml:"tests"`
}

type ToolCommand struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type History struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Observability struct {
	Enabled      bool   `toml:"enabled"`
	Address      string `toml:"address"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	Exclude  []string      `toml:"exclude"`
}

// Advisory holds allow-lists consumed by advisory collaborators, e.g.
// decorators that mark a function as used from outside the module.
type Advisory struct {
	ExternalDecorators []string `toml:"external_decorators"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	normalize(cfg)
	return cfg
}
