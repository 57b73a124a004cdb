package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}

	if strings.TrimSpace(cfg.Fusion.Strategy) == "" {
		cfg.Fusion.Strategy = "manual"
	}
	if cfg.Fusion.Workers <= 0 {
		cfg.Fusion.Workers = 4
	}

	if cfg.Validation.TestTimeout <= 0 {
		cfg.Validation.TestTimeout = 60 * time.Second
	}
	if cfg.Validation.ToolTimeout <= 0 {
		cfg.Validation.ToolTimeout = 30 * time.Second
	}
	if cfg.Validation.LintIssueThreshold <= 0 {
		cfg.Validation.LintIssueThreshold = 10
	}
	if cfg.Validation.ToolStartsPerSecond == 0 {
		cfg.Validation.ToolStartsPerSecond = 4
	}
	if cfg.Validation.ToolStartBurst <= 0 {
		cfg.Validation.ToolStartBurst = 2
	}

	if strings.TrimSpace(cfg.Tools.Lint.Command) == "" {
		cfg.Tools.Lint = ToolCommand{Command: "ruff", Args: []string{"check", "--output-format=concise"}}
	}
	if strings.TrimSpace(cfg.Tools.Typecheck.Command) == "" {
		cfg.Tools.Typecheck = ToolCommand{Command: "mypy", Args: []string{"--ignore-missing-imports"}}
	}
	if strings.TrimSpace(cfg.Tools.Tests.Command) == "" {
		cfg.Tools.Tests = ToolCommand{Command: "python", Args: []string{"-m", "pytest", "-q"}}
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "codefuse.db"
	}
	if cfg.History.BusyTimeout <= 0 {
		cfg.History.BusyTimeout = 2 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.Exclude == nil {
		cfg.Watch.Exclude = []string{"**/.git/**", "**/__pycache__/**"}
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.StateDir = strings.TrimSpace(cfg.Paths.StateDir)
	cfg.Fusion.Strategy = strings.ToLower(strings.TrimSpace(cfg.Fusion.Strategy))
	cfg.History.Path = strings.TrimSpace(cfg.History.Path)
	cfg.Observability.Address = strings.TrimSpace(cfg.Observability.Address)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	normalizeTool(&cfg.Tools.Lint)
	normalizeTool(&cfg.Tools.Typecheck)
	normalizeTool(&cfg.Tools.Tests)
	cfg.Watch.Exclude = compactStrings(cfg.Watch.Exclude)
	cfg.Advisory.ExternalDecorators = compactStrings(cfg.Advisory.ExternalDecorators)
}

func normalizeTool(tool *ToolCommand) {
	tool.Command = strings.TrimSpace(tool.Command)
	tool.Args = compactStrings(tool.Args)
}

func compactStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
