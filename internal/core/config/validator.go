package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
)

var validStrategies = map[string]bool{
	"manual":            true,
	"keep_largest":      true,
	"keep_most_complex": true,
	"keep_newest":       true,
	"keep_all":          true,
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	return nil
}

func validateFusion(cfg *Config) error {
	if !validStrategies[cfg.Fusion.Strategy] {
		return fmt.Errorf("fusion.strategy %q is not one of manual, keep_largest, keep_most_complex, keep_newest, keep_all", cfg.Fusion.Strategy)
	}
	if cfg.Fusion.QualityWeight < 0 {
		return fmt.Errorf("fusion.quality_weight must be >= 0, got %v", cfg.Fusion.QualityWeight)
	}
	if cfg.Fusion.Workers < 1 {
		return fmt.Errorf("fusion.workers must be >= 1, got %d", cfg.Fusion.Workers)
	}
	return nil
}

func validateValidation(cfg *Config) error {
	v := cfg.Validation
	if v.TestTimeout <= 0 {
		return fmt.Errorf("validation.test_timeout must be positive")
	}
	if v.ToolTimeout <= 0 {
		return fmt.Errorf("validation.tool_timeout must be positive")
	}
	if v.LintIssueThreshold < 1 {
		return fmt.Errorf("validation.lint_issue_threshold must be >= 1, got %d", v.LintIssueThreshold)
	}
	if v.ToolStartsPerSecond < 0 {
		return fmt.Errorf("validation.tool_starts_per_second must be >= 0, got %v", v.ToolStartsPerSecond)
	}
	return nil
}

func validateTools(cfg *Config) error {
	tools := map[string]ToolCommand{
		"lint":      cfg.Tools.Lint,
		"typecheck": cfg.Tools.Typecheck,
		"tests":     cfg.Tools.Tests,
	}
	for _, name := range []string{"lint", "typecheck", "tests"} {
		if strings.ContainsAny(tools[name].Command, " \t") {
			return fmt.Errorf("tools.%s.command %q must be a single executable; put flags in args", name, tools[name].Command)
		}
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
		return fmt.Errorf("observability.address %q: %w", cfg.Observability.Address, err)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	for i, pattern := range cfg.Watch.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("watch.exclude[%d] %q: %w", i, pattern, err)
		}
	}
	return nil
}

// Validate runs every check and returns all failures.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validateFusion,
		validateValidation,
		validateTools,
		validateHistory,
		validateObservability,
		validateWatch,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
