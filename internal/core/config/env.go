package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CODEFUSE_[SECTION]_[KEY] (e.g., CODEFUSE_FUSION_STRATEGY).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "CODEFUSE_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "CODEFUSE_PATHS_STATE_DIR")

	// Fusion
	setEnvString(&cfg.Fusion.Strategy, "CODEFUSE_FUSION_STRATEGY")
	setEnvFloat64(&cfg.Fusion.QualityWeight, "CODEFUSE_FUSION_QUALITY_WEIGHT")
	setEnvInt(&cfg.Fusion.Workers, "CODEFUSE_FUSION_WORKERS")

	// Validation
	setEnvBool(&cfg.Validation.Lint, "CODEFUSE_VALIDATION_LINT")
	setEnvBool(&cfg.Validation.Typecheck, "CODEFUSE_VALIDATION_TYPECHECK")
	setEnvBool(&cfg.Validation.Tests, "CODEFUSE_VALIDATION_TESTS")
	setEnvDuration(&cfg.Validation.TestTimeout, "CODEFUSE_VALIDATION_TEST_TIMEOUT")
	setEnvDuration(&cfg.Validation.ToolTimeout, "CODEFUSE_VALIDATION_TOOL_TIMEOUT")
	setEnvInt(&cfg.Validation.LintIssueThreshold, "CODEFUSE_VALIDATION_LINT_ISSUE_THRESHOLD")

	// Tools
	setEnvString(&cfg.Tools.Lint.Command, "CODEFUSE_TOOLS_LINT_COMMAND")
	setEnvString(&cfg.Tools.Typecheck.Command, "CODEFUSE_TOOLS_TYPECHECK_COMMAND")
	setEnvString(&cfg.Tools.Tests.Command, "CODEFUSE_TOOLS_TESTS_COMMAND")

	// History
	setEnvBool(&cfg.History.Enabled, "CODEFUSE_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "CODEFUSE_HISTORY_PATH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "CODEFUSE_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "CODEFUSE_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CODEFUSE_OBSERVABILITY_OTLP_ENDPOINT")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "CODEFUSE_WATCH_DEBOUNCE")

	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
