package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codefuse.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1

[fusion]
strategy = " Keep_Largest "
quality_weight = 0.25
workers = 8

[validation]
lint = true
tests = true
test_timeout = "90s"
lint_issue_threshold = 5

[tools.lint]
command = "flake8"
args = ["--max-line-length=120", " "]

[history]
enabled = true
path = "runs.db"

[observability]
enabled = true
address = "0.0.0.0:9100"

[watch]
debounce = "1s"
exclude = ["**/build/**"]

[advisory]
external_decorators = ["route", "task"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fusion.Strategy != "keep_largest" {
		t.Errorf("expected normalized strategy keep_largest, got %q", cfg.Fusion.Strategy)
	}
	if cfg.Fusion.QualityWeight != 0.25 || cfg.Fusion.Workers != 8 {
		t.Errorf("unexpected fusion section: %+v", cfg.Fusion)
	}
	if !cfg.Validation.Lint || !cfg.Validation.Tests || cfg.Validation.Typecheck {
		t.Errorf("unexpected stage toggles: %+v", cfg.Validation)
	}
	if cfg.Validation.TestTimeout != 90*time.Second {
		t.Errorf("expected test timeout 90s, got %v", cfg.Validation.TestTimeout)
	}
	if cfg.Validation.ToolTimeout != 30*time.Second {
		t.Errorf("expected default tool timeout 30s, got %v", cfg.Validation.ToolTimeout)
	}
	if cfg.Validation.LintIssueThreshold != 5 {
		t.Errorf("expected threshold 5, got %d", cfg.Validation.LintIssueThreshold)
	}
	if cfg.Tools.Lint.Command != "flake8" || !reflect.DeepEqual(cfg.Tools.Lint.Args, []string{"--max-line-length=120"}) {
		t.Errorf("unexpected lint tool: %+v", cfg.Tools.Lint)
	}
	if cfg.Tools.Tests.Command != "python" {
		t.Errorf("expected default test runner, got %+v", cfg.Tools.Tests)
	}
	if !cfg.History.Enabled || cfg.History.Path != "runs.db" {
		t.Errorf("unexpected history: %+v", cfg.History)
	}
	if cfg.Watch.Debounce != time.Second || !reflect.DeepEqual(cfg.Watch.Exclude, []string{"**/build/**"}) {
		t.Errorf("unexpected watch: %+v", cfg.Watch)
	}
	if !reflect.DeepEqual(cfg.Advisory.ExternalDecorators, []string{"route", "task"}) {
		t.Errorf("unexpected advisory: %+v", cfg.Advisory)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Fusion.Strategy != "manual" || cfg.Fusion.Workers != 4 || cfg.Fusion.QualityWeight != 0 {
		t.Errorf("unexpected fusion defaults: %+v", cfg.Fusion)
	}
	if cfg.Validation.TestTimeout != 60*time.Second || cfg.Validation.LintIssueThreshold != 10 {
		t.Errorf("unexpected validation defaults: %+v", cfg.Validation)
	}
	if cfg.Tools.Lint.Command != "ruff" || cfg.Tools.Typecheck.Command != "mypy" {
		t.Errorf("unexpected tool defaults: %+v", cfg.Tools)
	}
	if cfg.History.Enabled || cfg.Observability.Enabled {
		t.Error("history and observability must be opt-in")
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected 500ms debounce, got %v", cfg.Watch.Debounce)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("default config must validate, got %v", errs)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "UnknownStrategy", content: "[fusion]\nstrategy = \"merge_bodies\"\n", want: "fusion.strategy"},
		{name: "NegativeWeight", content: "[fusion]\nquality_weight = -1.0\n", want: "quality_weight"},
		{name: "BadVersion", content: "version = 3\n", want: "unsupported config version"},
		{name: "CommandWithFlags", content: "[tools.lint]\ncommand = \"ruff check\"\n", want: "tools.lint.command"},
		{name: "BadAddress", content: "[observability]\nenabled = true\naddress = \"nope\"\n", want: "observability.address"},
		{name: "BadGlob", content: "[watch]\nexclude = [\"[unclosed\"]\n", want: "watch.exclude[0]"},
		{name: "Syntax", content: "[fusion\n", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Fusion.Strategy = "bogus"
	cfg.Validation.LintIssueThreshold = 0
	cfg.History.Enabled = true
	cfg.History.Path = ""

	if errs := Validate(cfg); len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}
