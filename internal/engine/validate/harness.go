// Package validate checks merged source before it is written: syntax,
// duplicate imports and, on request, external lint, type-check and test
// tools.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/engine/parser"
	"codefuse/internal/shared/observability"
	"codefuse/internal/shared/util"
)

const (
	StageSyntax    = "syntax"
	StageImports   = "imports"
	StageLint      = "lint"
	StageTypecheck = "typecheck"
	StageTests     = "tests"
)

const (
	DefaultTestTimeout        = 60 * time.Second
	DefaultToolTimeout        = 30 * time.Second
	DefaultLintIssueThreshold = 10

	backupSuffix     = ".backup"
	defaultMergeName = "merged.py"
)

// pytest exits 5 when it collected nothing.
const pytestNoTestsCollected = 5

type Config struct {
	TestTimeout        time.Duration
	ToolTimeout        time.Duration
	LintIssueThreshold int
}

func (c Config) withDefaults() Config {
	if c.TestTimeout <= 0 {
		c.TestTimeout = DefaultTestTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.LintIssueThreshold <= 0 {
		c.LintIssueThreshold = DefaultLintIssueThreshold
	}
	return c
}

// Options selects the optional stages. Originals are the paths of the
// fused inputs; they drive test discovery and the merged file name.
type Options struct {
	Lint       bool
	Typecheck  bool
	Tests      bool
	Originals  []string
	ModuleName string
}

func (o Options) moduleFile() string {
	name := o.ModuleName
	if name == "" && len(o.Originals) > 0 {
		name = filepath.Base(o.Originals[0])
	}
	if name == "" {
		return defaultMergeName
	}
	if filepath.Ext(name) != ".py" {
		name += ".py"
	}
	return name
}

type StageResult struct {
	Name    string   `json:"name"`
	Passed  bool     `json:"passed"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type Outcome struct {
	Stages     []StageResult `json:"stages"`
	Success    bool          `json:"success"`
	Tests      *TestCounts   `json:"tests,omitempty"`
	LintIssues []string      `json:"lint_issues,omitempty"`
	BackupPath string        `json:"backup_path,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Stage returns the named stage result, if it ran.
func (o Outcome) Stage(name string) (StageResult, bool) {
	for _, s := range o.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

func (o *Outcome) record(stage StageResult) {
	o.Stages = append(o.Stages, stage)
	result := "pass"
	if !stage.Passed {
		result = "fail"
	}
	observability.ValidationStagesTotal.WithLabelValues(stage.Name, result).Inc()
	slog.Debug("validation stage", "stage", stage.Name, "passed", stage.Passed, "message", stage.Message)
}

// Harness runs the validation stages. It holds no per-call state and is
// safe for concurrent use.
type Harness struct {
	extractor *parser.Extractor
	runner    ToolRunner
	cfg       Config
}

func NewHarness(extractor *parser.Extractor, runner ToolRunner, cfg Config) *Harness {
	return &Harness{extractor: extractor, runner: runner, cfg: cfg.withDefaults()}
}

// Validate runs syntax, imports and the optional stages in order. A syntax
// failure stops everything after it.
func (h *Harness) Validate(ctx context.Context, merged string, opts Options) Outcome {
	var out Outcome

	syntax := h.checkSyntax(merged)
	out.record(syntax)
	if !syntax.Passed {
		out.Success = false
		return out
	}

	imports, dupes := h.checkImports(merged)
	out.record(imports)
	out.Warnings = append(out.Warnings, dupes...)

	lintOK := true
	if opts.Lint {
		stage, issues := h.runLint(ctx, ToolLint, merged, opts)
		out.record(stage)
		out.LintIssues = issues
		// A failing exit with no parsable issues fails lint outright.
		lintOK = stage.Passed || (len(issues) > 0 && len(issues) < h.cfg.LintIssueThreshold)
	}

	if opts.Typecheck {
		stage, _ := h.runLint(ctx, ToolTypecheck, merged, opts)
		out.record(stage)
	}

	testsOK := true
	if opts.Tests {
		stage, counts, warnings := h.runTests(ctx, merged, opts)
		out.record(stage)
		out.Tests = counts
		out.Warnings = append(out.Warnings, warnings...)
		testsOK = stage.Passed
	}

	out.Success = syntax.Passed && imports.Passed && testsOK && lintOK
	return out
}

// PreWrite runs the syntax, imports and lint stages only and, when they
// succeed and dest exists, copies dest to dest.backup. A failed backup is
// a warning.
func (h *Harness) PreWrite(ctx context.Context, merged, dest string, opts Options) Outcome {
	opts.Typecheck = false
	opts.Tests = false
	out := h.Validate(ctx, merged, opts)
	if !out.Success {
		return out
	}

	info, err := os.Stat(dest)
	if err != nil || info.IsDir() {
		return out
	}
	backup := dest + backupSuffix
	if err := util.CopyFile(dest, backup); err != nil {
		slog.Warn("backup failed", "path", dest, "error", err)
		out.Warnings = append(out.Warnings, fmt.Sprintf("backup of %s failed: %v", dest, err))
		return out
	}
	out.BackupPath = backup
	return out
}

func (h *Harness) checkSyntax(merged string) StageResult {
	err := h.extractor.CheckSyntax([]byte(merged))
	if err == nil {
		return StageResult{Name: StageSyntax, Passed: true, Message: "valid syntax"}
	}
	if pe, ok := parser.AsParseError(err); ok {
		return StageResult{
			Name:    StageSyntax,
			Message: fmt.Sprintf("line %d: %s", pe.Line, pe.Message),
			Details: []string{pe.Error()},
		}
	}
	return StageResult{Name: StageSyntax, Message: err.Error()}
}

func (h *Harness) checkImports(merged string) (StageResult, []string) {
	unit, err := h.extractor.Extract([]byte(merged), defaultMergeName)
	if err != nil {
		return StageResult{Name: StageImports, Message: err.Error()}, nil
	}

	// Branches of one guarded block may import the same name on purpose,
	// so a reference counts once per block.
	lines := make(map[string][]int)
	guarded := make(map[string]bool)
	var order []string
	for _, imp := range unit.Imports {
		for _, ref := range imp.References() {
			if imp.Guarded() {
				key := imp.Guard + "\x00" + ref
				if guarded[key] {
					continue
				}
				guarded[key] = true
			}
			if _, ok := lines[ref]; !ok {
				order = append(order, ref)
			}
			lines[ref] = append(lines[ref], imp.Line)
		}
	}

	var warnings []string
	for _, ref := range order {
		if at := lines[ref]; len(at) > 1 {
			warnings = append(warnings, fmt.Sprintf("duplicate import %s on lines %s", ref, joinInts(at)))
		}
	}

	stage := StageResult{Name: StageImports, Passed: true, Details: warnings}
	if len(warnings) == 0 {
		stage.Message = fmt.Sprintf("%d import references, no duplicates", len(order))
	} else {
		stage.Message = fmt.Sprintf("%d duplicate import references", len(warnings))
	}
	return stage, warnings
}

// runLint serves both the lint and type-check stages: the merged text is
// written to a scratch directory and the tool is pointed at it.
func (h *Harness) runLint(ctx context.Context, tool Tool, merged string, opts Options) (StageResult, []string) {
	name := string(tool)
	if h.runner == nil || !h.runner.Available(tool) {
		return StageResult{Name: name, Passed: true, Message: name + " tool not available; skipped"}, nil
	}

	workspace, err := os.MkdirTemp("", "codefuse-"+name+"-*")
	if err != nil {
		return StageResult{Name: name, Message: "create workspace: " + err.Error()}, nil
	}
	defer removeWorkspace(workspace)

	file := opts.moduleFile()
	if err := os.WriteFile(filepath.Join(workspace, file), []byte(merged), 0o644); err != nil {
		return StageResult{Name: name, Message: "write workspace: " + err.Error()}, nil
	}

	res, err := h.runner.Run(ctx, Invocation{
		Tool:    tool,
		Args:    []string{file},
		Dir:     workspace,
		Timeout: h.cfg.ToolTimeout,
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeToolUnavailable) {
			return StageResult{Name: name, Passed: true, Message: name + " tool not available; skipped"}, nil
		}
		return StageResult{Name: name, Message: err.Error()}, nil
	}

	issues := toolIssues(res.Stdout+"\n"+res.Stderr, file)
	stage := StageResult{
		Name:    name,
		Passed:  res.ExitCode == 0,
		Details: issues,
	}
	switch {
	case stage.Passed:
		stage.Message = "no issues"
	case len(issues) == 0:
		stage.Message = fmt.Sprintf("%s exited %d without reporting issues for %s", name, res.ExitCode, file)
		stage.Details = tailLines(res.Stdout+"\n"+res.Stderr, 5)
	default:
		stage.Message = fmt.Sprintf("%d issues (exit %d)", len(issues), res.ExitCode)
	}
	return stage, issues
}

func (h *Harness) runTests(ctx context.Context, merged string, opts Options) (StageResult, *TestCounts, []string) {
	tests := DiscoverTests(opts.Originals)
	if len(tests) == 0 {
		return StageResult{Name: StageTests, Passed: true, Message: "no tests discovered"}, nil, nil
	}
	if h.runner == nil || !h.runner.Available(ToolTests) {
		return StageResult{Name: StageTests, Passed: true, Message: "test runner not available; skipped"}, nil, nil
	}

	workspace, err := os.MkdirTemp("", "codefuse-tests-*")
	if err != nil {
		return StageResult{Name: StageTests, Message: "create workspace: " + err.Error()}, nil, nil
	}
	defer removeWorkspace(workspace)

	module := opts.moduleFile()
	if err := os.WriteFile(filepath.Join(workspace, module), []byte(merged), 0o644); err != nil {
		return StageResult{Name: StageTests, Message: "write workspace: " + err.Error()}, nil, nil
	}

	var warnings []string
	copied := map[string]string{module: "merged source"}
	for _, test := range tests {
		base := filepath.Base(test)
		if owner, clash := copied[base]; clash {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %s already provided by %s", test, base, owner))
			continue
		}
		if err := util.CopyFile(test, filepath.Join(workspace, base)); err != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %s: %v", test, err))
			continue
		}
		copied[base] = test
	}

	res, err := h.runner.Run(ctx, Invocation{
		Tool:    ToolTests,
		Dir:     workspace,
		Timeout: h.cfg.TestTimeout,
	})
	if err != nil {
		switch {
		case errors.IsCode(err, errors.CodeToolUnavailable):
			return StageResult{Name: StageTests, Passed: true, Message: "test runner not available; skipped"}, nil, warnings
		case errors.IsCode(err, errors.CodeTimeout):
			return StageResult{Name: StageTests, Message: fmt.Sprintf("tests timed out after %s", h.cfg.TestTimeout)}, nil, warnings
		}
		return StageResult{Name: StageTests, Message: err.Error()}, nil, warnings
	}

	stage := StageResult{Name: StageTests, Passed: res.ExitCode == 0 || res.ExitCode == pytestNoTestsCollected}
	var counts *TestCounts
	if c, ok := parseTestCounts(res.Stdout); ok {
		counts = &c
		stage.Message = fmt.Sprintf("%d passed, %d failed, %d errors", c.Passed, c.Failed, c.Errors)
	} else {
		stage.Message = fmt.Sprintf("test runner exited %d", res.ExitCode)
	}
	if !stage.Passed {
		stage.Details = tailLines(res.Stdout+"\n"+res.Stderr, 20)
	}
	return stage, counts, warnings
}

func removeWorkspace(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove workspace", "path", dir, "error", err)
	}
}

// toolIssues keeps the output lines that point into file.
func toolIssues(output, file string) []string {
	var issues []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, file+":")
		if idx < 0 {
			continue
		}
		issues = append(issues, line[idx:])
	}
	return issues
}

func tailLines(output string, n int) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func joinInts(values []int) string {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
