package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codefuse/internal/core/errors"
	"codefuse/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	available map[Tool]bool
	run       func(inv Invocation) (ToolResult, error)
	calls     []Invocation
}

func (f *fakeRunner) Available(tool Tool) bool {
	return f.available[tool]
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (ToolResult, error) {
	f.calls = append(f.calls, inv)
	if f.run == nil {
		return ToolResult{}, nil
	}
	return f.run(inv)
}

func (f *fakeRunner) ran(tool Tool) bool {
	for _, c := range f.calls {
		if c.Tool == tool {
			return true
		}
	}
	return false
}

const validSource = "import os\n\n\ndef cwd():\n    return os.getcwd()\n"

func newHarness(runner ToolRunner) *Harness {
	return NewHarness(parser.NewExtractor(), runner, Config{})
}

func stageNames(out Outcome) []string {
	names := make([]string, 0, len(out.Stages))
	for _, s := range out.Stages {
		names = append(names, s.Name)
	}
	return names
}

func TestValidate_NoToolsNoTestsAutoPass(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "utils.py")
	require.NoError(t, os.WriteFile(original, []byte(validSource), 0o644))

	runner := &fakeRunner{}
	out := newHarness(runner).Validate(context.Background(), validSource, Options{
		Lint:      true,
		Tests:     true,
		Originals: []string{original},
	})

	assert.True(t, out.Success)
	assert.Equal(t, []string{StageSyntax, StageImports, StageLint, StageTests}, stageNames(out))
	for _, s := range out.Stages {
		assert.True(t, s.Passed, "stage %s", s.Name)
	}
	lint, _ := out.Stage(StageLint)
	assert.Contains(t, lint.Message, "not available")
	tests, _ := out.Stage(StageTests)
	assert.Equal(t, "no tests discovered", tests.Message)
	assert.Nil(t, out.Tests)
	assert.Empty(t, runner.calls)
}

func TestValidate_SyntaxErrorStopsEverything(t *testing.T) {
	runner := &fakeRunner{available: map[Tool]bool{ToolLint: true, ToolTypecheck: true, ToolTests: true}}
	merged := "def ok():\n    return 1\n\n\ndef broken(:\n    pass\n"

	out := newHarness(runner).Validate(context.Background(), merged, Options{
		Lint: true, Typecheck: true, Tests: true,
	})

	assert.False(t, out.Success)
	require.Len(t, out.Stages, 1)
	assert.Equal(t, StageSyntax, out.Stages[0].Name)
	assert.False(t, out.Stages[0].Passed)
	assert.True(t, strings.HasPrefix(out.Stages[0].Message, "line 5:"), out.Stages[0].Message)
	assert.Empty(t, runner.calls)
}

func TestValidate_DuplicateImportsAreWarnings(t *testing.T) {
	merged := "import os\nimport os\nfrom a import b\nfrom a import (b, c)\n\n\ndef f():\n    return b\n"
	out := newHarness(nil).Validate(context.Background(), merged, Options{})

	assert.True(t, out.Success)
	imports, ok := out.Stage(StageImports)
	require.True(t, ok)
	assert.True(t, imports.Passed)
	assert.Equal(t, []string{
		"duplicate import os on lines 1, 2",
		"duplicate import a:b on lines 3, 4",
	}, out.Warnings)
	assert.Equal(t, "2 duplicate import references", imports.Message)
}

func TestValidate_GuardedFallbackImportsAreNotDuplicates(t *testing.T) {
	merged := "import os\n\ntry:\n    import simplejson as json\nexcept ImportError:\n    import json\n\n" +
		"if os.name == \"nt\":\n    import ntpath as pathmod\nelse:\n    import ntpath as pathmod\n\n\n" +
		"def dump(v):\n    return json.dumps(v)\n"
	out := newHarness(nil).Validate(context.Background(), merged, Options{})

	assert.True(t, out.Success)
	assert.Empty(t, out.Warnings)
}

func TestValidate_Python2StatementsFailSyntax(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   string
	}{
		{"print", "import os\n\nprint \"hello\"\n", "line 3"},
		{"exec", "exec \"x = 1\"\n", "line 1"},
		{"print chevron", "import sys\n\n\ndef warn():\n    print >>sys.stderr, \"x\"\n", "line 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newHarness(nil).Validate(context.Background(), tt.source, Options{})
			assert.False(t, out.Success)
			require.Len(t, out.Stages, 1)
			assert.Equal(t, StageSyntax, out.Stages[0].Name)
			assert.False(t, out.Stages[0].Passed)
			assert.Contains(t, out.Stages[0].Message, tt.line)
			assert.Contains(t, out.Stages[0].Message, "Python 2")
		})
	}
}

func lintRunner(issues int) *fakeRunner {
	return &fakeRunner{
		available: map[Tool]bool{ToolLint: true, ToolTypecheck: true},
		run: func(inv Invocation) (ToolResult, error) {
			file := inv.Args[0]
			var b strings.Builder
			for i := 0; i < issues; i++ {
				fmt.Fprintf(&b, "%s:%d:1: F401 unused import\n", file, i+1)
			}
			if issues == 0 {
				return ToolResult{Stdout: "All checks passed!\n"}, nil
			}
			fmt.Fprintf(&b, "Found %d errors.\n", issues)
			return ToolResult{ExitCode: 1, Stdout: b.String()}, nil
		},
	}
}

func TestValidate_LintThreshold(t *testing.T) {
	tests := []struct {
		name    string
		issues  int
		success bool
		passed  bool
	}{
		{"clean", 0, true, true},
		{"few issues tolerated", 9, true, false},
		{"threshold reached", 10, false, false},
		{"many issues", 25, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := lintRunner(tt.issues)
			out := newHarness(runner).Validate(context.Background(), validSource, Options{
				Lint:      true,
				Originals: []string{"pkg/utils.py"},
			})
			assert.Equal(t, tt.success, out.Success)
			lint, ok := out.Stage(StageLint)
			require.True(t, ok)
			assert.Equal(t, tt.passed, lint.Passed)
			assert.Len(t, out.LintIssues, tt.issues)
			if tt.issues > 0 {
				assert.True(t, strings.HasPrefix(out.LintIssues[0], "utils.py:1:1:"))
			}

			require.Len(t, runner.calls, 1)
			assert.Equal(t, []string{"utils.py"}, runner.calls[0].Args)
			assert.Equal(t, DefaultToolTimeout, runner.calls[0].Timeout)
			_, err := os.Stat(runner.calls[0].Dir)
			assert.True(t, os.IsNotExist(err), "lint workspace must be removed")
		})
	}
}

func TestValidate_LintToolFailureWithoutIssuesFails(t *testing.T) {
	runner := &fakeRunner{
		available: map[Tool]bool{ToolLint: true},
		run: func(inv Invocation) (ToolResult, error) {
			return ToolResult{ExitCode: 2, Stderr: "ruff failed\n  Cause: Failed to parse pyproject.toml\n"}, nil
		},
	}
	out := newHarness(runner).Validate(context.Background(), validSource, Options{Lint: true})

	assert.False(t, out.Success)
	assert.Empty(t, out.LintIssues)
	lint, ok := out.Stage(StageLint)
	require.True(t, ok)
	assert.False(t, lint.Passed)
	assert.Equal(t, "lint exited 2 without reporting issues for merged.py", lint.Message)
	assert.Equal(t, []string{"ruff failed", "  Cause: Failed to parse pyproject.toml"}, lint.Details)
}

func TestValidate_TypecheckIsReportedOnly(t *testing.T) {
	runner := lintRunner(30)
	out := newHarness(runner).Validate(context.Background(), validSource, Options{Typecheck: true})

	assert.True(t, out.Success)
	tc, ok := out.Stage(StageTypecheck)
	require.True(t, ok)
	assert.False(t, tc.Passed)
	assert.Len(t, tc.Details, 30)
	assert.Empty(t, out.LintIssues)
	assert.Equal(t, "merged.py", runner.calls[0].Args[0])
}

func TestValidate_ToolUnavailableAtRunTimeIsAPass(t *testing.T) {
	runner := &fakeRunner{
		available: map[Tool]bool{ToolLint: true},
		run: func(inv Invocation) (ToolResult, error) {
			return ToolResult{}, errors.New(errors.CodeToolUnavailable, "ruff vanished")
		},
	}
	out := newHarness(runner).Validate(context.Background(), validSource, Options{Lint: true})
	assert.True(t, out.Success)
	lint, _ := out.Stage(StageLint)
	assert.True(t, lint.Passed)
}

// testTree lays out pkg/utils.py with tests in the three discovery places.
func testTree(t *testing.T) (root, original string) {
	t.Helper()
	root = t.TempDir()
	pkg := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(filepath.Join(pkg, "tests"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tests"), 0o755))

	original = filepath.Join(pkg, "utils.py")
	files := map[string]string{
		original:                            validSource,
		filepath.Join(pkg, "test_utils.py"): "from utils import cwd\n\ndef test_cwd():\n    assert cwd()\n",
		filepath.Join(pkg, "tests", "utils_test.py"):  "def test_nothing():\n    pass\n",
		filepath.Join(root, "tests", "test_utils.py"): "def test_shadowed():\n    pass\n",
		filepath.Join(pkg, "test_other.py"):           "def test_other():\n    pass\n",
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root, original
}

func TestDiscoverTests(t *testing.T) {
	root, original := testTree(t)

	found := DiscoverTests([]string{original, original})
	assert.Equal(t, []string{
		filepath.Join(root, "pkg", "test_utils.py"),
		filepath.Join(root, "pkg", "tests", "utils_test.py"),
		filepath.Join(root, "tests", "test_utils.py"),
	}, found)

	assert.Empty(t, DiscoverTests([]string{filepath.Join(root, "pkg", "missing.py")}))
	assert.Empty(t, DiscoverTests(nil))
}

func TestValidate_TestsRunInIsolatedWorkspace(t *testing.T) {
	_, original := testTree(t)
	merged := validSource + "\n\n# Merged from: b/utils.py\ndef extra():\n    return 1\n"

	var workspace string
	runner := &fakeRunner{
		available: map[Tool]bool{ToolTests: true},
		run: func(inv Invocation) (ToolResult, error) {
			workspace = inv.Dir
			data, err := os.ReadFile(filepath.Join(inv.Dir, "utils.py"))
			require.NoError(t, err)
			assert.Equal(t, merged, string(data))
			assert.FileExists(t, filepath.Join(inv.Dir, "test_utils.py"))
			assert.FileExists(t, filepath.Join(inv.Dir, "utils_test.py"))
			assert.NoFileExists(t, filepath.Join(inv.Dir, "test_other.py"))
			return ToolResult{Stdout: "..\n2 passed in 0.03s\n"}, nil
		},
	}

	out := newHarness(runner).Validate(context.Background(), merged, Options{
		Tests:     true,
		Originals: []string{original},
	})

	assert.True(t, out.Success)
	require.NotNil(t, out.Tests)
	assert.Equal(t, 2, out.Tests.Passed)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, DefaultTestTimeout, runner.calls[0].Timeout)
	// The second test_utils.py clashes by name with the first.
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "test_utils.py")

	_, err := os.Stat(workspace)
	assert.True(t, os.IsNotExist(err), "test workspace must be removed")
}

func TestValidate_TestFailures(t *testing.T) {
	_, original := testTree(t)
	runner := &fakeRunner{
		available: map[Tool]bool{ToolTests: true},
		run: func(inv Invocation) (ToolResult, error) {
			return ToolResult{ExitCode: 1, Stdout: "F.\nFAILED test_utils.py::test_cwd\n1 failed, 1 passed in 0.05s\n"}, nil
		},
	}

	out := newHarness(runner).Validate(context.Background(), validSource, Options{
		Tests:     true,
		Originals: []string{original},
	})

	assert.False(t, out.Success)
	stage, _ := out.Stage(StageTests)
	assert.False(t, stage.Passed)
	assert.Equal(t, "1 passed, 1 failed, 0 errors", stage.Message)
	assert.NotEmpty(t, stage.Details)
	require.NotNil(t, out.Tests)
	assert.Equal(t, TestCounts{Passed: 1, Failed: 1}, *out.Tests)
}

func TestValidate_TestTimeoutIsStageFailure(t *testing.T) {
	_, original := testTree(t)
	var workspace string
	runner := &fakeRunner{
		available: map[Tool]bool{ToolTests: true},
		run: func(inv Invocation) (ToolResult, error) {
			workspace = inv.Dir
			return ToolResult{ExitCode: -1}, errors.New(errors.CodeTimeout, "pytest exceeded deadline")
		},
	}

	h := NewHarness(parser.NewExtractor(), runner, Config{TestTimeout: 5e9})
	out := h.Validate(context.Background(), validSource, Options{Tests: true, Originals: []string{original}})

	assert.False(t, out.Success)
	stage, _ := out.Stage(StageTests)
	assert.False(t, stage.Passed)
	assert.Equal(t, "tests timed out after 5s", stage.Message)
	_, err := os.Stat(workspace)
	assert.True(t, os.IsNotExist(err))
}

func TestPreWrite_BackupAndSkipsTests(t *testing.T) {
	root, original := testTree(t)
	dest := filepath.Join(root, "out", "utils.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("old = 1\n"), 0o644))

	runner := &fakeRunner{available: map[Tool]bool{ToolTests: true, ToolTypecheck: true}}
	h := newHarness(runner)
	opts := Options{Tests: true, Typecheck: true, Originals: []string{original}}

	out := h.PreWrite(context.Background(), validSource, dest, opts)
	require.True(t, out.Success)
	assert.Equal(t, dest+".backup", out.BackupPath)
	assert.Equal(t, []string{StageSyntax, StageImports}, stageNames(out))
	assert.False(t, runner.ran(ToolTests))
	assert.False(t, runner.ran(ToolTypecheck))

	backup, err := os.ReadFile(out.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "old = 1\n", string(backup))

	// Single slot: the next run overwrites the previous backup.
	require.NoError(t, os.WriteFile(dest, []byte("newer = 2\n"), 0o644))
	out = h.PreWrite(context.Background(), validSource, dest, opts)
	require.True(t, out.Success)
	backup, err = os.ReadFile(dest + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "newer = 2\n", string(backup))
}

func TestPreWrite_NoBackupCases(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(nil)

	missing := filepath.Join(dir, "fresh.py")
	out := h.PreWrite(context.Background(), validSource, missing, Options{})
	assert.True(t, out.Success)
	assert.Empty(t, out.BackupPath)

	existing := filepath.Join(dir, "existing.py")
	require.NoError(t, os.WriteFile(existing, []byte("x = 1\n"), 0o644))
	out = h.PreWrite(context.Background(), "def broken(:\n", existing, Options{})
	assert.False(t, out.Success)
	assert.Empty(t, out.BackupPath)
	assert.NoFileExists(t, existing+".backup")
}

func TestPreWrite_BackupFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "utils.py")
	require.NoError(t, os.WriteFile(dest, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.Mkdir(dest+".backup", 0o755))

	out := newHarness(nil).PreWrite(context.Background(), validSource, dest, Options{})
	assert.True(t, out.Success)
	assert.Empty(t, out.BackupPath)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "backup of")
}

func TestParseTestCounts(t *testing.T) {
	tests := []struct {
		output string
		want   TestCounts
		ok     bool
	}{
		{"3 passed in 0.10s", TestCounts{Passed: 3}, true},
		{"1 failed, 4 passed, 2 skipped in 1.2s", TestCounts{Passed: 4, Failed: 1, Skipped: 2}, true},
		{"2 passed, 1 error in 0.4s", TestCounts{Passed: 2, Errors: 1}, true},
		{"no tests ran in 0.01s", TestCounts{}, false},
	}
	for _, tt := range tests {
		got, ok := parseTestCounts(tt.output)
		assert.Equal(t, tt.ok, ok, tt.output)
		assert.Equal(t, tt.want, got, tt.output)
	}
	assert.Equal(t, 7, TestCounts{Passed: 4, Failed: 1, Skipped: 2}.Total())
}
