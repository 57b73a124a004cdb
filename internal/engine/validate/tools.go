package validate

import (
	"context"
	"time"
)

// Tool names one external collaborator.
type Tool string

const (
	ToolLint      Tool = "lint"
	ToolTypecheck Tool = "typecheck"
	ToolTests     Tool = "tests"
)

// ToolSpec is the configured command line for a tool. Invocation args are
// appended after Args.
type ToolSpec struct {
	Command string
	Args    []string
}

// Invocation is one bounded tool run. A zero Timeout means no deadline
// beyond the caller's context.
type Invocation struct {
	Tool    Tool
	Args    []string
	Dir     string
	Timeout time.Duration
}

type ToolResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ToolRunner is the single boundary to lint, type-check and test tools.
// Run returns a CodeToolUnavailable error when the tool is missing and a
// CodeTimeout error when the deadline expires; a non-zero exit is not an
// error.
type ToolRunner interface {
	Available(tool Tool) bool
	Run(ctx context.Context, inv Invocation) (ToolResult, error)
}
