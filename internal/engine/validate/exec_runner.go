package validate

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/shared/observability"
	"codefuse/internal/shared/util"
)

const killGrace = 2 * time.Second

// ExecRunner runs tools as child processes. Each child gets its own
// process group so a deadline kills the whole tree.
type ExecRunner struct {
	specs    map[Tool]ToolSpec
	limiter  *util.Limiter
	lookPath func(string) (string, error)
}

// NewExecRunner builds a runner for the given tool specs. limiter may be
// nil.
func NewExecRunner(specs map[Tool]ToolSpec, limiter *util.Limiter) *ExecRunner {
	copied := make(map[Tool]ToolSpec, len(specs))
	for tool, spec := range specs {
		copied[tool] = spec
	}
	return &ExecRunner{specs: copied, limiter: limiter, lookPath: exec.LookPath}
}

func (r *ExecRunner) Available(tool Tool) bool {
	spec, ok := r.specs[tool]
	if !ok || spec.Command == "" {
		return false
	}
	_, err := r.lookPath(spec.Command)
	return err == nil
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (ToolResult, error) {
	spec, ok := r.specs[inv.Tool]
	if !ok || spec.Command == "" {
		return ToolResult{}, errors.AddContext(errors.New(errors.CodeToolUnavailable, "tool not configured"), errors.CtxTool, string(inv.Tool))
	}
	path, err := r.lookPath(spec.Command)
	if err != nil {
		observability.ToolInvocationsTotal.WithLabelValues(string(inv.Tool), "unavailable").Inc()
		return ToolResult{}, errors.AddContext(errors.Wrap(err, errors.CodeToolUnavailable, spec.Command+" not found"), errors.CtxTool, string(inv.Tool))
	}

	if err := r.limiter.Wait(ctx, 1); err != nil {
		return ToolResult{}, errors.AddContext(errors.Wrap(err, errors.CodeTimeout, "waiting to start tool"), errors.CtxTool, string(inv.Tool))
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, spec.Args...), inv.Args...)
	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = inv.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = killGrace

	slog.Debug("running tool", "tool", string(inv.Tool), "command", spec.Command, "args", args, "dir", inv.Dir)
	start := time.Now()
	runErr := cmd.Run()
	res := ToolResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	observability.ToolDuration.WithLabelValues(string(inv.Tool)).Observe(res.Duration.Seconds())

	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
		observability.ToolInvocationsTotal.WithLabelValues(string(inv.Tool), "timeout").Inc()
		err := errors.Wrap(runCtx.Err(), errors.CodeTimeout, spec.Command+" exceeded "+inv.Timeout.String())
		return res, errors.AddContext(err, errors.CtxTool, string(inv.Tool))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			observability.ToolInvocationsTotal.WithLabelValues(string(inv.Tool), "nonzero").Inc()
			return res, nil
		}
		observability.ToolInvocationsTotal.WithLabelValues(string(inv.Tool), "error").Inc()
		return res, errors.AddContext(errors.Wrap(runErr, errors.CodeInternal, "run "+spec.Command), errors.CtxTool, string(inv.Tool))
	}
	observability.ToolInvocationsTotal.WithLabelValues(string(inv.Tool), "ok").Inc()
	return res, nil
}
