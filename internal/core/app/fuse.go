package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/data/history"
	"codefuse/internal/engine/fusion"
	"codefuse/internal/engine/parser"
	"codefuse/internal/engine/validate"
	"codefuse/internal/shared/observability"
	"codefuse/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultGroup = "default"

// Request describes one fusion: the version paths in caller order, where
// the result goes and which checks run first.
type Request struct {
	Group     string
	Paths     []string
	Output    string
	Strategy  string
	Validate  bool
	Lint      bool
	Typecheck bool
	Tests     bool
	Write     bool
}

func (r Request) groupName() string {
	if strings.TrimSpace(r.Group) == "" {
		return defaultGroup
	}
	return r.Group
}

func (r Request) validationOptions(originals []string) validate.Options {
	opts := validate.Options{
		Lint:      r.Lint,
		Typecheck: r.Typecheck,
		Tests:     r.Tests,
		Originals: originals,
	}
	if r.Output != "" {
		opts.ModuleName = filepath.Base(r.Output)
	}
	return opts
}

// Result is what one Request produced. Err is set for failures that stop
// the pipeline; rejected validation is reported through Validation and
// PreWrite.
type Result struct {
	Group      string            `json:"group"`
	Units      []string          `json:"units"`
	Strategy   string            `json:"strategy"`
	Fusion     fusion.Outcome    `json:"fusion"`
	Validation *validate.Outcome `json:"validation,omitempty"`
	PreWrite   *validate.Outcome `json:"pre_write,omitempty"`
	Output     string            `json:"output,omitempty"`
	Written    bool              `json:"written"`
	RunID      string            `json:"run_id,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// Success reports whether fusion succeeded, every requested check passed
// and a requested write happened.
func (r Result) Success() bool {
	if r.Err != nil || !r.Fusion.Success {
		return false
	}
	if r.Validation != nil && !r.Validation.Success {
		return false
	}
	if r.PreWrite != nil && !r.PreWrite.Success {
		return false
	}
	return true
}

func (r *Result) fail(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// DefaultRequest fills the strategy and validation switches from config.
func (a *App) DefaultRequest() Request {
	cfg := a.Config()
	v := cfg.Validation
	return Request{
		Strategy:  cfg.Fusion.Strategy,
		Validate:  v.Lint || v.Typecheck || v.Tests,
		Lint:      v.Lint,
		Typecheck: v.Typecheck,
		Tests:     v.Tests,
	}
}

// LoadSet extracts every path in order. Units that cannot be read or parsed
// are dropped with a warning; a set left empty is a CodeEmptyInput error.
func (a *App) LoadSet(ctx context.Context, paths []string) (fusion.VersionSet, []string, error) {
	set := make(fusion.VersionSet, 0, len(paths))
	var warnings []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		unit, err := a.Extractor.ExtractFile(path)
		if err != nil {
			slog.Warn("unit excluded", "unit", path, "error", err)
			warnings = append(warnings, describeLoadError(path, err))
			continue
		}
		set = append(set, unit)
	}
	if len(set) == 0 {
		return nil, warnings, errors.New(errors.CodeEmptyInput, fmt.Sprintf("no usable units among %d paths", len(paths)))
	}
	return set, warnings, nil
}

func describeLoadError(path string, err error) string {
	if pe, ok := parser.AsParseError(err); ok {
		return fmt.Sprintf("%s excluded: syntax error at line %d: %s", path, pe.Line, pe.Message)
	}
	return fmt.Sprintf("%s excluded: %v", path, err)
}

// FuseGroup loads, fuses and optionally validates and writes one version
// set. It never panics on bad input; failures are carried in the Result.
func (a *App) FuseGroup(ctx context.Context, req Request) Result {
	ctx, span := observability.Tracer.Start(ctx, "app.FuseGroup", trace.WithAttributes(
		attribute.String("group", req.groupName()),
		attribute.Int("paths", len(req.Paths)),
	))
	defer span.End()

	res, set, opts := a.prepare(ctx, req)
	if res.Err != nil {
		a.finish(ctx, span, req, &res)
		return res
	}

	start := time.Now()
	res.Fusion = fusion.Fuse(set, opts)
	observability.FusionDuration.Observe(time.Since(start).Seconds())

	a.complete(ctx, span, req, &res)
	return res
}

// prepare resolves the strategy and loads the version set.
func (a *App) prepare(ctx context.Context, req Request) (Result, fusion.VersionSet, fusion.Options) {
	cfg := a.Config()
	res := Result{Group: req.groupName(), Output: req.Output}

	raw := req.Strategy
	if raw == "" {
		raw = cfg.Fusion.Strategy
	}
	strategy, err := fusion.ParseStrategy(raw)
	if err != nil {
		res.fail(err)
		return res, nil, fusion.Options{}
	}
	res.Strategy = string(strategy)

	set, warnings, err := a.LoadSet(ctx, req.Paths)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.fail(err)
		return res, nil, fusion.Options{}
	}
	res.Units = set.IDs()

	return res, set, fusion.Options{
		Strategy:      strategy,
		Quality:       a.quality,
		QualityWeight: cfg.Fusion.QualityWeight,
	}
}

// complete runs the post-fusion steps on res, whose Fusion is set.
func (a *App) complete(ctx context.Context, span trace.Span, req Request, res *Result) {
	outcome := res.Fusion
	res.Warnings = append(res.Warnings, outcome.Warnings...)
	if !outcome.Success {
		res.fail(outcome.Err)
		a.finish(ctx, span, req, res)
		return
	}

	for _, rec := range outcome.Conflicts {
		observability.ConflictsTotal.WithLabelValues(rec.Kind.String()).Inc()
	}
	observability.DeclarationsAddedTotal.WithLabelValues(parser.KindFunction.String()).Add(float64(len(outcome.FunctionsAdded)))
	observability.DeclarationsAddedTotal.WithLabelValues(parser.KindClass.String()).Add(float64(len(outcome.ClassesAdded)))
	span.SetAttributes(
		attribute.String("base_unit", outcome.BaseUnit),
		attribute.Int("conflicts", len(outcome.Conflicts)),
	)

	vopts := req.validationOptions(res.Units)
	if req.Validate {
		v := a.Harness().Validate(ctx, outcome.Merged, vopts)
		res.Validation = &v
		res.Warnings = append(res.Warnings, v.Warnings...)
	}

	if req.Write {
		switch {
		case req.Output == "":
			res.Warnings = append(res.Warnings, "write requested without an output path; nothing written")
		case res.Validation != nil && !res.Validation.Success:
			res.Warnings = append(res.Warnings, "validation failed; "+req.Output+" not written")
		default:
			pre, err := a.Write(ctx, outcome.Merged, req.Output, vopts)
			res.PreWrite = &pre
			res.Warnings = append(res.Warnings, pre.Warnings...)
			if err != nil {
				res.fail(err)
			} else {
				res.Written = true
			}
		}
	}

	a.finish(ctx, span, req, res)
}

// finish records metrics, span status and history for res.
func (a *App) finish(_ context.Context, span trace.Span, req Request, res *Result) {
	result := "success"
	if !res.Success() {
		result = "failure"
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		span.SetStatus(codes.Error, "fusion failed")
	}
	observability.FusionsTotal.WithLabelValues(result).Inc()
	a.record(req, res)
}

func (a *App) record(req Request, res *Result) {
	if a.History == nil {
		return
	}
	run := history.Run{
		Group:          res.Group,
		Strategy:       res.Strategy,
		BaseUnit:       res.Fusion.BaseUnit,
		UnitCount:      len(res.Units),
		FunctionsAdded: len(res.Fusion.FunctionsAdded),
		ClassesAdded:   len(res.Fusion.ClassesAdded),
		Conflicts:      len(res.Fusion.Conflicts),
		Pending:        len(res.Fusion.Pending),
		Validated:      res.Validation != nil,
		Success:        res.Success(),
	}
	if res.Fusion.Merged != "" {
		run.MergedHash = parser.ContentHash([]byte(res.Fusion.Merged))
	}
	id, err := a.History.SaveRun(run)
	if err != nil {
		slog.Warn("failed to record fusion run", "group", res.Group, "error", err)
		res.Warnings = append(res.Warnings, "history: "+err.Error())
		return
	}
	res.RunID = id
}

// Write runs the pre-write checks and, when they pass, writes merged to
// dest. The returned outcome carries the backup path, if one was made.
func (a *App) Write(ctx context.Context, merged, dest string, opts validate.Options) (validate.Outcome, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Write", trace.WithAttributes(attribute.String("path", dest)))
	defer span.End()

	pre := a.Harness().PreWrite(ctx, merged, dest, opts)
	if !pre.Success {
		err := errors.AddContext(errors.New(errors.CodeValidationError, "pre-write validation failed"), errors.CtxPath, dest)
		span.RecordError(err)
		return pre, err
	}
	if err := util.WriteStringWithDirs(dest, merged, 0o644); err != nil {
		werr := errors.AddContext(errors.Wrap(err, errors.CodeIO, "write merged output"), errors.CtxPath, dest)
		span.RecordError(werr)
		return pre, werr
	}
	slog.Info("merged output written", "path", dest, "backup", pre.BackupPath)
	return pre, nil
}
