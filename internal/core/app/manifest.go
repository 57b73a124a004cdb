package app

import (
	"context"

	"codefuse/internal/core/errors"
	"codefuse/internal/core/manifest"
	"codefuse/internal/engine/fusion"
	"codefuse/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ManifestRequests turns every group of m into a Request. Fields of
// defaults apply to all groups; a group's own strategy and output win.
// Groups whose members cannot be resolved come back as failed Results at
// the same index.
func (a *App) ManifestRequests(m *manifest.Manifest, defaults Request) ([]Request, []*Result) {
	requests := make([]Request, len(m.Groups))
	failures := make([]*Result, len(m.Groups))
	for i := range m.Groups {
		group := &m.Groups[i]
		req := defaults
		req.Group = group.Name
		req.Paths = nil
		req.Output = group.OutputPath()
		if group.Strategy != "" {
			req.Strategy = group.Strategy
		}
		requests[i] = req

		paths, err := group.Resolve()
		if err != nil {
			res := Result{Group: group.Name}
			res.fail(errors.AddContext(err, errors.CtxOperation, "resolve_group"))
			failures[i] = &res
			continue
		}
		requests[i].Paths = paths
	}
	return requests, failures
}

// RunManifest fuses every group of m. Sets are loaded first, fused in
// parallel on the fusion planner, then validated and written one group at a
// time in manifest order. Only context cancellation returns an error.
func (a *App) RunManifest(ctx context.Context, m *manifest.Manifest, defaults Request) ([]Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.RunManifest", trace.WithAttributes(
		attribute.Int("groups", len(m.Groups)),
	))
	defer span.End()

	requests, failures := a.ManifestRequests(m, defaults)
	results := make([]Result, len(requests))
	jobs := make([]fusion.NamedSet, 0, len(requests))
	index := make([]int, 0, len(requests))
	spans := make([]trace.Span, len(requests))
	defer func() {
		for _, s := range spans {
			if s != nil {
				s.End()
			}
		}
	}()

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var gctx context.Context
		gctx, spans[i] = observability.Tracer.Start(ctx, "app.FuseGroup", trace.WithAttributes(
			attribute.String("group", req.groupName()),
			attribute.Int("paths", len(req.Paths)),
		))
		if failures[i] != nil {
			results[i] = *failures[i]
			a.finish(gctx, spans[i], req, &results[i])
			continue
		}
		res, set, opts := a.prepare(gctx, req)
		results[i] = res
		if res.Err != nil {
			a.finish(gctx, spans[i], req, &results[i])
			continue
		}
		jobs = append(jobs, fusion.NamedSet{Name: req.groupName(), Set: set, Options: opts})
		index = append(index, i)
	}

	planned, err := fusion.NewPlanner(a.Config().Fusion.Workers).FuseAll(ctx, jobs)
	if err != nil {
		return results, err
	}
	for j, p := range planned {
		i := index[j]
		results[i].Fusion = p.Outcome
		a.complete(trace.ContextWithSpan(ctx, spans[i]), spans[i], requests[i], &results[i])
	}
	return results, nil
}
