package fusion

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// NamedSet is one independent fusion job.
type NamedSet struct {
	Name    string
	Set     VersionSet
	Options Options
}

// PlannedOutcome pairs a job name with its outcome.
type PlannedOutcome struct {
	Name    string
	Outcome Outcome
}

// Planner fuses independent version sets in parallel. Sets share no state,
// so the only coordination is the worker bound.
type Planner struct {
	Workers int
}

func NewPlanner(workers int) *Planner {
	return &Planner{Workers: workers}
}

// FuseAll runs every job and returns outcomes in input order. A failed
// fusion is reported in its Outcome; only context cancellation stops the
// remaining jobs.
func (p *Planner) FuseAll(ctx context.Context, jobs []NamedSet) ([]PlannedOutcome, error) {
	results := make([]PlannedOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	for i, job := range jobs {
		results[i].Name = job.Name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].Outcome = Fuse(job.Set, job.Options)
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func (p *Planner) workers() int {
	if p == nil || p.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}
