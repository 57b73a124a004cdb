// Package fusion selects a base unit from a version set and synthesizes one
// merged source text that carries every declaration found across the set.
package fusion

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/engine/compare"
	"codefuse/internal/engine/parser"
)

// MergedFromPrefix tags every declaration appended from a non-base unit.
const MergedFromPrefix = "# Merged from: "

const sectionSeparator = "\n\n\n"

// Stats keys.
const (
	StatUnits             = "units"
	StatBaseScore         = "base_score"
	StatImports           = "imports"
	StatFunctionsTotal    = "functions_total"
	StatClassesTotal      = "classes_total"
	StatFunctionsAdded    = "functions_added"
	StatClassesAdded      = "classes_added"
	StatConflictsDetected = "conflicts_detected"
	StatPending           = "pending"
	StatResolved          = "resolved"
)

// VersionSet is an ordered collection of units believed to be versions of
// the same logical file. Order decides every tie.
type VersionSet []*parser.ProgramUnit

// IDs returns the unit ids in set order.
func (s VersionSet) IDs() []string {
	out := make([]string, 0, len(s))
	for _, u := range s {
		if u != nil {
			out = append(out, u.ID)
		}
	}
	return out
}

type Options struct {
	Strategy      Strategy
	Quality       QualityScorer
	QualityWeight float64
}

// Outcome is the result of one fusion. Err is set when Success is false.
type Outcome struct {
	Success        bool                     `json:"success"`
	BaseUnit       string                   `json:"base_unit"`
	Merged         string                   `json:"-"`
	FunctionsAdded []string                 `json:"functions_added"`
	ClassesAdded   []string                 `json:"classes_added"`
	Conflicts      []compare.ConflictRecord `json:"conflicts"`
	Resolved       []Resolution             `json:"resolved"`
	Pending        []compare.ConflictRecord `json:"pending"`
	Warnings       []string                 `json:"warnings,omitempty"`
	Stats          map[string]int           `json:"stats"`
	Comparison     compare.Result           `json:"comparison"`
	Err            error                    `json:"-"`
}

func failed(err error, warnings []string) Outcome {
	return Outcome{Success: false, Err: err, Warnings: warnings, Stats: map[string]int{}}
}

// Fuse synthesizes the merged text for set. The base unit's declarations
// are emitted verbatim; declarations from other units are appended only
// when their name is not yet present. Conflicts are reported and never
// change the output.
func Fuse(set VersionSet, opts Options) Outcome {
	if opts.Strategy == "" {
		opts.Strategy = StrategyManual
	}

	var warnings []string
	units := make(VersionSet, 0, len(set))
	for i, u := range set {
		if u == nil {
			warnings = append(warnings, fmt.Sprintf("skipping empty entry at position %d", i))
			continue
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return failed(errors.New(errors.CodeEmptyInput, "version set is empty"), warnings)
	}

	idx, err := SelectBase(units, opts)
	if err != nil {
		return failed(err, warnings)
	}
	base := units[idx]
	if base.ContentHash == "" {
		return failed(errors.AddContext(
			errors.New(errors.CodeIO, "base unit has no readable source"),
			errors.CtxUnit, base.ID), warnings)
	}

	out := Outcome{
		Success:    true,
		BaseUnit:   base.ID,
		Warnings:   warnings,
		Comparison: compare.Compare(units),
	}

	if len(units) == 1 {
		out.Merged = base.Source
		out.Stats = stats(units, base, out, len(base.Imports), base.Functions.Len(), base.Classes.Len())
		return out
	}

	var sections []string
	if base.DocstringSource != "" {
		sections = append(sections, base.DocstringSource)
	}

	imports, guards := unionImports(units)
	if len(imports) > 0 {
		sections = append(sections, strings.Join(imports, "\n"))
	}
	sections = append(sections, guards...)

	present := make(map[string]bool)
	nFuncs, nClasses := 0, 0
	for _, fn := range base.Functions.All() {
		sections = append(sections, fn.Source)
		present[fn.Name] = true
		nFuncs++
	}
	for _, cls := range base.Classes.All() {
		sections = append(sections, cls.Source)
		present[cls.Name] = true
		nClasses++
	}

	for _, unit := range units {
		if unit == base {
			continue
		}
		for _, fn := range unit.Functions.All() {
			if present[fn.Name] {
				continue
			}
			sections = append(sections, MergedFromPrefix+unit.ID+"\n"+fn.Source)
			present[fn.Name] = true
			out.FunctionsAdded = append(out.FunctionsAdded, fn.Name)
			nFuncs++
		}
		for _, cls := range unit.Classes.All() {
			if present[cls.Name] {
				continue
			}
			sections = append(sections, MergedFromPrefix+unit.ID+"\n"+cls.Source)
			present[cls.Name] = true
			out.ClassesAdded = append(out.ClassesAdded, cls.Name)
			nClasses++
		}
	}

	if len(sections) > 0 {
		out.Merged = strings.Join(sections, sectionSeparator) + "\n"
	}

	routeConflicts(&out, units, base, opts.Strategy)
	out.Stats = stats(units, base, out, len(imports)+len(guards), nFuncs, nClasses)
	return out
}

// unionImports returns the plain import lines and the guarded import blocks
// of every unit, each deduplicated by exact text and sorted. A guarded block
// is emitted whole so fallbacks such as try/except ImportError keep working.
func unionImports(units VersionSet) (plain, guards []string) {
	seen := make(map[string]struct{})
	for _, u := range units {
		for _, imp := range u.Imports {
			text, dst := imp.Raw, &plain
			if imp.Guarded() {
				text, dst = imp.Guard, &guards
			}
			if _, ok := seen[text]; ok {
				continue
			}
			seen[text] = struct{}{}
			*dst = append(*dst, text)
		}
	}
	sort.Strings(plain)
	sort.Strings(guards)
	return plain, guards
}

func routeConflicts(out *Outcome, units VersionSet, base *parser.ProgramUnit, strategy Strategy) {
	out.Conflicts = out.Comparison.Conflicts
	if len(out.Conflicts) == 0 {
		return
	}

	modTimes := make(map[string]time.Time, len(units))
	for _, u := range units {
		modTimes[u.ID] = u.ModTime
	}

	for _, rec := range out.Conflicts {
		kept := keptUnit(units, base, rec.Kind, rec.Name)
		if strategy == StrategyManual {
			out.Pending = append(out.Pending, rec)
			slog.Debug("conflict pending", "kind", rec.Kind.String(), "name", rec.Name, "kept", kept)
			continue
		}
		res := resolve(strategy, rec, kept, modTimes)
		out.Resolved = append(out.Resolved, res)
		slog.Debug("conflict resolved", "kind", rec.Kind.String(), "name", rec.Name, "strategy", string(strategy), "winner", res.Winner, "kept", kept)
	}
}

func stats(units VersionSet, base *parser.ProgramUnit, out Outcome, imports, funcs, classes int) map[string]int {
	return map[string]int{
		StatUnits:             len(units),
		StatBaseScore:         Score(base),
		StatImports:           imports,
		StatFunctionsTotal:    funcs,
		StatClassesTotal:      classes,
		StatFunctionsAdded:    len(out.FunctionsAdded),
		StatClassesAdded:      len(out.ClassesAdded),
		StatConflictsDetected: len(out.Comparison.Conflicts),
		StatPending:           len(out.Pending),
		StatResolved:          len(out.Resolved),
	}
}
