// Package compare classifies the declarations of a version set and reports
// names whose implementations differ between units.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"codefuse/internal/engine/parser"
)

// Occurrence lists the units, in set order, that declare Name.
type Occurrence struct {
	Name    string   `json:"name"`
	UnitIDs []string `json:"units"`
}

// UnitSummary describes one unit's implementation of a conflicting name.
// Measure is the complexity for functions and the method count for classes.
type UnitSummary struct {
	UnitID      string `json:"unit"`
	ContentHash string `json:"hash"`
	Lines       int    `json:"lines"`
	Measure     int    `json:"measure"`
}

// ConflictRecord is a declaration name shared by two or more units.
type ConflictRecord struct {
	Kind        parser.DeclKind `json:"kind"`
	Name        string          `json:"name"`
	Summaries   []UnitSummary   `json:"units"`
	ParamsEqual bool            `json:"params_equal"`
}

// HasConflict is true iff the summaries carry at least two distinct hashes.
func (c ConflictRecord) HasConflict() bool {
	return c.DistinctHashes() >= 2
}

func (c ConflictRecord) DistinctHashes() int {
	seen := make(map[string]struct{}, len(c.Summaries))
	for _, s := range c.Summaries {
		seen[s.ContentHash] = struct{}{}
	}
	return len(seen)
}

// UnitIDs returns the ids of the units involved, in set order.
func (c ConflictRecord) UnitIDs() []string {
	out := make([]string, 0, len(c.Summaries))
	for _, s := range c.Summaries {
		out = append(out, s.UnitID)
	}
	return out
}

// Describe renders the human-readable difference summary.
func (c ConflictRecord) Describe() string {
	measure := "complexity"
	if c.Kind == parser.KindClass {
		measure = "methods"
	}

	parts := make([]string, 0, len(c.Summaries))
	for _, s := range c.Summaries {
		parts = append(parts, fmt.Sprintf("%s (%d lines, %s %d)", s.UnitID, s.Lines, measure, s.Measure))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s has %d implementations: %s",
		c.Kind, c.Name, c.DistinctHashes(), strings.Join(parts, ", "))
	if c.Kind == parser.KindFunction {
		if c.ParamsEqual {
			b.WriteString("; parameters identical")
		} else {
			b.WriteString("; parameters differ")
		}
	}
	return b.String()
}

// Result is the classification of one version set.
type Result struct {
	UniqueFunctions []Occurrence     `json:"unique_functions"`
	CommonFunctions []Occurrence     `json:"common_functions"`
	UniqueClasses   []Occurrence     `json:"unique_classes"`
	CommonClasses   []Occurrence     `json:"common_classes"`
	Conflicts       []ConflictRecord `json:"conflicts"`
}

// Conflict returns the record for name of the given kind.
func (r Result) Conflict(kind parser.DeclKind, name string) (ConflictRecord, bool) {
	for _, c := range r.Conflicts {
		if c.Kind == kind && c.Name == name {
			return c, true
		}
	}
	return ConflictRecord{}, false
}

// Compare tallies each declaration kind independently. A name in exactly
// one unit is unique; a name in every unit is common. Compare does not
// mutate its input.
func Compare(units []*parser.ProgramUnit) Result {
	var res Result
	res.UniqueFunctions, res.CommonFunctions, res.Conflicts = classify(units, parser.KindFunction, res.Conflicts)
	res.UniqueClasses, res.CommonClasses, res.Conflicts = classify(units, parser.KindClass, res.Conflicts)
	return res
}

type tally struct {
	names []string
	decls map[string][]parser.Declaration
}

func collect(units []*parser.ProgramUnit, kind parser.DeclKind) tally {
	t := tally{decls: make(map[string][]parser.Declaration)}
	for _, unit := range units {
		if unit == nil {
			continue
		}
		var names []string
		switch kind {
		case parser.KindFunction:
			names = unit.Functions.Names()
		case parser.KindClass:
			names = unit.Classes.Names()
		}
		for _, name := range names {
			decl, ok := unit.Lookup(kind, name)
			if !ok {
				continue
			}
			if _, seen := t.decls[name]; !seen {
				t.names = append(t.names, name)
			}
			t.decls[name] = append(t.decls[name], decl)
		}
	}
	return t
}

func classify(units []*parser.ProgramUnit, kind parser.DeclKind, conflicts []ConflictRecord) (unique, common []Occurrence, _ []ConflictRecord) {
	total := 0
	for _, u := range units {
		if u != nil {
			total++
		}
	}

	t := collect(units, kind)
	for _, name := range t.names {
		decls := t.decls[name]
		occ := Occurrence{Name: name, UnitIDs: make([]string, 0, len(decls))}
		for _, d := range decls {
			occ.UnitIDs = append(occ.UnitIDs, d.Base().UnitID)
		}

		if len(decls) == 1 {
			unique = append(unique, occ)
		}
		if len(decls) == total {
			common = append(common, occ)
		}
		if len(decls) < 2 {
			continue
		}
		if rec := conflictFor(kind, name, decls); rec.HasConflict() {
			conflicts = append(conflicts, rec)
		}
	}
	return unique, common, conflicts
}

func conflictFor(kind parser.DeclKind, name string, decls []parser.Declaration) ConflictRecord {
	rec := ConflictRecord{Kind: kind, Name: name, ParamsEqual: true}
	var firstParams []string
	for i, d := range decls {
		base := d.Base()
		summary := UnitSummary{
			UnitID:      base.UnitID,
			ContentHash: base.ContentHash,
			Lines:       base.Lines(),
		}
		switch v := d.(type) {
		case *parser.Function:
			summary.Measure = v.Complexity
			if i == 0 {
				firstParams = v.Params
			} else if !slices.Equal(firstParams, v.Params) {
				rec.ParamsEqual = false
			}
		case *parser.Class:
			summary.Measure = len(v.Methods)
		}
		rec.Summaries = append(rec.Summaries, summary)
	}
	if kind == parser.KindClass {
		rec.ParamsEqual = false
	}
	return rec
}
