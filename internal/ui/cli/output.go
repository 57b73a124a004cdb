package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	coreapp "codefuse/internal/core/app"
	"codefuse/internal/data/history"
	"codefuse/internal/engine/validate"
)

type printer struct {
	w      io.Writer
	json   bool
	source bool
}

func newPrinter(w io.Writer, asJSON, source bool) *printer {
	return &printer{w: w, json: asJSON, source: source}
}

// results prints a whole batch: one JSON array, or one text block per
// result.
func (p *printer) results(results []coreapp.Result) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, res := range results {
		if err := p.result(res); err != nil {
			return err
		}
	}
	return nil
}

// result prints one result. JSON results are written one object per line.
func (p *printer) result(res coreapp.Result) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(res)
	}
	if p.source {
		if !res.Fusion.Success {
			return nil
		}
		_, err := io.WriteString(p.w, res.Fusion.Merged)
		return err
	}
	_, err := io.WriteString(p.w, formatResult(res))
	return err
}

func formatResult(res coreapp.Result) string {
	var b strings.Builder
	status := "ok"
	if !res.Success() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "group %s: %s\n", res.Group, status)

	if res.Err != nil {
		fmt.Fprintf(&b, "  error: %v\n", res.Err)
	}
	if res.Fusion.Success {
		out := res.Fusion
		fmt.Fprintf(&b, "  base: %s (%d units, strategy %s)\n", out.BaseUnit, len(res.Units), res.Strategy)
		fmt.Fprintf(&b, "  functions added: %s\n", listOrDash(out.FunctionsAdded))
		fmt.Fprintf(&b, "  classes added: %s\n", listOrDash(out.ClassesAdded))
		fmt.Fprintf(&b, "  conflicts: %d (%d pending, %d resolved)\n", len(out.Conflicts), len(out.Pending), len(out.Resolved))
		for _, rec := range out.Conflicts {
			fmt.Fprintf(&b, "    %s\n", rec.Describe())
		}
		for _, r := range out.Resolved {
			if !r.Agrees() {
				fmt.Fprintf(&b, "    %s %s: %s\n", r.Strategy, r.Conflict.Name, r.Note)
			}
		}
	}

	writeValidation(&b, "validation", res.Validation)
	writeValidation(&b, "pre-write", res.PreWrite)

	switch {
	case res.Output == "":
	case res.Written && res.PreWrite != nil && res.PreWrite.BackupPath != "":
		fmt.Fprintf(&b, "  output: %s (written, backup %s)\n", res.Output, res.PreWrite.BackupPath)
	case res.Written:
		fmt.Fprintf(&b, "  output: %s (written)\n", res.Output)
	default:
		fmt.Fprintf(&b, "  output: %s (not written)\n", res.Output)
	}
	if res.RunID != "" {
		fmt.Fprintf(&b, "  run: %s\n", res.RunID)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}

func writeValidation(b *strings.Builder, label string, v *validate.Outcome) {
	if v == nil {
		return
	}
	verdict := "passed"
	if !v.Success {
		verdict = "failed"
	}
	fmt.Fprintf(b, "  %s: %s\n", label, verdict)
	for _, stage := range v.Stages {
		mark := "pass"
		if !stage.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(b, "    [%s] %s: %s\n", mark, stage.Name, stage.Message)
	}
	if v.Tests != nil {
		fmt.Fprintf(b, "    tests: %d passed, %d failed, %d errors, %d skipped\n",
			v.Tests.Passed, v.Tests.Failed, v.Tests.Errors, v.Tests.Skipped)
	}
}

func listOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func (p *printer) runs(runs []history.Run) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTIME\tSTRATEGY\tBASE\tUNITS\t+FUNCS\t+CLASSES\tCONFLICTS\tPENDING\tVALIDATED\tSUCCESS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%t\t%t\n",
			r.RunID, r.Timestamp.Format(time.RFC3339), r.Strategy, r.BaseUnit, r.UnitCount,
			r.FunctionsAdded, r.ClassesAdded, r.Conflicts, r.Pending, r.Validated, r.Success)
	}
	return tw.Flush()
}
