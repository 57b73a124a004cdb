package cli

import (
	"flag"
	"io"

	"codefuse/internal/core/config"
)

const versionString = "0.4.0"

type cliOptions struct {
	configPath  string
	manifest    string
	group       string
	out         string
	write       bool
	print       bool
	strategy    string
	validate    bool
	lint        bool
	typecheck   bool
	tests       bool
	json        bool
	history     bool
	runs        string
	since       string
	watch       bool
	metricsAddr string
	verbose     bool
	version     bool
	args        []string
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("codefuse", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to config file")
	fs.StringVar(&opts.manifest, "manifest", "", "YAML group manifest; fuses every group instead of positional paths")
	fs.StringVar(&opts.group, "group", "", "Group name; with --manifest selects a single group")
	fs.StringVar(&opts.out, "out", "", "Destination of the merged file (positional mode)")
	fs.BoolVar(&opts.write, "write", false, "Write merged output after pre-write checks; default is a dry run")
	fs.BoolVar(&opts.print, "print", false, "Print the merged source to stdout instead of the summary")
	fs.StringVar(&opts.strategy, "strategy", "", "Conflict strategy: manual, keep_largest, keep_most_complex, keep_newest, keep_all")
	fs.BoolVar(&opts.validate, "validate", false, "Validate merged output (syntax and imports)")
	fs.BoolVar(&opts.lint, "lint", false, "Run the lint tool during validation")
	fs.BoolVar(&opts.typecheck, "typecheck", false, "Run the type checker during validation (reported only)")
	fs.BoolVar(&opts.tests, "tests", false, "Run tests discovered next to the originals against the merged output")
	fs.BoolVar(&opts.json, "json", false, "Emit results as JSON")
	fs.BoolVar(&opts.history, "history", false, "Record runs in the local history database")
	fs.StringVar(&opts.runs, "runs", "", "List recorded runs of this group and exit (enables history)")
	fs.StringVar(&opts.since, "since", "", "With --runs, only runs at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	fs.BoolVar(&opts.watch, "watch", false, "Re-fuse when a member file changes")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}
