package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreapp "codefuse/internal/core/app"
	"codefuse/internal/core/config"
	"codefuse/internal/core/manifest"
	"codefuse/internal/data/history"
	"codefuse/internal/engine/fusion"
	"codefuse/internal/shared/observability"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks mistakes in the command line itself.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return exitUsage
	}

	if opts.version {
		fmt.Fprintf(stdout, "codefuse v%s\n", versionString)
		return exitOK
	}

	configureLogging(stderr, opts.verbose)

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFailure
	}

	if err := applyModeOptions(&opts, cfg); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitUsage
	}

	if opts.runs != "" {
		return runHistoryMode(opts, cfg, stdout)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	app, err := coreapp.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return exitFailure
	}
	defer app.Close()

	if cfg.Observability.Enabled {
		server := NewObservabilityServer(cfg.Observability.Address, coreapp.NewHealthService(app))
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return exitFailure
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	slog.Debug("runtime ready", "config", cfgPath, "strategy", cfg.Fusion.Strategy, "history", cfg.History.Enabled)

	base := buildRequest(opts, app)
	var (
		results  []coreapp.Result
		requests []coreapp.Request
	)
	if opts.manifest != "" {
		m, err := loadManifest(opts)
		if err != nil {
			slog.Error("failed to load manifest", "path", opts.manifest, "error", err)
			return exitFailure
		}
		results, err = app.RunManifest(ctx, m, base)
		if err != nil {
			slog.Error("manifest run interrupted", "error", err)
			return exitFailure
		}
		var failures []*coreapp.Result
		requests, failures = app.ManifestRequests(m, base)
		requests = resolvedOnly(requests, failures)
	} else {
		req := base
		req.Group = opts.group
		req.Paths = opts.args
		results = []coreapp.Result{app.FuseGroup(ctx, req)}
		requests = []coreapp.Request{req}
	}

	printer := newPrinter(stdout, opts.json, opts.print)
	if err := printer.results(results); err != nil {
		slog.Error("failed to print results", "error", err)
		return exitFailure
	}

	if opts.watch {
		return runWatchMode(ctx, app, cfgPath, requests, printer)
	}

	for _, res := range results {
		if !res.Success() {
			return exitFailure
		}
	}
	return exitOK
}

func runWatchMode(ctx context.Context, app *coreapp.App, cfgPath string, requests []coreapp.Request, printer *printer) int {
	if cfgPath != "" {
		reloader := config.NewWatcher(cfgPath, app.ApplyConfig)
		if err := reloader.Start(ctx); err != nil {
			slog.Warn("config hot reload disabled", "path", cfgPath, "error", err)
		} else {
			defer reloader.Stop()
		}
	}

	err := app.Watch(ctx, requests, func(res coreapp.Result) {
		if err := printer.result(res); err != nil {
			slog.Error("failed to print result", "group", res.Group, "error", err)
		}
	})
	if err != nil {
		slog.Error("watch failed", "error", err)
		return exitFailure
	}
	return exitOK
}

// loadConfig reads path. A missing file at the default path falls back to
// built-in defaults and returns an empty config path.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path == config.DefaultPath && os.IsNotExist(err) {
			cfg = config.Default()
			path = ""
		} else {
			return nil, "", err
		}
	}

	config.ApplyEnvOverrides(cfg)
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, "", errs[0]
	}
	return cfg, path, nil
}

// applyModeOptions checks flag combinations and folds flag overrides into
// cfg.
func applyModeOptions(opts *cliOptions, cfg *config.Config) error {
	if opts.strategy != "" {
		if _, err := fusion.ParseStrategy(opts.strategy); err != nil {
			return usageError{fmt.Sprintf("--strategy: %v", err)}
		}
		cfg.Fusion.Strategy = opts.strategy
	}
	if opts.history || opts.runs != "" {
		cfg.History.Enabled = true
	}
	if opts.metricsAddr != "" {
		cfg.Observability.Enabled = true
		cfg.Observability.Address = opts.metricsAddr
	}
	if opts.since != "" && opts.runs == "" {
		return usageError{"--since requires --runs"}
	}
	if opts.runs != "" {
		if opts.manifest != "" || len(opts.args) > 0 {
			return usageError{"--runs cannot be combined with paths or --manifest"}
		}
		return nil
	}

	if opts.manifest != "" {
		if len(opts.args) > 0 {
			return usageError{"--manifest cannot be combined with positional paths"}
		}
		if opts.out != "" {
			return usageError{"--out is per group in manifest mode; set output in the manifest"}
		}
	} else {
		if len(opts.args) == 0 {
			return usageError{"usage: codefuse [flags] <file.py>... | --manifest groups.yaml"}
		}
		if opts.print && opts.json {
			return usageError{"--print and --json cannot be combined"}
		}
	}
	if opts.write && opts.manifest == "" && opts.out == "" {
		return usageError{"--write requires --out"}
	}
	return nil
}

func buildRequest(opts cliOptions, app *coreapp.App) coreapp.Request {
	req := app.DefaultRequest()
	req.Lint = req.Lint || opts.lint
	req.Typecheck = req.Typecheck || opts.typecheck
	req.Tests = req.Tests || opts.tests
	req.Validate = req.Validate || opts.validate || opts.lint || opts.typecheck || opts.tests
	req.Output = opts.out
	req.Write = opts.write
	return req
}

func loadManifest(opts cliOptions) (*manifest.Manifest, error) {
	m, err := manifest.Load(opts.manifest)
	if err != nil {
		return nil, err
	}
	if opts.group == "" {
		return m, nil
	}
	group, ok := m.Group(opts.group)
	if !ok {
		return nil, fmt.Errorf("group %q not found in %s", opts.group, opts.manifest)
	}
	return &manifest.Manifest{Groups: []manifest.Group{*group}}, nil
}

func resolvedOnly(requests []coreapp.Request, failures []*coreapp.Result) []coreapp.Request {
	out := make([]coreapp.Request, 0, len(requests))
	for i, req := range requests {
		if failures[i] == nil {
			out = append(out, req)
		}
	}
	return out
}

func runHistoryMode(opts cliOptions, cfg *config.Config, stdout io.Writer) int {
	since, err := parseSince(opts.since)
	if err != nil {
		slog.Error("invalid --since", "error", err)
		return exitUsage
	}

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return exitFailure
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return exitFailure
	}
	store, err := history.OpenWithTimeout(paths.HistoryPath, cfg.History.BusyTimeout)
	if err != nil {
		if history.IsCorruptError(err) {
			slog.Error("history database is corrupt; move it aside to start fresh", "path", paths.HistoryPath, "error", err)
		} else {
			slog.Error("history setup failed", "error", err)
		}
		return exitFailure
	}
	defer store.Close()

	runs, err := store.LoadRuns(opts.runs, since)
	if err != nil {
		slog.Error("failed to load runs", "group", opts.runs, "error", err)
		return exitFailure
	}
	if err := newPrinter(stdout, opts.json, false).runs(runs); err != nil {
		slog.Error("failed to print runs", "error", err)
		return exitFailure
	}
	return exitOK
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}

	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("--since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

// configureLogging sends logs to stderr so stdout carries only results.
func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
