// Package app wires extraction, fusion, validation and run history into the
// operations the CLI exposes.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"codefuse/internal/core/config"
	"codefuse/internal/data/history"
	"codefuse/internal/engine/fusion"
	"codefuse/internal/engine/parser"
	"codefuse/internal/engine/validate"
	"codefuse/internal/shared/util"
)

// RunRecorder persists one row per fusion run.
type RunRecorder interface {
	SaveRun(run history.Run) (string, error)
	LoadRuns(group string, since time.Time) ([]history.Run, error)
	Close() error
}

type App struct {
	Extractor *parser.Extractor
	History   RunRecorder

	mu      sync.RWMutex
	cfg     *config.Config
	runner  validate.ToolRunner
	harness *validate.Harness
	quality fusion.QualityScorer

	customRunner bool
}

type Option func(*App)

// WithRunner replaces the exec-backed tool runner.
func WithRunner(runner validate.ToolRunner) Option {
	return func(a *App) {
		a.runner = runner
		a.customRunner = runner != nil
	}
}

// WithHistory records runs in recorder instead of the configured store.
func WithHistory(recorder RunRecorder) Option {
	return func(a *App) { a.History = recorder }
}

// WithQuality adds an external quality signal to base selection.
func WithQuality(scorer fusion.QualityScorer) Option {
	return func(a *App) { a.quality = scorer }
}

// New builds an App from cfg. When history is enabled in cfg and no
// recorder was injected, the sqlite store under the resolved state dir is
// opened.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	a := &App{Extractor: parser.NewExtractor(), cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = newExecRunner(cfg)
	}
	a.harness = validate.NewHarness(a.Extractor, a.runner, harnessConfig(cfg))

	if a.History == nil && cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		a.History = store
	}
	return a, nil
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve history path: %w", err)
	}
	store, err := history.OpenWithTimeout(paths.HistoryPath, cfg.History.BusyTimeout)
	if err != nil {
		return nil, err
	}
	slog.Debug("history store opened", "path", store.Path())
	return store, nil
}

func newExecRunner(cfg *config.Config) *validate.ExecRunner {
	specs := map[validate.Tool]validate.ToolSpec{
		validate.ToolLint:      {Command: cfg.Tools.Lint.Command, Args: cfg.Tools.Lint.Args},
		validate.ToolTypecheck: {Command: cfg.Tools.Typecheck.Command, Args: cfg.Tools.Typecheck.Args},
		validate.ToolTests:     {Command: cfg.Tools.Tests.Command, Args: cfg.Tools.Tests.Args},
	}
	limiter := util.NewLimiter(cfg.Validation.ToolStartsPerSecond, cfg.Validation.ToolStartBurst)
	return validate.NewExecRunner(specs, limiter)
}

func harnessConfig(cfg *config.Config) validate.Config {
	return validate.Config{
		TestTimeout:        cfg.Validation.TestTimeout,
		ToolTimeout:        cfg.Validation.ToolTimeout,
		LintIssueThreshold: cfg.Validation.LintIssueThreshold,
	}
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Runner returns the active tool runner.
func (a *App) Runner() validate.ToolRunner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner
}

func (a *App) Harness() *validate.Harness {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.harness
}

// ApplyConfig swaps in a reloaded configuration. Tool commands, limits and
// timeouts take effect for the next run; the history store is kept.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	if !a.customRunner {
		a.runner = newExecRunner(cfg)
	}
	a.harness = validate.NewHarness(a.Extractor, a.runner, harnessConfig(cfg))
	slog.Info("configuration reloaded", "strategy", cfg.Fusion.Strategy, "workers", cfg.Fusion.Workers)
}

func (a *App) Close() error {
	if a == nil || a.History == nil {
		return nil
	}
	return a.History.Close()
}
