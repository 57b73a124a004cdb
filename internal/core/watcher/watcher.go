package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codefuse/internal/engine/parser"
	"codefuse/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Watcher reports batches of changed Python sources after a quiet period.
// Rewrites that leave a file's content unchanged are not reported.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	debounce   time.Duration
	excludes   []glob.Glob
	extFilters map[string]bool
	onChange   func([]string)
	callbackMu sync.Mutex

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer

	hashes   map[string]string
	hashesMu sync.Mutex
}

// NewWatcher compiles exclude patterns with '/' as the separator. A pattern
// is tested against the slash-form path and against the base name.
func NewWatcher(debounce time.Duration, excludes []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiled := make([]glob.Glob, 0, len(excludes))
	for _, pattern := range excludes {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:  fsw,
		debounce:   debounce,
		excludes:   compiled,
		extFilters: map[string]bool{".py": true},
		onChange:   onChange,
		pending:    make(map[string]time.Time),
		hashes:     make(map[string]string),
	}, nil
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

// Watch registers every directory under paths and starts the event loop.
// Existing files are hashed so the first identical rewrite is ignored.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if err := w.watchRecursive(path); err != nil {
			return err
		}
		w.primeHashes(path)
	}

	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}

		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.flushChanges()
	})
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	candidates := make([]string, 0, len(w.pending))
	for path := range w.pending {
		candidates = append(candidates, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if w.contentChanged(path) {
			paths = append(paths, path)
		}
	}

	if len(paths) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

// contentChanged updates the remembered hash of path. A file that vanished
// counts as changed once.
func (w *Watcher) contentChanged(path string) bool {
	data, err := os.ReadFile(path)

	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()

	previous, known := w.hashes[path]
	if err != nil {
		delete(w.hashes, path)
		return known
	}
	current := parser.ContentHash(data)
	w.hashes[path] = current
	return !known || previous != current
}

func (w *Watcher) primeHashes(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		if data, err := os.ReadFile(path); err == nil {
			w.hashesMu.Lock()
			w.hashes[path] = parser.ContentHash(data)
			w.hashesMu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	slashed := filepath.ToSlash(path)
	return w.matchesExclude(slashed+"/", filepath.Base(path))
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	base := filepath.Base(path)
	if !w.extFilters[strings.ToLower(filepath.Ext(base))] {
		return true
	}
	return w.matchesExclude(filepath.ToSlash(path), base)
}

func (w *Watcher) matchesExclude(path, base string) bool {
	for _, g := range w.excludes {
		if g.Match(path) || g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}
