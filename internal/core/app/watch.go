package app

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"codefuse/internal/core/watcher"
	"codefuse/internal/data/queue"
	"codefuse/internal/shared/util"
)

const (
	watchQueueCapacity = 256
	watchBatchSize     = 64
	watchPollInterval  = 250 * time.Millisecond
)

// Watch re-runs every request whose member files change until ctx is done.
// The initial fusion is the caller's job; Watch only reacts to changes.
// Output paths are never treated as members, so writing a result does not
// trigger another run.
func (a *App) Watch(ctx context.Context, requests []Request, onResult func(Result)) error {
	members := make(map[string][]int)
	outputs := make(map[string]bool)
	dirs := make(map[string]bool)
	for i, req := range requests {
		if req.Output != "" {
			outputs[absPath(req.Output)] = true
		}
		for _, p := range req.Paths {
			abs := absPath(p)
			members[abs] = append(members[abs], i)
			dirs[filepath.Dir(abs)] = true
		}
	}

	changes := queue.NewMemoryQueue[string](watchQueueCapacity)
	defer changes.Close()

	cfg := a.Config()
	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Watch.Exclude, func(paths []string) {
		for _, p := range paths {
			if changes.Enqueue(p) == queue.EnqueueDropped {
				slog.Warn("change dropped, queue full", "path", p)
			}
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	roots := util.SortedStringKeys(dirs)
	if err := w.Watch(roots); err != nil {
		return err
	}
	slog.Info("watching for changes", "groups", len(requests), "dirs", len(roots))

	for {
		batch, err := changes.DequeueBatch(ctx, watchBatchSize, watchPollInterval)
		if err != nil {
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		for _, i := range affected(batch, members, outputs) {
			req := requests[i]
			slog.Info("re-fusing after change", "group", req.groupName())
			res := a.FuseGroup(ctx, req)
			if onResult != nil {
				onResult(res)
			}
		}
	}
}

// affected maps changed paths to request indices in ascending order.
func affected(paths []string, members map[string][]int, outputs map[string]bool) []int {
	seen := make(map[int]bool)
	var out []int
	for _, p := range paths {
		abs := absPath(p)
		if outputs[abs] {
			continue
		}
		for _, i := range members[abs] {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
