package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsBadPattern(t *testing.T) {
	if _, err := NewWatcher(time.Millisecond, []string{"[unclosed"}, func([]string) {}); err == nil {
		t.Fatal("expected glob compile error")
	}
}

func waitFor(t *testing.T, ch <-chan []string, want string, within time.Duration) {
	t.Helper()
	timeout := time.After(within)
	for {
		select {
		case paths := <-ch:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for change to %s", want)
		}
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, []string{"exclude_dir", "*_draft.py"}, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "utils.py")
	if err := os.WriteFile(testFile, []byte("def f():\n    return 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, testFile, 2*time.Second)

	excluded := filepath.Join(tmpDir, "utils_draft.py")
	if err := os.WriteFile(excluded, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	notPython := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(notPython, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case paths := <-changedFiles:
		t.Errorf("excluded files triggered event: %v", paths)
	case <-time.After(400 * time.Millisecond):
	}

	subdir := filepath.Join(tmpDir, "newdir")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	subFile := filepath.Join(subdir, "nested.py")
	if err := os.WriteFile(subFile, []byte("y = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, subFile, 2*time.Second)
}

func TestWatcher_IdenticalRewriteIsIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "hash_target.py")
	content := []byte("def main():\n    pass\n")
	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatal(err)
	}

	changedFiles := make(chan []string, 10)
	w, err := NewWatcher(50*time.Millisecond, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(testFile, content, 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case paths := <-changedFiles:
		t.Errorf("received unexpected event for identical content: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(testFile, []byte("def main():\n    print(1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, testFile, time.Second)
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(tmpDir, "old.py")
	newPath := filepath.Join(tmpDir, "new.py")
	if err := os.WriteFile(oldPath, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, newPath, 2*time.Second)
}

func TestWatcher_ExcludeMatching(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, []string{"**/.git/**", "**/__pycache__/**", "conftest.py"}, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if !w.shouldExcludeDir("/repo/.git") {
		t.Fatal("expected .git directory to be excluded")
	}
	if !w.shouldExcludeDir("/repo/pkg/__pycache__") {
		t.Fatal("expected __pycache__ directory to be excluded")
	}
	if w.shouldExcludeDir("/repo/pkg") {
		t.Fatal("expected plain package directory to be watched")
	}
	if !w.shouldExcludeFile("/repo/tests/conftest.py") {
		t.Fatal("expected conftest.py to be excluded by base name")
	}
	if !w.shouldExcludeFile("/repo/README.md") {
		t.Fatal("expected non-Python files to be excluded")
	}
	if w.shouldExcludeFile("/repo/pkg/Utils.PY") {
		t.Fatal("expected extension match to ignore case")
	}
}
