package validate

import (
	"os"
	"path/filepath"
	"strings"
)

// DiscoverTests finds test files for each original input by naming
// convention: test_<name>.py and <name>_test.py next to the input, in
// <dir>/tests and in <dir>/../tests. Results keep discovery order and are
// deduplicated.
func DiscoverTests(originals []string) []string {
	seen := make(map[string]bool)
	var found []string
	for _, original := range originals {
		dir := filepath.Dir(original)
		name := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
		if name == "" {
			continue
		}
		for _, candidate := range testCandidates(dir, name) {
			clean := filepath.Clean(candidate)
			if seen[clean] {
				continue
			}
			info, err := os.Stat(clean)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[clean] = true
			found = append(found, clean)
		}
	}
	return found
}

func testCandidates(dir, name string) []string {
	files := []string{"test_" + name + ".py", name + "_test.py"}
	dirs := []string{dir, filepath.Join(dir, "tests"), filepath.Join(dir, "..", "tests")}
	out := make([]string, 0, len(files)*len(dirs))
	for _, d := range dirs {
		for _, f := range files {
			out = append(out, filepath.Join(d, f))
		}
	}
	return out
}
