package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"codefuse/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
groups:
  - name: utils
    output: merged/utils.py
    strategy: keep_newest
    members: [a/utils.py, b/utils.py]
  - name: helpers
    root: legacy
    include: ["**/helpers.py"]
    exclude: ["**/vendor/**"]
`), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Groups, 2)

	utils, ok := m.Group("utils")
	require.True(t, ok)
	assert.Equal(t, "keep_newest", utils.Strategy)
	assert.Equal(t, filepath.Join(dir, "merged", "utils.py"), utils.OutputPath())

	members, err := utils.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a", "utils.py"), filepath.Join(dir, "b", "utils.py")}, members)

	helpers, ok := m.Group("helpers")
	require.True(t, ok)
	assert.Empty(t, helpers.OutputPath())

	_, ok = m.Group("missing")
	assert.False(t, ok)
}

func TestResolve_GlobsAfterMembers(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "legacy", "z", "helpers.py"))
	touch(t, filepath.Join(dir, "legacy", "a", "helpers.py"))
	touch(t, filepath.Join(dir, "legacy", "a", "vendor", "helpers.py"))
	touch(t, filepath.Join(dir, "legacy", "a", "other.py"))
	touch(t, filepath.Join(dir, "main", "helpers.py"))

	g := Group{
		Name:    "helpers",
		Members: []string{"main/helpers.py", "legacy/z/helpers.py"},
		Root:    "legacy",
		Include: []string{"**/helpers.py"},
		Exclude: []string{"**/vendor/**"},
		BaseDir: dir,
	}

	got, err := g.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "main", "helpers.py"),
		filepath.Join(dir, "legacy", "z", "helpers.py"),
		filepath.Join(dir, "legacy", "a", "helpers.py"),
	}, got)
}

func TestResolve_MissingRoot(t *testing.T) {
	g := Group{Name: "x", Root: "nowhere", Include: []string{"*.py"}, BaseDir: t.TempDir()}
	_, err := g.Resolve()
	assert.True(t, errors.IsCode(err, errors.CodeIO))
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":          "groups: []\n",
		"unnamed":        "groups:\n  - members: [a.py]\n",
		"duplicate":      "groups:\n  - name: a\n    members: [a.py]\n  - name: a\n    members: [b.py]\n",
		"no sources":     "groups:\n  - name: a\n",
		"unknown field":  "groups:\n  - name: a\n    members: [a.py]\n    colour: blue\n",
		"bad pattern":    "groups:\n  - name: a\n    include: [\"[oops\"]\n",
		"not a manifest": "- just\n- a list\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content), ".")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidationError), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.True(t, errors.IsCode(err, errors.CodeIO))
}
