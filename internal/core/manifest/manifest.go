// Package manifest reads group manifests: YAML files naming, per group,
// the files that are versions of one logical source file.
package manifest

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codefuse/internal/core/errors"
	"codefuse/internal/shared/util"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Groups []Group `yaml:"groups"`
}

// Group is one version set. Explicit Members come first, in the order
// given; files under Root matching Include and not Exclude follow, sorted.
// Relative paths are anchored at the manifest's directory.
type Group struct {
	Name     string   `yaml:"name"`
	Output   string   `yaml:"output,omitempty"`
	Strategy string   `yaml:"strategy,omitempty"`
	Members  []string `yaml:"members,omitempty"`
	Root     string   `yaml:"root,omitempty"`
	Include  []string `yaml:"include,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty"`

	BaseDir string `yaml:"-"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "read manifest"), errors.CtxPath, path)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return m, nil
}

// Parse decodes a manifest; baseDir anchors relative paths.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "decode manifest")
	}
	for i := range m.Groups {
		g := &m.Groups[i]
		g.Name = strings.TrimSpace(g.Name)
		g.BaseDir = baseDir
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Groups) == 0 {
		return errors.New(errors.CodeValidationError, "manifest declares no groups")
	}
	seen := make(map[string]bool, len(m.Groups))
	for i, g := range m.Groups {
		if g.Name == "" {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("groups[%d].name is required", i))
		}
		if seen[g.Name] {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("group %q declared twice", g.Name))
		}
		seen[g.Name] = true
		if len(g.Members) == 0 && len(g.Include) == 0 {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("group %q needs members or include patterns", g.Name))
		}
		for _, pattern := range append(append([]string{}, g.Include...), g.Exclude...) {
			if _, err := glob.Compile(pattern, '/'); err != nil {
				return errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("group %q: bad pattern %q", g.Name, pattern))
			}
		}
	}
	return nil
}

// Group returns the named group.
func (m *Manifest) Group(name string) (*Group, bool) {
	for i := range m.Groups {
		if m.Groups[i].Name == name {
			return &m.Groups[i], true
		}
	}
	return nil, false
}

// OutputPath is the anchored output path, or "" when the group has none.
func (g *Group) OutputPath() string {
	if strings.TrimSpace(g.Output) == "" {
		return ""
	}
	return g.anchor(g.Output)
}

func (g *Group) anchor(p string) string {
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) || g.BaseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(g.BaseDir, p)
}

// Resolve expands the group into an ordered, duplicate-free file list.
func (g *Group) Resolve() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, member := range g.Members {
		if strings.TrimSpace(member) == "" {
			continue
		}
		add(g.anchor(member))
	}

	if len(g.Include) == 0 {
		return out, nil
	}

	include, err := compileAll(g.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(g.Exclude)
	if err != nil {
		return nil, err
	}

	root := g.anchor(g.Root)
	var matched []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = util.NormalizePatternPath(filepath.ToSlash(rel))
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			if matchAny(exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchAny(include, rel) && !matchAny(exclude, rel) {
			matched = append(matched, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "walk group root"), errors.CtxPath, root)
	}

	sort.Strings(matched)
	for _, p := range matched {
		add(p)
	}
	return out, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("bad pattern %q", p))
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, value string) bool {
	for _, g := range globs {
		if g.Match(value) {
			return true
		}
	}
	return false
}
