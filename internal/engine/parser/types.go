package parser

import (
	"time"
)

// ProgramUnit is one parsed version of a logical source file. Units are
// built once by the Extractor and never mutated afterwards.
type ProgramUnit struct {
	ID              string // path-like identifier, unique within a version set
	Source          string
	ContentHash     string
	LineCount       int
	Docstring       string // module docstring value, quotes stripped
	DocstringSource string // module docstring statement exactly as written
	Imports         []ImportDirective
	Functions       Index[*Function]
	Classes         Index[*Class]
	ModTime         time.Time // zero unless the unit was read from disk
}

// ImportDirective is one import statement. Module is empty for the
// `import X` form; for `from M import ...` it carries M including any
// leading relative dots. Guard is set for imports nested in a module-level
// try/if/with statement and holds that whole statement as written.
type ImportDirective struct {
	Module string
	Names  []string // imported names, aliases kept ("sys as system")
	Raw    string
	Line   int
	Guard  string
}

// Guarded reports whether the import only runs inside a module-level
// compound statement.
func (d ImportDirective) Guarded() bool {
	return d.Guard != ""
}

// IsFrom reports whether the directive is a `from M import ...` statement.
func (d ImportDirective) IsFrom() bool {
	return d.Module != ""
}

// References returns one normalized reference per imported name. Two
// directives importing the same thing produce equal references.
func (d ImportDirective) References() []string {
	refs := make([]string, 0, len(d.Names))
	for _, name := range d.Names {
		if d.Module == "" {
			refs = append(refs, name)
			continue
		}
		refs = append(refs, d.Module+":"+name)
	}
	return refs
}

type DeclKind int

const (
	KindFunction DeclKind = iota
	KindClass
)

func (k DeclKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	}
	return "unknown"
}

func (k DeclKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Declaration is a closed sum over *Function and *Class. Callers switch on
// the concrete type; the unexported method keeps other packages from adding
// variants.
type Declaration interface {
	Base() *DeclBase
	Kind() DeclKind
	declaration()
}

// DeclBase holds the fields shared by every declaration.
type DeclBase struct {
	Name        string
	StartLine   int
	EndLine     int
	Decorators  []string
	Docstring   string
	Source      string // raw text, decorators included
	ContentHash string
	UnitID      string // owning unit, non-owning back-reference
}

// Lines is the inclusive line span of the declaration.
func (b *DeclBase) Lines() int {
	if b.EndLine < b.StartLine {
		return 0
	}
	return b.EndLine - b.StartLine + 1
}

type Function struct {
	DeclBase
	Params     []string
	Async      bool
	Complexity int
}

type Class struct {
	DeclBase
	Bases     []string
	ClassVars []string
	Methods   []*Function
}

func (f *Function) Base() *DeclBase { return &f.DeclBase }
func (f *Function) Kind() DeclKind  { return KindFunction }
func (f *Function) declaration()    {}

func (c *Class) Base() *DeclBase { return &c.DeclBase }
func (c *Class) Kind() DeclKind  { return KindClass }
func (c *Class) declaration()    {}

// Index is a name-keyed map that remembers first-insertion order.
// Re-inserting a name replaces the value but keeps its position.
type Index[T Declaration] struct {
	names []string
	items map[string]T
}

func (ix *Index[T]) Put(name string, decl T) {
	if ix.items == nil {
		ix.items = make(map[string]T)
	}
	if _, ok := ix.items[name]; !ok {
		ix.names = append(ix.names, name)
	}
	ix.items[name] = decl
}

func (ix *Index[T]) Get(name string) (T, bool) {
	decl, ok := ix.items[name]
	return decl, ok
}

func (ix *Index[T]) Has(name string) bool {
	_, ok := ix.items[name]
	return ok
}

func (ix *Index[T]) Len() int {
	return len(ix.names)
}

// Names returns the declared names in first-seen order.
func (ix *Index[T]) Names() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}

// All returns the stored declarations in first-seen order.
func (ix *Index[T]) All() []T {
	out := make([]T, 0, len(ix.names))
	for _, name := range ix.names {
		out = append(out, ix.items[name])
	}
	return out
}

// Declarations returns the unit's functions followed by its classes.
func (u *ProgramUnit) Declarations() []Declaration {
	out := make([]Declaration, 0, u.Functions.Len()+u.Classes.Len())
	for _, fn := range u.Functions.All() {
		out = append(out, fn)
	}
	for _, cls := range u.Classes.All() {
		out = append(out, cls)
	}
	return out
}

// Lookup finds a top-level declaration of the given kind.
func (u *ProgramUnit) Lookup(kind DeclKind, name string) (Declaration, bool) {
	switch kind {
	case KindFunction:
		if fn, ok := u.Functions.Get(name); ok {
			return fn, true
		}
	case KindClass:
		if cls, ok := u.Classes.Get(name); ok {
			return cls, true
		}
	}
	return nil, false
}

// TotalComplexity sums the complexity of every top-level function.
func (u *ProgramUnit) TotalComplexity() int {
	total := 0
	for _, fn := range u.Functions.All() {
		total += fn.Complexity
	}
	return total
}
