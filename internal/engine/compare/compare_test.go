package compare

import (
	"testing"

	"codefuse/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, id, src string) *parser.ProgramUnit {
	t.Helper()
	unit, err := parser.NewExtractor().Extract([]byte(src), id)
	require.NoError(t, err)
	return unit
}

func names(occ []Occurrence) []string {
	out := make([]string, 0, len(occ))
	for _, o := range occ {
		out = append(out, o.Name)
	}
	return out
}

func TestCompare_Classification(t *testing.T) {
	a := extract(t, "a/utils.py", `
def shared():
    return 1

def only_a():
    return "a"

class Model:
    pass
`)
	b := extract(t, "b/utils.py", `
def shared():
    return 1

def only_b(x):
    return x

class Model:
    pass
`)
	c := extract(t, "c/utils.py", `
def shared():
    return 1

def only_b(x):
    return x
`)

	res := Compare([]*parser.ProgramUnit{a, b, c})

	assert.Equal(t, []string{"only_a"}, names(res.UniqueFunctions))
	assert.Equal(t, []string{"a/utils.py"}, res.UniqueFunctions[0].UnitIDs)
	assert.Equal(t, []string{"shared"}, names(res.CommonFunctions))
	assert.Equal(t, []string{"a/utils.py", "b/utils.py", "c/utils.py"}, res.CommonFunctions[0].UnitIDs)
	assert.Empty(t, res.UniqueClasses)
	assert.Empty(t, res.CommonClasses, "Model is missing from c")
	assert.Empty(t, res.Conflicts)
}

func TestCompare_ConflictCorrectness(t *testing.T) {
	a := extract(t, "a.py", `
def parse(data):
    return data

class Loader:
    def load(self):
        pass
`)
	b := extract(t, "b.py", `
def parse(data, strict=False):
    if strict:
        return None
    return data

class Loader:
    def load(self):
        pass
`)
	c := extract(t, "c.py", `
def parse(data):
    return data
`)

	res := Compare([]*parser.ProgramUnit{a, b, c})
	require.Len(t, res.Conflicts, 1)

	rec := res.Conflicts[0]
	assert.Equal(t, parser.KindFunction, rec.Kind)
	assert.Equal(t, "parse", rec.Name)
	assert.True(t, rec.HasConflict())
	assert.Equal(t, 2, rec.DistinctHashes())
	assert.False(t, rec.ParamsEqual)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, rec.UnitIDs())

	require.Len(t, rec.Summaries, 3)
	assert.Equal(t, 2, rec.Summaries[0].Lines)
	assert.Equal(t, 1, rec.Summaries[0].Measure)
	assert.Equal(t, 4, rec.Summaries[1].Lines)
	assert.Equal(t, 2, rec.Summaries[1].Measure)
	assert.Equal(t, rec.Summaries[0].ContentHash, rec.Summaries[2].ContentHash)

	_, ok := res.Conflict(parser.KindClass, "Loader")
	assert.False(t, ok, "identical classes are not conflicts")

	desc := rec.Describe()
	assert.Contains(t, desc, "function parse has 2 implementations")
	assert.Contains(t, desc, "b.py (4 lines, complexity 2)")
	assert.Contains(t, desc, "parameters differ")
}

func TestCompare_ClassConflictUsesMethodCount(t *testing.T) {
	a := extract(t, "a.py", "class Repo:\n    def get(self):\n        pass\n")
	b := extract(t, "b.py", "class Repo:\n    def get(self):\n        pass\n\n    def put(self):\n        pass\n")

	res := Compare([]*parser.ProgramUnit{a, b})
	rec, ok := res.Conflict(parser.KindClass, "Repo")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Summaries[0].Measure)
	assert.Equal(t, 2, rec.Summaries[1].Measure)
	assert.Contains(t, rec.Describe(), "methods 2")
	assert.NotContains(t, rec.Describe(), "parameters")
}

func TestCompare_SameParamsDifferentBody(t *testing.T) {
	a := extract(t, "a.py", "def f(x, *args):\n    return x\n")
	b := extract(t, "b.py", "def f(x, *args):\n    return args\n")

	rec, ok := Compare([]*parser.ProgramUnit{a, b}).Conflict(parser.KindFunction, "f")
	require.True(t, ok)
	assert.True(t, rec.ParamsEqual)
	assert.Contains(t, rec.Describe(), "parameters identical")
}

func TestCompare_NoConflictForIdenticalCopies(t *testing.T) {
	src := "def foo():\n    return 42\n"
	units := []*parser.ProgramUnit{
		extract(t, "a.py", src),
		extract(t, "b.py", src),
		extract(t, "c.py", src),
	}
	res := Compare(units)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, []string{"foo"}, names(res.CommonFunctions))
	assert.Empty(t, res.UniqueFunctions)
}

func TestCompare_SingleUnitIsUniqueAndCommon(t *testing.T) {
	unit := extract(t, "only.py", "def a():\n    pass\n\nclass B:\n    pass\n")
	res := Compare([]*parser.ProgramUnit{unit})
	assert.Equal(t, []string{"a"}, names(res.UniqueFunctions))
	assert.Equal(t, []string{"a"}, names(res.CommonFunctions))
	assert.Equal(t, []string{"B"}, names(res.UniqueClasses))
	assert.Empty(t, res.Conflicts)
}

func TestCompare_EmptyAndPure(t *testing.T) {
	assert.Equal(t, Result{}, Compare(nil))

	a := extract(t, "a.py", "def f():\n    return 1\n")
	b := extract(t, "b.py", "def f():\n    return 2\n")
	set := []*parser.ProgramUnit{a, b}
	first := Compare(set)
	second := Compare(set)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"f"}, a.Functions.Names())
}
