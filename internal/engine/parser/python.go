package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type pythonExtractor struct {
	engine *ExtractorEngine
}

func newPythonExtractor() *pythonExtractor {
	e := &pythonExtractor{}
	e.engine = NewExtractorEngine(map[string]NodeHandler{
		"module":                  e.extractModule,
		"import_statement":        e.extractImport,
		"import_from_statement":   e.extractFromImport,
		"future_import_statement": e.extractFromImport,
		"function_definition":     e.extractFunction,
		"class_definition":        e.extractClass,
	})
	return e
}

func (e *pythonExtractor) extract(root *sitter.Node, source []byte, unit *ProgramUnit) {
	ctx := &ExtractionContext{Source: source, Unit: unit}
	e.engine.Walk(ctx, root)
}

func (e *pythonExtractor) extractModule(ctx *ExtractionContext, node *sitter.Node) bool {
	stmts := namedChildren(node)
	if len(stmts) == 0 {
		return true
	}
	if value, ok := e.docstring(ctx, stmts[0]); ok {
		ctx.Unit.Docstring = value
		ctx.Unit.DocstringSource = ctx.Text(stmts[0])
	}
	return false
}

func (e *pythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	guard, ok := importGuard(ctx, node)
	if !ok {
		return true
	}

	var names []string
	for _, child := range namedChildren(node) {
		switch child.Kind() {
		case "dotted_name", "aliased_import":
			names = append(names, strings.Join(strings.Fields(ctx.Text(child)), " "))
		}
	}
	ctx.Unit.Imports = append(ctx.Unit.Imports, ImportDirective{
		Names: names,
		Raw:   ctx.Text(node),
		Line:  ctx.Line(node),
		Guard: guard,
	})
	return true
}

func (e *pythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	guard, ok := importGuard(ctx, node)
	if !ok {
		return true
	}

	module := normalizeWhitespace(ctx.FieldText(node, "module_name"))
	if node.Kind() == "future_import_statement" {
		module = "__future__"
	}

	var names []string
	foundImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "import" {
			foundImport = true
			continue
		}
		if !foundImport {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier", "aliased_import":
			names = append(names, strings.Join(strings.Fields(ctx.Text(child)), " "))
		case "wildcard_import":
			names = append(names, "*")
		}
	}

	ctx.Unit.Imports = append(ctx.Unit.Imports, ImportDirective{
		Module: module,
		Names:  names,
		Raw:    ctx.Text(node),
		Line:   ctx.Line(node),
		Guard:  guard,
	})
	return true
}

// importGuard decides whether an import belongs to the module namespace.
// Imports inside functions, classes or lambdas are local and skipped. An
// import nested in module-level compound statements (try/except fallbacks,
// `if TYPE_CHECKING:`, version checks) returns the outermost such statement.
func importGuard(ctx *ExtractionContext, node *sitter.Node) (string, bool) {
	top := node
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Kind() {
		case "module":
			if top == node {
				return "", true
			}
			if isMainGuard(ctx, top) {
				return "", false
			}
			return strings.TrimRight(ctx.Text(top), " \t\r\n"), true
		case "function_definition", "class_definition", "lambda":
			return "", false
		}
		top = parent
	}
	return "", false
}

// isMainGuard matches `if __name__ == "__main__":` script entry blocks.
func isMainGuard(ctx *ExtractionContext, stmt *sitter.Node) bool {
	if stmt.Kind() != "if_statement" {
		return false
	}
	return strings.Contains(ctx.FieldText(stmt, "condition"), "__name__")
}

func (e *pythonExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	if !isTopLevel(node) {
		// Nested functions and definitions under module-level blocks are not tracked.
		return true
	}
	if fn := e.buildFunction(ctx, node); fn != nil {
		ctx.Unit.Functions.Put(fn.Name, fn)
	}
	return true
}

func (e *pythonExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	if !isTopLevel(node) {
		return true
	}
	if cls := e.buildClass(ctx, node); cls != nil {
		ctx.Unit.Classes.Put(cls.Name, cls)
	}
	return true
}

func (e *pythonExtractor) buildFunction(ctx *ExtractionContext, node *sitter.Node) *Function {
	name := ctx.FieldText(node, "name")
	if name == "" {
		return nil
	}

	base := e.declBase(ctx, node, name)
	base.Docstring = e.blockDocstring(ctx, node.ChildByFieldName("body"))
	return &Function{
		DeclBase:   base,
		Params:     e.parameters(ctx, node.ChildByFieldName("parameters")),
		Async:      isAsyncDefinition(node),
		Complexity: Complexity(node),
	}
}

func (e *pythonExtractor) buildClass(ctx *ExtractionContext, node *sitter.Node) *Class {
	name := ctx.FieldText(node, "name")
	if name == "" {
		return nil
	}

	cls := &Class{DeclBase: e.declBase(ctx, node, name)}
	for _, arg := range namedChildren(node.ChildByFieldName("superclasses")) {
		if arg.Kind() == "keyword_argument" {
			continue
		}
		cls.Bases = append(cls.Bases, normalizeWhitespace(ctx.Text(arg)))
	}

	body := node.ChildByFieldName("body")
	cls.Docstring = e.blockDocstring(ctx, body)
	for _, stmt := range namedChildren(body) {
		switch stmt.Kind() {
		case "function_definition":
			if method := e.buildFunction(ctx, stmt); method != nil {
				cls.Methods = append(cls.Methods, method)
			}
		case "decorated_definition":
			def := stmt.ChildByFieldName("definition")
			if def != nil && def.Kind() == "function_definition" {
				if method := e.buildFunction(ctx, def); method != nil {
					cls.Methods = append(cls.Methods, method)
				}
			}
		case "expression_statement":
			for _, expr := range namedChildren(stmt) {
				if expr.Kind() != "assignment" {
					continue
				}
				left := expr.ChildByFieldName("left")
				if left != nil && left.Kind() == "identifier" {
					cls.ClassVars = append(cls.ClassVars, ctx.Text(left))
				}
			}
		}
	}
	return cls
}

// declBase fills the shared fields. The span starts at the decorators when
// the definition is decorated.
func (e *pythonExtractor) declBase(ctx *ExtractionContext, node *sitter.Node, name string) DeclBase {
	outer := node
	if parent := node.Parent(); parent != nil && parent.Kind() == "decorated_definition" {
		outer = parent
	}
	source := strings.TrimRight(ctx.Text(outer), " \t\r\n")
	return DeclBase{
		Name:        name,
		StartLine:   ctx.Line(outer),
		EndLine:     ctx.EndLine(outer),
		Decorators:  e.decorators(ctx, outer),
		Source:      source,
		ContentHash: ContentHash([]byte(source)),
		UnitID:      ctx.Unit.ID,
	}
}

func (e *pythonExtractor) decorators(ctx *ExtractionContext, outer *sitter.Node) []string {
	if outer.Kind() != "decorated_definition" {
		return nil
	}
	var out []string
	for _, child := range namedChildren(outer) {
		if child.Kind() != "decorator" {
			continue
		}
		exprs := namedChildren(child)
		if len(exprs) == 0 {
			continue
		}
		if name := decoratorName(ctx, exprs[0]); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// decoratorName reduces a decorator expression to its trailing identifier:
// @cache -> cache, @functools.wraps(f) -> wraps, @app.route("/") -> route.
func decoratorName(ctx *ExtractionContext, expr *sitter.Node) string {
	if expr == nil {
		return ""
	}
	switch expr.Kind() {
	case "identifier":
		return ctx.Text(expr)
	case "attribute":
		return ctx.FieldText(expr, "attribute")
	case "call":
		return decoratorName(ctx, expr.ChildByFieldName("function"))
	case "subscript":
		return decoratorName(ctx, expr.ChildByFieldName("value"))
	}
	return normalizeWhitespace(ctx.Text(expr))
}

func (e *pythonExtractor) parameters(ctx *ExtractionContext, params *sitter.Node) []string {
	var out []string
	for _, param := range namedChildren(params) {
		if name := parameterName(ctx, param); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func parameterName(ctx *ExtractionContext, param *sitter.Node) string {
	switch param.Kind() {
	case "identifier":
		return ctx.Text(param)
	case "list_splat_pattern", "dictionary_splat_pattern":
		return normalizeWhitespace(ctx.Text(param))
	case "default_parameter", "typed_default_parameter":
		return parameterName(ctx, param.ChildByFieldName("name"))
	case "typed_parameter":
		inner := namedChildren(param)
		if len(inner) == 0 {
			return ""
		}
		return parameterName(ctx, inner[0])
	}
	// keyword_separator and positional_separator carry no name.
	return ""
}

func isAsyncDefinition(node *sitter.Node) bool {
	if node.ChildCount() == 0 {
		return false
	}
	first := node.Child(0)
	return first != nil && first.Kind() == "async"
}

func (e *pythonExtractor) blockDocstring(ctx *ExtractionContext, block *sitter.Node) string {
	stmts := namedChildren(block)
	if len(stmts) == 0 {
		return ""
	}
	value, _ := e.docstring(ctx, stmts[0])
	return value
}

func (e *pythonExtractor) docstring(ctx *ExtractionContext, stmt *sitter.Node) (string, bool) {
	if stmt.Kind() != "expression_statement" {
		return "", false
	}
	exprs := namedChildren(stmt)
	if len(exprs) != 1 || exprs[0].Kind() != "string" {
		return "", false
	}
	return stringValue(ctx, exprs[0]), true
}

// stringValue returns the literal content of a string node without its
// prefix and quotes.
func stringValue(ctx *ExtractionContext, node *sitter.Node) string {
	var b strings.Builder
	found := false
	for _, child := range namedChildren(node) {
		if child.Kind() == "string_content" {
			b.WriteString(ctx.Text(child))
			found = true
		}
	}
	if found {
		return b.String()
	}

	raw := strings.TrimLeft(ctx.Text(node), "rRbBuUfF")
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if len(raw) >= 2*len(quote) && strings.HasPrefix(raw, quote) && strings.HasSuffix(raw, quote) {
			return raw[len(quote) : len(raw)-len(quote)]
		}
	}
	return raw
}
