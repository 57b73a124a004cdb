package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for a language-specific extractor.
// Returns true if the handler has processed children and the walker should stop.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries shared state/helpers used by all handlers.
type ExtractionContext struct {
	Source []byte
	Unit   *ProgramUnit
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	stop := false
	if handler, ok := e.handlers[node.Kind()]; ok {
		stop = handler(ctx, node)
	}

	if !stop {
		for i := uint(0); i < node.ChildCount(); i++ {
			e.Walk(ctx, node.Child(i))
		}
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

// Line is the 1-based start line of node.
func (c *ExtractionContext) Line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// EndLine is the 1-based line holding the last byte of node.
func (c *ExtractionContext) EndLine(node *sitter.Node) int {
	end := node.EndPosition()
	// A node ending at column 0 closed on the previous line's newline.
	if end.Column == 0 && end.Row > node.StartPosition().Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

func (c *ExtractionContext) FieldText(node *sitter.Node, field string) string {
	if node == nil {
		return ""
	}
	return c.Text(node.ChildByFieldName(field))
}

// namedChildren returns node's named children, comments excluded.
func namedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func isTopLevel(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Kind() == "decorated_definition" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Kind() == "module"
}

func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), "")
}
