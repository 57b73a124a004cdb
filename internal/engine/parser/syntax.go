package parser

import (
	"fmt"
	"strings"

	"codefuse/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParseError describes the first syntax error found in a unit's source.
type ParseError struct {
	Unit    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Unit, e.Line, e.Column, e.Message)
}

// legacyStatements are Python 2 statements the grammar still accepts but
// Python 3 rejects.
var legacyStatements = map[string]string{
	"print_statement": "print",
	"exec_statement":  "exec",
}

// syntaxError returns nil when the tree is clean, otherwise the first
// ERROR or MISSING node in document order, or failing that the first
// Python 2 only statement.
func syntaxError(root *sitter.Node, source []byte, unitID string) *ParseError {
	if root == nil {
		return nil
	}
	if !root.HasError() {
		return legacyStatementError(root, unitID)
	}
	bad := firstErrorNode(root)
	if bad == nil {
		return &ParseError{Unit: unitID, Line: 1, Column: 1, Message: "invalid syntax"}
	}

	pos := bad.StartPosition()
	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Kind())
	} else if snippet := errorSnippet(source, bad); snippet != "" {
		msg = fmt.Sprintf("invalid syntax near %q", snippet)
	}
	return &ParseError{
		Unit:    unitID,
		Line:    int(pos.Row) + 1,
		Column:  int(pos.Column) + 1,
		Message: msg,
	}
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func legacyStatementError(root *sitter.Node, unitID string) *ParseError {
	node := firstLegacyStatement(root)
	if node == nil {
		return nil
	}
	pos := node.StartPosition()
	return &ParseError{
		Unit:    unitID,
		Line:    int(pos.Row) + 1,
		Column:  int(pos.Column) + 1,
		Message: fmt.Sprintf("Python 2 %s statement is not valid Python 3", legacyStatements[node.Kind()]),
	}
}

func firstLegacyStatement(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if _, ok := legacyStatements[node.Kind()]; ok {
		return node
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if found := firstLegacyStatement(node.NamedChild(i)); found != nil {
			return found
		}
	}
	return nil
}

func errorSnippet(source []byte, node *sitter.Node) string {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(source) {
		return ""
	}
	text := string(source[start:end])
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 40 {
		text = text[:40]
	}
	return text
}

// wrapParseError lifts a ParseError into the domain taxonomy.
func wrapParseError(pe *ParseError) error {
	err := errors.Wrap(pe, errors.CodeParse, "parse failed")
	if pe.Unit == "" {
		return err
	}
	return errors.AddContext(err, errors.CtxUnit, pe.Unit)
}
