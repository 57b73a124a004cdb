package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// branchKinds each add one decision point.
var branchKinds = map[string]bool{
	"if_statement":        true,
	"elif_clause":         true,
	"for_statement":       true,
	"while_statement":     true,
	"except_clause":       true,
	"except_group_clause": true,
	"with_statement":      true,
	"assert_statement":    true,
	"for_in_clause":       true, // one per comprehension generator
}

// Complexity scores a declaration in a single accumulating walk: base 1,
// +1 per branch construct, +1 per boolean operator node. tree-sitter nests
// `a and b and c` as two binary nodes, which yields the N-1 increment of an
// N-operand chain.
func Complexity(node *sitter.Node) int {
	score := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		kind := n.Kind()
		if branchKinds[kind] || kind == "boolean_operator" {
			score++
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return score
}
