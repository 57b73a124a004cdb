package parser

import (
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Extractor turns Python source into ProgramUnits. It is safe for
// concurrent use; tree-sitter parsers are leased from a pool per call.
type Extractor struct {
	pool   *ParserPool
	python *pythonExtractor
}

func NewExtractor() *Extractor {
	lang := sitter.NewLanguage(tree_sitter_python.Language())
	return &Extractor{
		pool:   NewParserPool(lang),
		python: newPythonExtractor(),
	}
}

// Extract parses source into a ProgramUnit identified by unitID. Malformed
// source yields a CodeParse error carrying a *ParseError; it never panics.
func (x *Extractor) Extract(source []byte, unitID string) (unit *ProgramUnit, err error) {
	start := time.Now()
	defer func() {
		observability.ExtractionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.ExtractionFailuresTotal.Inc()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			unit = nil
			err = errors.AddContext(errors.Wrap(fmt.Errorf("%v", r), errors.CodeInternal, "extraction panicked"), errors.CtxUnit, unitID)
		}
	}()

	sp := x.pool.Get()
	defer x.pool.Put(sp)

	tree := sp.Parse(source, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parse failed"), errors.CtxUnit, unitID)
	}
	defer tree.Close()

	root := tree.RootNode()
	if pe := syntaxError(root, source, unitID); pe != nil {
		return nil, wrapParseError(pe)
	}

	text := string(source)
	unit = &ProgramUnit{
		ID:          unitID,
		Source:      text,
		ContentHash: ContentHash(source),
		LineCount:   countLines(text),
	}
	x.python.extract(root, source, unit)
	return unit, nil
}

// ExtractFile reads path and extracts it using the path as unit id.
func (x *Extractor) ExtractFile(path string) (*ProgramUnit, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "stat source"), errors.CtxPath, path)
	}
	if info.IsDir() {
		return nil, errors.AddContext(errors.New(errors.CodeIO, "source path is a directory"), errors.CtxPath, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeIO, "read source"), errors.CtxPath, path)
	}
	unit, err := x.Extract(data, path)
	if err != nil {
		return nil, err
	}
	unit.ModTime = info.ModTime()
	return unit, nil
}

// CheckSyntax parses source and reports the first syntax error, if any.
func (x *Extractor) CheckSyntax(source []byte) error {
	sp := x.pool.Get()
	defer x.pool.Put(sp)

	tree := sp.Parse(source, nil)
	if tree == nil {
		return errors.New(errors.CodeInternal, "parse failed")
	}
	defer tree.Close()

	if pe := syntaxError(tree.RootNode(), source, ""); pe != nil {
		return wrapParseError(pe)
	}
	return nil
}

// AsParseError extracts the positional details from a CodeParse error.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
