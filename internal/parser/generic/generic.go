// Package generic implements the fallback parser: any file without a
// registered language parser is projected as a single node covering the
// whole source, per SPEC_FULL.md §6.1. Grounded on
// original_source/src/parser/generic.rs.
package generic

import (
	"strings"

	"github.com/oxhq/treeedit/internal/model"
)

// NodeType is the node_type reported for the whole-file fallback node.
const NodeType = "generic"

// Parser implements parser.Parser for files with no dedicated grammar.
type Parser struct{}

// New returns a ready-to-use fallback parser.
func New() *Parser { return &Parser{} }

// Parse always succeeds: it never reports a ParseError, since a generic
// file has no syntax to violate.
func (p *Parser) Parse(source string) (*model.Tree, error) {
	lineCount := strings.Count(source, "\n")
	if !strings.HasSuffix(source, "\n") && source != "" {
		lineCount++
	}
	if lineCount == 0 {
		lineCount = 1
	}

	root := &model.Node{
		ID:        "0",
		Path:      "0",
		NodeType:  NodeType,
		Content:   source,
		StartLine: 1,
		EndLine:   lineCount,
		Children:  nil,
	}

	return &model.Tree{Root: root, Source: source}, nil
}

// SupportedExtensions is empty: the generic parser never claims an
// extension, it is only ever reached via the registry's fallback path.
func (p *Parser) SupportedExtensions() []string {
	return nil
}
