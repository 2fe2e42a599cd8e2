// Package engine implements the Edit Engine (SPEC_FULL.md §4.1): applying
// one EditOperation to one file's source text, either as a pure preview or
// as a committed apply that snapshots, writes, and logs the change. Splice
// logic is grounded on providers/base/provider.go's byte-offset replace/
// insert helpers; diff generation uses pmezard/go-difflib as the teacher
// does.
package engine

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/parser"
)

// Engine applies EditOperations against a parser.Registry. It holds no
// mutable state of its own; callers (the workspace orchestrator) are
// responsible for snapshotting, writing, and logging on apply.
type Engine struct {
	registry *parser.Registry
}

// New constructs an Engine bound to registry.
func New(registry *parser.Registry) *Engine {
	return &Engine{registry: registry}
}

// Preview applies op to source (as parsed by parser for filePath) and
// returns the resulting string without touching disk. It is pure: calling
// it repeatedly with the same inputs yields the same output.
func (e *Engine) Preview(filePath, source string, op model.EditOperation) (string, error) {
	tree, err := e.registry.Parse(filePath, source)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", filePath, err)
	}
	return e.apply(tree, op)
}

// PreviewDiff runs Preview and additionally renders a unified diff between
// source and the result.
func (e *Engine) PreviewDiff(filePath, source string, op model.EditOperation) (model.FileDiff, error) {
	after, err := e.Preview(filePath, source, op)
	if err != nil {
		return model.FileDiff{}, err
	}
	return model.FileDiff{
		File:   filePath,
		Before: source,
		After:  after,
		Diff:   unifiedDiff(source, after),
	}, nil
}

// ValidateResult re-parses the produced source under the same parser used
// for the original file, returning a *model.ParseError if it is no longer
// syntactically valid (the apply-time check described in §4.1).
func (e *Engine) ValidateResult(filePath, newSource string) error {
	_, err := e.registry.Parse(filePath, newSource)
	return err
}

// apply resolves op's target against tree and returns the modified source,
// or model.ErrNodeNotFound / model.ErrInvalidPosition.
func (e *Engine) apply(tree *model.Tree, op model.EditOperation) (string, error) {
	switch op.Op {
	case model.OpEdit:
		return e.applyEdit(tree, op)
	case model.OpInsert:
		return e.applyInsert(tree, op)
	case model.OpDelete:
		return e.applyDelete(tree, op)
	default:
		return "", fmt.Errorf("unknown operation %q", op.Op)
	}
}

func (e *Engine) applyEdit(tree *model.Tree, op model.EditOperation) (string, error) {
	node := tree.Find(op.NodePath)
	if node == nil {
		return "", fmt.Errorf("%w: %s", model.ErrNodeNotFound, op.NodePath)
	}
	// node.Path uniquely identifies the node and the source has not yet
	// been mutated, so exactly one occurrence of node.Content exists;
	// replace only the first occurrence (replacen(.., 1) semantics).
	idx := strings.Index(tree.Source, node.Content)
	if idx < 0 {
		return "", fmt.Errorf("%w: node content not found verbatim in source", model.ErrNodeNotFound)
	}
	return tree.Source[:idx] + op.Content + tree.Source[idx+len(node.Content):], nil
}

func (e *Engine) applyInsert(tree *model.Tree, op model.EditOperation) (string, error) {
	if !model.ValidPosition(op.Position) {
		return "", fmt.Errorf("%w: %d", model.ErrInvalidPosition, op.Position)
	}
	parent := tree.Find(op.ParentPath)
	if parent == nil {
		return "", fmt.Errorf("%w: %s", model.ErrNodeNotFound, op.ParentPath)
	}

	lines := splitLinesKeepEnding(tree.Source)
	var insertAt int // 0-based line index to insert the new line before
	switch op.Position {
	case model.PositionBefore:
		insertAt = parent.StartLine - 1
	case model.PositionAfter:
		insertAt = parent.EndLine
	case model.PositionInside:
		insertAt = parent.EndLine - 1
	}
	if insertAt < 0 {
		insertAt = 0
	}
	if insertAt > len(lines) {
		insertAt = len(lines)
	}

	newLine := op.Content
	if !strings.HasSuffix(newLine, "\n") {
		newLine += "\n"
	}

	result := make([]string, 0, len(lines)+1)
	result = append(result, lines[:insertAt]...)
	result = append(result, newLine)
	result = append(result, lines[insertAt:]...)
	return strings.Join(result, ""), nil
}

func (e *Engine) applyDelete(tree *model.Tree, op model.EditOperation) (string, error) {
	node := tree.Find(op.NodePath)
	if node == nil {
		return "", fmt.Errorf("%w: %s", model.ErrNodeNotFound, op.NodePath)
	}
	lines := splitLinesKeepEnding(tree.Source)
	start := node.StartLine - 1
	end := node.EndLine // exclusive
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return strings.Join(lines, ""), nil
	}
	result := make([]string, 0, len(lines)-(end-start))
	result = append(result, lines[:start]...)
	result = append(result, lines[end:]...)
	return strings.Join(result, ""), nil
}

// splitLinesKeepEnding splits source into lines, each retaining its
// trailing "\n" (the last line keeps none if the source doesn't end in
// one), so that joining the slice always reconstructs the original byte
// sequence.
func splitLinesKeepEnding(source string) []string {
	if source == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			lines = append(lines, source[start:i+1])
			start = i + 1
		}
	}
	if start < len(source) {
		lines = append(lines, source[start:])
	}
	return lines
}

// Diff renders a unified diff between before and after, exported for
// callers (such as the batch applicator) that compute their own FileDiff
// values without going through PreviewDiff.
func Diff(before, after string) string {
	return unifiedDiff(before, after)
}

func unifiedDiff(before, after string) string {
	if before == after {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("--- before\n+++ after\n@@ changes @@\n%d bytes -> %d bytes", len(before), len(after))
	}
	return text
}
