package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/parser"
	"github.com/oxhq/treeedit/internal/parser/generic"
)

func newTestEngine() *Engine {
	registry := parser.NewRegistry(generic.New())
	return New(registry)
}

func TestEngine_Preview_Edit(t *testing.T) {
	e := newTestEngine()
	after, err := e.Preview("a.txt", "hello\n", model.EditOperation{Op: model.OpEdit, NodePath: "0", Content: "world\n"})
	require.NoError(t, err)
	assert.Equal(t, "world\n", after)
}

func TestEngine_Preview_IsPure(t *testing.T) {
	e := newTestEngine()
	op := model.EditOperation{Op: model.OpEdit, NodePath: "0", Content: "world\n"}
	first, err := e.Preview("a.txt", "hello\n", op)
	require.NoError(t, err)
	second, err := e.Preview("a.txt", "hello\n", op)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_Preview_EditNodeNotFound(t *testing.T) {
	e := newTestEngine()
	_, err := e.Preview("a.txt", "hello\n", model.EditOperation{Op: model.OpEdit, NodePath: "0.5", Content: "x"})
	assert.ErrorIs(t, err, model.ErrNodeNotFound)
}

func TestEngine_Preview_InsertAfter(t *testing.T) {
	e := newTestEngine()
	after, err := e.Preview("ab.txt", "A\nB\n", model.EditOperation{Op: model.OpInsert, ParentPath: "0", Position: model.PositionAfter, Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", after)
}

func TestEngine_Preview_InsertBefore(t *testing.T) {
	e := newTestEngine()
	after, err := e.Preview("ab.txt", "A\nB\n", model.EditOperation{Op: model.OpInsert, ParentPath: "0", Position: model.PositionBefore, Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C\nA\nB\n", after)
}

func TestEngine_Preview_InvalidPosition(t *testing.T) {
	e := newTestEngine()
	_, err := e.Preview("ab.txt", "A\nB\n", model.EditOperation{Op: model.OpInsert, ParentPath: "0", Position: model.InsertPosition(9), Content: "C"})
	assert.ErrorIs(t, err, model.ErrInvalidPosition)
}

func TestEngine_Preview_Delete(t *testing.T) {
	e := newTestEngine()
	after, err := e.Preview("ab.txt", "A\nB\n", model.EditOperation{Op: model.OpDelete, NodePath: "0"})
	require.NoError(t, err)
	assert.Equal(t, "", after)
}

func TestEngine_PreviewDiff_NoChangeIsEmpty(t *testing.T) {
	e := newTestEngine()
	diff, err := e.PreviewDiff("a.txt", "same\n", model.EditOperation{Op: model.OpEdit, NodePath: "0", Content: "same\n"})
	require.NoError(t, err)
	assert.Equal(t, "", diff.Diff)
}

func TestEngine_PreviewDiff_RendersUnifiedDiff(t *testing.T) {
	e := newTestEngine()
	diff, err := e.PreviewDiff("a.txt", "hello\n", model.EditOperation{Op: model.OpEdit, NodePath: "0", Content: "world\n"})
	require.NoError(t, err)
	assert.Contains(t, diff.Diff, "-hello")
	assert.Contains(t, diff.Diff, "+world")
}

func TestEngine_ValidateResult(t *testing.T) {
	e := newTestEngine()
	assert.NoError(t, e.ValidateResult("a.txt", "anything goes, generic never fails\n"))
}

func TestDiff_IdenticalIsEmpty(t *testing.T) {
	assert.Equal(t, "", Diff("same", "same"))
}
