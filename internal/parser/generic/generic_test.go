package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseWholeFileAsOneNode(t *testing.T) {
	p := New()
	tree, err := p.Parse("line one\nline two\nline three\n")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)

	assert.Equal(t, "0", tree.Root.Path)
	assert.Equal(t, NodeType, tree.Root.NodeType)
	assert.Equal(t, 1, tree.Root.StartLine)
	assert.Equal(t, 3, tree.Root.EndLine)
	assert.Nil(t, tree.Root.Children)
}

func TestParser_EmptySource(t *testing.T) {
	p := New()
	tree, err := p.Parse("")
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Root.StartLine)
	assert.Equal(t, 1, tree.Root.EndLine)
}

func TestParser_NoTrailingNewline(t *testing.T) {
	p := New()
	tree, err := p.Parse("one\ntwo")
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Root.EndLine)
}

func TestParser_SupportedExtensionsEmpty(t *testing.T) {
	p := New()
	assert.Empty(t, p.SupportedExtensions())
}
