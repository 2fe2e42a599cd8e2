package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/treeedit/internal/hashutil"
)

func TestStore_SnapshotAndList(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	entry, err := s.Snapshot("a.txt", "hello\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", entry.FilePath)
	assert.Equal(t, hashutil.ContentHash("hello\n"), entry.ContentHash)
	assert.FileExists(t, entry.Path)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello\n", entries[0].SourceCode)
}

func TestStore_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Snapshot("a.txt", "first\n", nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Snapshot("a.txt", "second\n", nil)
	require.NoError(t, err)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second\n", entries[0].SourceCode)
	assert.Equal(t, "first\n", entries[1].SourceCode)
}

func TestStore_ListOnMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_FindByHash(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Snapshot("a.txt", "hello\n", nil)
	require.NoError(t, err)

	h := hashutil.ContentHash("hello\n")
	entry, err := s.FindByHash(h)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "a.txt", entry.FilePath)

	none, err := s.FindByHash("deadbeefdeadbeef")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_FindByHashForFile_PrefersMatchingFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Snapshot("other.txt", "shared\n", nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Snapshot("a.txt", "shared\n", nil)
	require.NoError(t, err)

	h := hashutil.ContentHash("shared\n")
	entry, err := s.FindByHashForFile(h, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "a.txt", entry.FilePath)
}

func TestStore_FindByHashForFile_FallsBackToAnyFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Snapshot("other.txt", "shared\n", nil)
	require.NoError(t, err)

	h := hashutil.ContentHash("shared\n")
	entry, err := s.FindByHashForFile(h, "nonexistent.txt")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "other.txt", entry.FilePath)
}

func TestStore_Restore(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	entry, err := s.Snapshot("a.txt", "hello\n", nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "restored.txt")
	require.NoError(t, s.Restore(entry.Path, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
