package restore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/treeedit/internal/backup"
	"github.com/oxhq/treeedit/internal/txlog"
)

func TestEngine_RestoreFileBefore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)

	require.NoError(t, os.WriteFile(path, []byte("H1\n"), 0o644))
	h1, err := bs.Snapshot(path, "H1\n", nil)
	require.NoError(t, err)
	t1ID, err := log.Log(txlog.OpEdit, path, "0", "", h1.ContentHash, "write H1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, t1ID)

	t1, err := log.Find(t1ID)
	require.NoError(t, err)
	t2Time := t1.Timestamp.Add(time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("H2\n"), 0o644))
	h2, err := bs.Snapshot(path, "H2\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, path, "0", h1.ContentHash, h2.ContentHash, "write H2", nil)
	require.NoError(t, err)

	e, err := New(dir)
	require.NoError(t, err)

	restoredPath, err := e.RestoreFileBefore(path, t2Time.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, path, restoredPath)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "H1\n", string(data))
}

func TestEngine_RestoreFileToTransaction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)

	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))
	v1, err := bs.Snapshot(path, "v1\n", nil)
	require.NoError(t, err)
	id, err := log.Log(txlog.OpEdit, path, "0", "", v1.ContentHash, "write v1", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0o644))

	e, err := New(dir)
	require.NoError(t, err)
	_, err = e.RestoreFileToTransaction(id)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data))
}

func TestEngine_PlanAndExecuteProjectRestore(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)

	require.NoError(t, os.WriteFile(pathA, []byte("A1\n"), 0o644))
	a1, err := bs.Snapshot(pathA, "A1\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, pathA, "0", "", a1.ContentHash, "write a", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(pathB, []byte("B1\n"), 0o644))
	b1, err := bs.Snapshot(pathB, "B1\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, pathB, "0", "", b1.ContentHash, "write b", nil)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(time.Millisecond)

	require.NoError(t, os.WriteFile(pathA, []byte("A2\n"), 0o644))
	a2, err := bs.Snapshot(pathA, "A2\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, pathA, "0", "", a2.ContentHash, "edit a", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(pathB, []byte("B2\n"), 0o644))
	b2, err := bs.Snapshot(pathB, "B2\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, pathB, "0", "", b2.ContentHash, "edit b", nil)
	require.NoError(t, err)

	e, err := New(dir)
	require.NoError(t, err)

	plan, err := e.PlanProjectRestore(cutoff)
	require.NoError(t, err)
	assert.Len(t, plan, 2)
	for _, p := range plan {
		assert.NotEmpty(t, p.TargetTransactionID)
	}

	result, err := e.ExecutePlan(plan)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.RestoredFiles, 2)
}

func TestEngine_PreviewFileToTransaction_DoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)

	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))
	v1, err := bs.Snapshot(path, "v1\n", nil)
	require.NoError(t, err)
	id, err := log.Log(txlog.OpEdit, path, "0", "", v1.ContentHash, "write v1", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0o644))

	e, err := New(dir)
	require.NoError(t, err)

	diff, err := e.PreviewFileToTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, "v2\n", diff.Before)
	assert.Equal(t, "v1\n", diff.After)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(data), "preview must not write to disk")
}

func TestEngine_RestoreSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)
	sid := log.SessionID()

	require.NoError(t, os.WriteFile(path, []byte("pre\n"), 0o644))
	pre, err := bs.Snapshot(path, "pre\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, path, "0", "", pre.ContentHash, "pre-session write", nil)
	require.NoError(t, err)

	require.NoError(t, log.StartNewSession())
	newSid := log.SessionID()
	require.NotEqual(t, sid, newSid)

	require.NoError(t, os.WriteFile(path, []byte("during\n"), 0o644))
	during, err := bs.Snapshot(path, "during\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, path, "0", pre.ContentHash, during.ContentHash, "in-session write", nil)
	require.NoError(t, err)

	e, err := New(dir)
	require.NoError(t, err)

	result, err := e.RestoreSession(newSid)
	require.NoError(t, err)
	assert.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pre\n", string(data))
}

func TestEngine_Stats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)
	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))
	v1, err := bs.Snapshot(path, "v1\n", nil)
	require.NoError(t, err)
	_, err = log.Log(txlog.OpEdit, path, "0", "", v1.ContentHash, "write v1", nil)
	require.NoError(t, err)

	e, err := New(dir)
	require.NoError(t, err)
	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBackupFiles)
	assert.Equal(t, 1, stats.FilesWithBackups)
	assert.GreaterOrEqual(t, stats.TotalTransactions, 2) // session_start + edit
}
