package undoredo

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

// seedEdit writes before/after backups for an Edit transaction on path and
// logs it, returning the transaction id.
func seedEdit(t *testing.T, dir, path string, log *txlog.Log, bs *backup.Store, before, after string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(before), 0o644))
	beforeEntry, err := bs.Snapshot(path, before, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(after), 0o644))
	afterEntry, err := bs.Snapshot(path, after, nil)
	require.NoError(t, err)

	id, err := log.Log(txlog.OpEdit, path, "0", beforeEntry.ContentHash, afterEntry.ContentHash, "edit", nil)
	require.NoError(t, err)
	return id
}

func TestManager_EditRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)
	seedEdit(t, dir, path, log, bs, "hello\n", "world\n")

	mgr, err := New(dir)
	require.NoError(t, err)

	results, err := mgr.Undo(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	state := mgr.State()
	assert.Equal(t, 0, state.UndoAvailable)
	assert.Equal(t, 1, state.RedoAvailable)

	redoResults, err := mgr.Redo(1)
	require.NoError(t, err)
	require.Len(t, redoResults, 1)
	assert.True(t, redoResults[0].Success)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "world\n", string(data))

	state = mgr.State()
	assert.Equal(t, 1, state.UndoAvailable)
	assert.Equal(t, 0, state.RedoAvailable)
}

func TestManager_Undo_EditWithoutBackupOrNeighbourFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	log, err := txlog.New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("world\n"), 0o644))

	// Log an Edit transaction whose before_hash has no matching backup at
	// all (simulating retention having dropped it).
	id, err := log.Log(txlog.OpEdit, path, "0", "deadbeefdeadbeef", "cafed00dcafed00d", "edit with no backup", nil)
	require.NoError(t, err)

	mgr, err := New(dir)
	require.NoError(t, err)

	results, err := mgr.Undo(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].TransactionID)
	assert.False(t, results[0].Success, "Edit undo with no backup and no earlier transaction must report failure")

	// The id still moves to the redo stack even though the restore failed.
	state := mgr.State()
	assert.Equal(t, 0, state.UndoAvailable)
	assert.Equal(t, 1, state.RedoAvailable)
}

func TestManager_Undo_InsertFallsBackToNeighbour(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)

	require.NoError(t, os.WriteFile(path, []byte("A\n"), 0o644))
	firstEntry, err := bs.Snapshot(path, "A\n", nil)
	require.NoError(t, err)
	firstID, err := log.Log(txlog.OpEdit, path, "0", "nonexistenthash0", firstEntry.ContentHash, "seed", nil)
	require.NoError(t, err)
	require.NotEmpty(t, firstID)

	time.Sleep(time.Millisecond)

	// The Insert transaction's own before_hash has no backup, but the
	// preceding transaction's after_hash (firstEntry) does, so undo should
	// fall back to restoring that state.
	require.NoError(t, os.WriteFile(path, []byte("A\nB\n"), 0o644))
	insertID, err := log.Log(txlog.OpInsert, path, "0", "missingbeforehash", "missingafterhash", "insert B", nil)
	require.NoError(t, err)

	mgr, err := New(dir)
	require.NoError(t, err)

	results, err := mgr.Undo(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, insertID, results[0].TransactionID)
	assert.True(t, results[0].Success, "Insert/Delete/Restore undo must fall back to the neighbouring transaction")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(data))
}

func TestManager_SessionMarkersAreNoOps(t *testing.T) {
	dir := t.TempDir()
	log, err := txlog.New(dir)
	require.NoError(t, err)

	result, err := (&Manager{log: log, backups: backup.New(dir)}).undoSingle(log.SessionHistory()[0].ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestManager_RecordOperationClearsRedo(t *testing.T) {
	dir := t.TempDir()
	log, err := txlog.New(dir)
	require.NoError(t, err)
	bs := backup.New(dir)
	path := filepath.Join(dir, "a.txt")
	seedEdit(t, dir, path, log, bs, "hello\n", "world\n")

	mgr, err := New(dir)
	require.NoError(t, err)
	_, err = mgr.Undo(1)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.State().RedoAvailable)

	mgr.RecordOperation("txn_new")
	assert.Equal(t, 0, mgr.State().RedoAvailable)
	assert.Equal(t, 1, mgr.State().UndoAvailable)
}
