package txlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BootstrapsSessionStart(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, log.SessionID())

	history := log.SessionHistory()
	require.Len(t, history, 1)
	assert.Equal(t, OpSessionStart, history[0].Operation)

	assert.FileExists(t, filepath.Join(dir, sessionIDFileName))
}

func TestLoad_CreatesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	log, err := Load(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, log.SessionID())
}

func TestLog_AutoSessionBootstrap(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	id, err := log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit a.txt", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	full, err := log.FullHistory()
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, OpSessionStart, full[0].Operation)
	assert.Equal(t, OpEdit, full[1].Operation)
	assert.Equal(t, full[0].SessionID, full[1].SessionID)
}

func TestLog_MonotonicTimestampsPerFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "first", nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = log.Log(OpEdit, "a.txt", "0", "h2", "h3", "second", nil)
	require.NoError(t, err)

	history, err := log.FileHistory("a.txt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[1].Timestamp.Before(history[0].Timestamp))
}

func TestLog_FindByID(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	id, err := log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit", nil)
	require.NoError(t, err)

	txn, err := log.Find(id)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "a.txt", txn.FilePath)

	missing, err := log.Find("txn_doesnotexist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLog_LastBefore(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "first", nil)
	require.NoError(t, err)
	mid := time.Now().UTC()
	time.Sleep(time.Millisecond)
	_, err = log.Log(OpEdit, "a.txt", "0", "h2", "h3", "second", nil)
	require.NoError(t, err)

	txn, err := log.LastBefore("a.txt", mid)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "first", txn.Description)

	none, err := log.LastBefore("a.txt", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLog_AffectedFilesSince(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	start := time.Now().UTC()

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit a", nil)
	require.NoError(t, err)
	_, err = log.Log(OpEdit, "b.txt", "0", "h1", "h2", "edit b", nil)
	require.NoError(t, err)

	files, err := log.AffectedFilesSince(start)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, files)
}

func TestLog_CountModificationsSince(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	start := time.Now().UTC()

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "first", nil)
	require.NoError(t, err)
	_, err = log.Log(OpEdit, "a.txt", "0", "h2", "h3", "second", nil)
	require.NoError(t, err)

	n, err := log.CountModificationsSince("a.txt", start)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLog_StartNewSession(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	firstSession := log.SessionID()

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit", nil)
	require.NoError(t, err)

	require.NoError(t, log.StartNewSession())
	assert.NotEqual(t, firstSession, log.SessionID())

	full, err := log.FullHistory()
	require.NoError(t, err)
	var sawEnd, sawStart bool
	for _, t := range full {
		if t.Operation == OpSessionEnd {
			sawEnd = true
		}
		if t.Operation == OpSessionStart && t.SessionID == log.SessionID() {
			sawStart = true
		}
	}
	assert.True(t, sawEnd)
	assert.True(t, sawStart)
}

func TestLog_SessionFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	sid := log.SessionID()

	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit", nil)
	require.NoError(t, err)

	files, err := log.SessionFiles(sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, files)
}

func TestLoadFullHistory_TruncatesMalformedTailLine(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	_, err = log.Log(OpEdit, "a.txt", "0", "h1", "h2", "edit", nil)
	require.NoError(t, err)

	logPath := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"txn_broken"`) // truncated, no closing brace/newline
	require.NoError(t, err)
	require.NoError(t, f.Close())

	full, err := loadFullHistory(logPath)
	require.NoError(t, err)
	for _, txn := range full {
		assert.NotEqual(t, "txn_broken", txn.ID)
	}
}

func TestLoadFullHistory_MissingFile(t *testing.T) {
	full, err := loadFullHistory(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, full)
}
