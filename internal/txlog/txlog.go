// Package txlog implements the append-only Transaction Log (SPEC_FULL.md
// §4.5): every mutating operation is recorded as one NDJSON line under
// "<project>/.tree_session.json", with the active session id mirrored to a
// sidecar file so it survives process restarts. Grounded on
// original_source/src/core/transaction_log.rs, blended with the teacher's
// mcp/transaction_log.go append-log idiom.
package txlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// warnf reports a non-fatal recoverable condition to stderr, matching the
// teacher's "[tag] message" debug-log idiom (internal/rpc's debugLog).
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[txlog] "+format+"\n", args...)
}

// Operation enumerates the kinds of transactions recorded in the log.
type Operation string

const (
	OpEdit         Operation = "edit"
	OpInsert       Operation = "insert"
	OpDelete       Operation = "delete"
	OpAddProperty  Operation = "add_property"
	OpAddComponent Operation = "add_component"
	OpMove         Operation = "move"
	OpRestore      Operation = "restore"
	OpSessionStart Operation = "session_start"
	OpSessionEnd   Operation = "session_end"
)

// mutating reports whether op is one of the file-content-changing
// operations counted toward restoration plans and "last transaction for a
// file" lookups.
func (op Operation) mutating() bool {
	switch op {
	case OpEdit, OpInsert, OpDelete:
		return true
	default:
		return false
	}
}

// Transaction is one recorded entry in the log.
type Transaction struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Operation   Operation         `json:"operation"`
	FilePath    string            `json:"file_path"`
	NodePath    string            `json:"node_path,omitempty"`
	BeforeHash  string            `json:"before_hash,omitempty"`
	AfterHash   string            `json:"after_hash,omitempty"`
	Description string            `json:"description"`
	SessionID   string            `json:"session_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

const (
	logFileName       = ".tree_session.json"
	sessionIDFileName = ".tree_session_id"
)

// Log manages the project's transaction log file and the active session id.
type Log struct {
	projectRoot   string
	logFile       string
	sessionIDFile string
	sessionID     string
	current       []Transaction
}

// New creates a fresh log for projectRoot, starting and recording a brand
// new session.
func New(projectRoot string) (*Log, error) {
	l := &Log{
		projectRoot:   projectRoot,
		logFile:       filepath.Join(projectRoot, logFileName),
		sessionIDFile: filepath.Join(projectRoot, sessionIDFileName),
		sessionID:     newSessionID(),
	}
	if err := os.WriteFile(l.sessionIDFile, []byte(l.sessionID), 0o644); err != nil {
		return nil, fmt.Errorf("write session id file: %w", err)
	}
	if _, err := l.Log(OpSessionStart, "session", "", "", "", "Session started", nil); err != nil {
		return nil, err
	}
	return l, nil
}

// Load opens the log at projectRoot, creating one via New if it doesn't yet
// exist. The active session id is read from the sidecar file when present,
// and current-session transactions are filtered from the full history.
func Load(projectRoot string) (*Log, error) {
	logFile := filepath.Join(projectRoot, logFileName)
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return New(projectRoot)
	}

	sessionIDFile := filepath.Join(projectRoot, sessionIDFileName)
	sessionID := ""
	if b, err := os.ReadFile(sessionIDFile); err == nil {
		sessionID = string(b)
	}
	if sessionID == "" {
		sessionID = newSessionID()
	}

	full, err := loadFullHistory(logFile)
	if err != nil {
		return nil, err
	}
	var current []Transaction
	for _, t := range full {
		if t.SessionID == sessionID {
			current = append(current, t)
		}
	}

	return &Log{
		projectRoot:   projectRoot,
		logFile:       logFile,
		sessionIDFile: sessionIDFile,
		sessionID:     sessionID,
		current:       current,
	}, nil
}

// ensureSession auto-starts a default session the first time a mutating
// transaction is logged with no active session, so edits work without an
// explicit session-start call.
func (l *Log) ensureSession() error {
	if len(l.current) != 0 {
		return nil
	}
	l.sessionID = newSessionID()
	if err := os.WriteFile(l.sessionIDFile, []byte(l.sessionID), 0o644); err != nil {
		return fmt.Errorf("write session id file: %w", err)
	}
	txn := Transaction{
		ID:          newTransactionID(),
		Timestamp:   time.Now().UTC(),
		Operation:   OpSessionStart,
		FilePath:    "session",
		Description: "Default session auto-started",
		SessionID:   l.sessionID,
	}
	l.current = append(l.current, txn)
	return l.append(txn)
}

// Log records a new transaction and returns its id.
func (l *Log) Log(op Operation, filePath, nodePath, beforeHash, afterHash, description string, metadata map[string]string) (string, error) {
	if op != OpSessionStart && op != OpSessionEnd {
		if err := l.ensureSession(); err != nil {
			return "", err
		}
	}

	txn := Transaction{
		ID:          newTransactionID(),
		Timestamp:   time.Now().UTC(),
		Operation:   op,
		FilePath:    filePath,
		NodePath:    nodePath,
		BeforeHash:  beforeHash,
		AfterHash:   afterHash,
		Description: description,
		SessionID:   l.sessionID,
		Metadata:    metadata,
	}

	l.current = append(l.current, txn)
	if err := l.append(txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

// SessionID returns the currently active session id.
func (l *Log) SessionID() string { return l.sessionID }

// SessionHistory returns the transactions logged in the current session.
func (l *Log) SessionHistory() []Transaction {
	out := make([]Transaction, len(l.current))
	copy(out, l.current)
	return out
}

// FullHistory returns every transaction ever recorded, in file order
// (oldest first).
func (l *Log) FullHistory() ([]Transaction, error) {
	return loadFullHistory(l.logFile)
}

// FileHistory returns every transaction recorded against filePath.
func (l *Log) FileHistory(filePath string) ([]Transaction, error) {
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, t := range full {
		if t.FilePath == filePath {
			out = append(out, t)
		}
	}
	return out, nil
}

// Since returns every transaction timestamped at or after since.
func (l *Log) Since(since time.Time) ([]Transaction, error) {
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, t := range full {
		if !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Range returns every transaction timestamped within [start, end].
func (l *Log) Range(start, end time.Time) ([]Transaction, error) {
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, t := range full {
		if !t.Timestamp.Before(start) && !t.Timestamp.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

// AffectedFilesSince returns the distinct files touched by a mutating
// operation since the given time.
func (l *Log) AffectedFilesSince(since time.Time) ([]string, error) {
	txns, err := l.Since(since)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, t := range txns {
		if t.Operation.mutating() {
			seen[t.FilePath] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

// SessionFiles returns the distinct files touched by a mutating operation
// within the given session.
func (l *Log) SessionFiles(sessionID string) ([]string, error) {
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, t := range full {
		if t.SessionID == sessionID && t.Operation.mutating() {
			seen[t.FilePath] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

// LastBefore returns the most recent mutating transaction for filePath
// strictly before the given time, or nil if none exists.
func (l *Log) LastBefore(filePath string, before time.Time) (*Transaction, error) {
	history, err := l.FileHistory(filePath)
	if err != nil {
		return nil, err
	}
	var best *Transaction
	for i := range history {
		t := history[i]
		if !t.Operation.mutating() || !t.Timestamp.Before(before) {
			continue
		}
		if best == nil || t.Timestamp.After(best.Timestamp) {
			cp := t
			best = &cp
		}
	}
	return best, nil
}

// CountModificationsSince counts mutating transactions for filePath at or
// after since.
func (l *Log) CountModificationsSince(filePath string, since time.Time) (int, error) {
	history, err := l.FileHistory(filePath)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range history {
		if !t.Timestamp.Before(since) && t.Operation.mutating() {
			n++
		}
	}
	return n, nil
}

// CountMutatingSince counts mutating transactions across the whole project
// since the given time.
func (l *Log) CountMutatingSince(since time.Time) (int, error) {
	txns, err := l.Since(since)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range txns {
		if t.Operation.mutating() {
			n++
		}
	}
	return n, nil
}

// Find looks up a transaction by id, checking the current session first.
func (l *Log) Find(id string) (*Transaction, error) {
	for i := range l.current {
		if l.current[i].ID == id {
			cp := l.current[i]
			return &cp, nil
		}
	}
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	for i := range full {
		if full[i].ID == id {
			return &full[i], nil
		}
	}
	return nil, nil
}

// LastN returns the last n transactions in the full history, oldest first.
func (l *Log) LastN(n int) ([]Transaction, error) {
	full, err := l.FullHistory()
	if err != nil {
		return nil, err
	}
	if n >= len(full) {
		return full, nil
	}
	return full[len(full)-n:], nil
}

// StartNewSession closes the current session (logging a SessionEnd
// transaction if non-empty) and opens a fresh one.
func (l *Log) StartNewSession() error {
	if len(l.current) > 0 {
		desc := fmt.Sprintf("Session ended with %d operations", len(l.current))
		if _, err := l.Log(OpSessionEnd, "session", "", "", "", desc, nil); err != nil {
			return err
		}
	}

	l.sessionID = newSessionID()
	l.current = nil
	if err := os.WriteFile(l.sessionIDFile, []byte(l.sessionID), 0o644); err != nil {
		return fmt.Errorf("write session id file: %w", err)
	}
	_, err := l.Log(OpSessionStart, "session", "", "", "", "New session started", nil)
	return err
}

func (l *Log) append(txn Transaction) error {
	f, err := os.OpenFile(l.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transaction log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write transaction log line: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync transaction log: %w", err)
	}
	return nil
}

func loadFullHistory(logFile string) ([]Transaction, error) {
	f, err := os.Open(logFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}
	defer f.Close()

	var out []Transaction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var t Transaction
		if err := json.Unmarshal(line, &t); err != nil {
			// A single malformed line is treated as a truncated partial
			// write from an interrupted append rather than failing the
			// whole load (SPEC_FULL.md §4.5): warn and stop, discarding
			// only the unreadable tail.
			warnf("truncating transaction log at malformed line: %v", err)
			break
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixNano())
}

func newTransactionID() string {
	return fmt.Sprintf("txn_%d", time.Now().UnixNano())
}
