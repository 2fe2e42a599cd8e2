// Package undoredo implements the Undo/Redo Manager (SPEC_FULL.md §4.6): two
// transaction-id stacks rebuilt from the transaction log at startup, with
// undo/redo resolving each transaction to a backup by content hash and
// falling back to neighboring transactions when no exact backup survives.
// Grounded on original_source/src/core/undo_redo.rs.
package undoredo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oxhq/treeedit/internal/backup"
	"github.com/oxhq/treeedit/internal/restore"
	"github.com/oxhq/treeedit/internal/txlog"
)

// warnf reports a non-fatal recoverable condition to stderr, matching the
// "[tag] message" idiom used elsewhere in the module (internal/txlog's
// warnf, internal/rpc's debugLog).
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[undoredo] "+format+"\n", args...)
}

// Result reports the outcome of undoing or redoing a single transaction.
type Result struct {
	TransactionID string
	Operation     txlog.Operation
	FilePath      string
	Success       bool
	Message       string
}

// State summarizes what's available to undo/redo.
type State struct {
	UndoAvailable int
	RedoAvailable int
	LastUndo      string
	LastRedo      string
}

// Manager owns the undo/redo stacks for one project.
type Manager struct {
	log         *txlog.Log
	backups     *backup.Store
	restoration *restore.Engine
	projectRoot string
	undoStack   []string
	redoStack   []string
}

// reversible is the set of operations eligible for undo/redo (§4.6).
func reversible(op txlog.Operation) bool {
	switch op {
	case txlog.OpEdit, txlog.OpInsert, txlog.OpDelete, txlog.OpAddProperty,
		txlog.OpAddComponent, txlog.OpMove, txlog.OpRestore:
		return true
	default:
		return false
	}
}

// New builds a Manager for projectRoot, populating the undo stack from the
// full transaction history.
func New(projectRoot string) (*Manager, error) {
	log, err := txlog.Load(projectRoot)
	if err != nil {
		return nil, err
	}
	restoration, err := restore.New(projectRoot)
	if err != nil {
		return nil, err
	}

	history, err := log.FullHistory()
	if err != nil {
		return nil, err
	}

	var undoStack []string
	for _, t := range history {
		if reversible(t.Operation) {
			undoStack = append(undoStack, t.ID)
		}
	}

	return &Manager{
		log:         log,
		backups:     backup.New(projectRoot),
		restoration: restoration,
		projectRoot: projectRoot,
		undoStack:   undoStack,
	}, nil
}

// RecordOperation pushes transactionID onto the undo stack and clears the
// redo stack, as every manager must after a fresh mutation is applied.
func (m *Manager) RecordOperation(transactionID string) {
	m.undoStack = append(m.undoStack, transactionID)
	m.redoStack = nil
}

// Undo pops up to steps transactions off the undo stack, reverting each and
// pushing it onto the redo stack.
func (m *Manager) Undo(steps int) ([]Result, error) {
	var results []Result
	n := steps
	if n > len(m.undoStack) {
		n = len(m.undoStack)
	}
	for i := 0; i < n; i++ {
		id := m.undoStack[len(m.undoStack)-1]
		m.undoStack = m.undoStack[:len(m.undoStack)-1]

		result, err := m.undoSingle(id)
		if err != nil {
			return results, err
		}
		m.redoStack = append(m.redoStack, id)
		results = append(results, result)
	}
	return results, nil
}

// Redo pops up to steps transactions off the redo stack, reapplying each
// and pushing it back onto the undo stack.
func (m *Manager) Redo(steps int) ([]Result, error) {
	var results []Result
	n := steps
	if n > len(m.redoStack) {
		n = len(m.redoStack)
	}
	for i := 0; i < n; i++ {
		id := m.redoStack[len(m.redoStack)-1]
		m.redoStack = m.redoStack[:len(m.redoStack)-1]

		result, err := m.redoSingle(id)
		if err != nil {
			return results, err
		}
		m.undoStack = append(m.undoStack, id)
		results = append(results, result)
	}
	return results, nil
}

// State reports the current stack sizes and top entries.
func (m *Manager) State() State {
	s := State{
		UndoAvailable: len(m.undoStack),
		RedoAvailable: len(m.redoStack),
	}
	if len(m.undoStack) > 0 {
		s.LastUndo = m.undoStack[len(m.undoStack)-1]
	}
	if len(m.redoStack) > 0 {
		s.LastRedo = m.redoStack[len(m.redoStack)-1]
	}
	return s
}

// UndoHistory returns up to limit transactions from the undo stack,
// most-recent first. limit <= 0 means "no limit".
func (m *Manager) UndoHistory(limit int) ([]txlog.Transaction, error) {
	return m.stackHistory(m.undoStack, limit)
}

// RedoHistory returns up to limit transactions from the redo stack,
// most-recent first. limit <= 0 means "no limit".
func (m *Manager) RedoHistory(limit int) ([]txlog.Transaction, error) {
	return m.stackHistory(m.redoStack, limit)
}

func (m *Manager) stackHistory(stack []string, limit int) ([]txlog.Transaction, error) {
	if limit <= 0 || limit > len(stack) {
		limit = len(stack)
	}
	var out []txlog.Transaction
	for i := len(stack) - 1; i >= 0 && len(out) < limit; i-- {
		t, err := m.log.Find(stack[i])
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *Manager) undoSingle(transactionID string) (Result, error) {
	txn, err := m.log.Find(transactionID)
	if err != nil {
		return Result{}, err
	}
	if txn == nil {
		return Result{}, fmt.Errorf("transaction not found: %s", transactionID)
	}

	if txn.Operation != txlog.OpSessionStart && txn.Operation != txlog.OpSessionEnd {
		// Back up the content this undo overwrites, so a later redo can find
		// it by txn.AfterHash.
		if data, readErr := os.ReadFile(txn.FilePath); readErr == nil {
			if _, err := m.backups.Snapshot(txn.FilePath, string(data), nil); err != nil {
				return Result{}, err
			}
		}
	}

	switch txn.Operation {
	case txlog.OpSessionStart, txlog.OpSessionEnd:
		return m.sessionMarkerResult(*txn), nil
	case txlog.OpEdit, txlog.OpInsert, txlog.OpDelete, txlog.OpAddProperty,
		txlog.OpAddComponent, txlog.OpMove, txlog.OpRestore:
		return m.revertWithFallback(*txn, txn.BeforeHash, true)
	default:
		return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
			Success: false, Message: "no undo handler for this operation"}, nil
	}
}

func (m *Manager) redoSingle(transactionID string) (Result, error) {
	txn, err := m.log.Find(transactionID)
	if err != nil {
		return Result{}, err
	}
	if txn == nil {
		return Result{}, fmt.Errorf("transaction not found: %s", transactionID)
	}

	switch txn.Operation {
	case txlog.OpSessionStart, txlog.OpSessionEnd:
		return m.sessionMarkerResult(*txn), nil
	case txlog.OpEdit, txlog.OpInsert, txlog.OpDelete, txlog.OpAddProperty,
		txlog.OpAddComponent, txlog.OpMove, txlog.OpRestore:
		return m.revertWithFallback(*txn, txn.AfterHash, false)
	default:
		return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
			Success: false, Message: "no redo handler for this operation"}, nil
	}
}

func (m *Manager) sessionMarkerResult(txn txlog.Transaction) Result {
	return Result{
		TransactionID: txn.ID,
		Operation:     txn.Operation,
		FilePath:      txn.FilePath,
		Success:       true,
		Message:       "Session marker - no action needed",
	}
}

// revertByHash restores txn.FilePath from the backup matching hash, with no
// fallback to a neighbouring transaction.
func (m *Manager) revertByHash(txn txlog.Transaction, hash, successMsg string, isRedo bool) (Result, error) {
	entry, err := m.findBackupByHash(hash, txn.FilePath)
	if err != nil {
		return Result{}, err
	}
	if entry == nil {
		verb := "undo"
		if isRedo {
			verb = "redo"
		}
		return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
			Success: false, Message: fmt.Sprintf("Backup not found for %s operation", verb)}, nil
	}
	if err := m.backups.Restore(entry.Path, txn.FilePath); err != nil {
		return Result{}, err
	}
	return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
		Success: true, Message: successMsg}, nil
}

// revertWithFallback tries to restore by hash first; if no backup matches,
// it falls back to restoring via the neighboring transaction (the previous
// one for undo, the next one for redo).
func (m *Manager) revertWithFallback(txn txlog.Transaction, hash string, wantPrevious bool) (Result, error) {
	entry, err := m.findBackupByHash(hash, txn.FilePath)
	if err != nil {
		return Result{}, err
	}
	if entry != nil {
		if err := m.backups.Restore(entry.Path, txn.FilePath); err != nil {
			return Result{}, err
		}
		verb := "Reverted"
		if !wantPrevious {
			verb = "Re-applied"
		}
		return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
			Success: true, Message: fmt.Sprintf("%s %s: %s", verb, opWord(txn.Operation), txn.Description)}, nil
	}

	var neighbor *txlog.Transaction
	if wantPrevious {
		neighbor, err = m.log.LastBefore(txn.FilePath, txn.Timestamp)
	} else {
		neighbor, err = m.findNextTransaction(txn.FilePath, txn.Timestamp)
	}
	if err != nil {
		return Result{}, err
	}
	if neighbor != nil {
		if _, err := m.restoration.RestoreFileToTransaction(neighbor.ID); err != nil {
			return Result{}, err
		}
		verb := "restoring"
		action := "undo"
		if !wantPrevious {
			action = "redo"
		}
		warnf("no backup for %s hash of transaction %s, falling back to neighboring transaction %s", action, txn.ID, neighbor.ID)
		return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
			Success: true, Message: fmt.Sprintf("%s %s by %s to transaction %s", capitalize(action), opWord(txn.Operation), verb, neighbor.ID)}, nil
	}

	verb := "undo"
	if !wantPrevious {
		verb = "redo"
	}
	return Result{TransactionID: txn.ID, Operation: txn.Operation, FilePath: txn.FilePath,
		Success: false, Message: fmt.Sprintf("%s failed: no suitable backup or previous state found", capitalize(verb))}, nil
}

// findNextTransaction returns the earliest mutating transaction for
// filePath strictly after afterTime, or nil if none exists.
func (m *Manager) findNextTransaction(filePath string, afterTime time.Time) (*txlog.Transaction, error) {
	history, err := m.log.FileHistory(filePath)
	if err != nil {
		return nil, err
	}
	var best *txlog.Transaction
	for i := range history {
		t := history[i]
		if !t.Timestamp.After(afterTime) {
			continue
		}
		switch t.Operation {
		case txlog.OpEdit, txlog.OpInsert, txlog.OpDelete:
		default:
			continue
		}
		if best == nil || t.Timestamp.Before(best.Timestamp) {
			cp := t
			best = &cp
		}
	}
	return best, nil
}

func (m *Manager) findBackupByHash(hash, filePath string) (*backup.Entry, error) {
	if hash == "" {
		return nil, nil
	}
	return m.backups.FindByHashForFile(hash, filePath)
}

func opWord(op txlog.Operation) string {
	switch op {
	case txlog.OpEdit:
		return "edit"
	case txlog.OpInsert:
		return "insert"
	case txlog.OpDelete:
		return "delete"
	case txlog.OpRestore:
		return "restore"
	default:
		return string(op)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
