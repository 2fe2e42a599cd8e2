// Package restore implements the Restoration Engine (SPEC_FULL.md §4.7):
// point-in-time recovery of one file, a set of files, or an entire session,
// driven by the transaction log and the content-addressed backup store.
// Grounded on original_source/src/core/restoration_engine.rs.
package restore

import (
	"fmt"
	"os"
	"time"

	"github.com/oxhq/treeedit/internal/backup"
	"github.com/oxhq/treeedit/internal/engine"
	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/txlog"
)

// Result reports the outcome of a (possibly multi-file) restoration.
type Result struct {
	RestoredFiles []string
	FailedFiles   []FailedFile
	TotalFiles    int
	Success       bool
}

// FailedFile pairs a file that could not be restored with why.
type FailedFile struct {
	File  string
	Error string
}

// SuccessRate returns the fraction of TotalFiles that were restored; 1.0
// when TotalFiles is zero.
func (r Result) SuccessRate() float64 {
	if r.TotalFiles == 0 {
		return 1.0
	}
	return float64(len(r.RestoredFiles)) / float64(r.TotalFiles)
}

// Stats summarizes the backup store and transaction log for reporting.
type Stats struct {
	TotalBackupFiles int
	TotalTransactions int
	FilesWithBackups int
	OldestBackup     *time.Time
	NewestBackup     *time.Time
}

// Engine executes restoration operations for one project.
type Engine struct {
	projectRoot string
	backups     *backup.Store
	log         *txlog.Log
}

// New constructs an Engine rooted at projectRoot, loading (or creating) its
// transaction log.
func New(projectRoot string) (*Engine, error) {
	log, err := txlog.Load(projectRoot)
	if err != nil {
		return nil, err
	}
	return &Engine{
		projectRoot: projectRoot,
		backups:     backup.New(projectRoot),
		log:         log,
	}, nil
}

// RestoreFileToTransaction restores the file touched by transactionID to
// the source captured as that transaction's after_hash.
func (e *Engine) RestoreFileToTransaction(transactionID string) (string, error) {
	txn, err := e.log.Find(transactionID)
	if err != nil {
		return "", err
	}
	if txn == nil {
		return "", fmt.Errorf("transaction not found: %s", transactionID)
	}
	if txn.AfterHash == "" {
		return "", fmt.Errorf("transaction has no after_hash: %s", transactionID)
	}

	entry, err := e.backups.FindByHash(txn.AfterHash)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("backup not found for hash: %s", txn.AfterHash)
	}

	if err := e.backups.Restore(entry.Path, txn.FilePath); err != nil {
		return "", err
	}
	return txn.FilePath, nil
}

// RestoreFileBefore restores filePath to the state recorded by the last
// mutating transaction strictly before beforeTime.
func (e *Engine) RestoreFileBefore(filePath string, beforeTime time.Time) (string, error) {
	txn, err := e.log.LastBefore(filePath, beforeTime)
	if err != nil {
		return "", err
	}
	if txn == nil {
		return "", fmt.Errorf("no transaction found for file %s before %s", filePath, beforeTime.Format(time.RFC3339))
	}
	return e.RestoreFileToTransaction(txn.ID)
}

// RestoreFilesBefore restores each of files to its state before beforeTime,
// continuing past individual failures and reporting them in the Result.
func (e *Engine) RestoreFilesBefore(files []string, beforeTime time.Time) (Result, error) {
	var restored []string
	var failed []FailedFile

	for _, f := range files {
		path, err := e.RestoreFileBefore(f, beforeTime)
		if err != nil {
			failed = append(failed, FailedFile{File: f, Error: err.Error()})
			continue
		}
		restored = append(restored, path)
	}

	return Result{
		RestoredFiles: restored,
		FailedFiles:   failed,
		TotalFiles:    len(files),
		Success:       len(failed) == 0,
	}, nil
}

// PlanProjectRestore builds, without executing, the set of per-file
// restoration targets that RestoreProjectTo would apply: for every file
// touched since restoreTo, the last transaction before that time and how
// many mutating transactions on that file have happened since (§4.7).
func (e *Engine) PlanProjectRestore(restoreTo time.Time) ([]model.FileRestorationPlan, error) {
	affected, err := e.log.AffectedFilesSince(restoreTo)
	if err != nil {
		return nil, err
	}

	plan := make([]model.FileRestorationPlan, 0, len(affected))
	for _, f := range affected {
		txn, err := e.log.LastBefore(f, restoreTo)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			continue
		}
		count, err := e.log.CountModificationsSince(f, restoreTo)
		if err != nil {
			return nil, err
		}
		plan = append(plan, model.FileRestorationPlan{
			File:                 f,
			TargetTransactionID:  txn.ID,
			ModsSinceTargetCount: count,
		})
	}
	return plan, nil
}

// ExecutePlan runs RestoreFileToTransaction for every entry in plan,
// reporting per-file success/failure without aborting on individual
// failures.
func (e *Engine) ExecutePlan(plan []model.FileRestorationPlan) (Result, error) {
	var restored []string
	var failed []FailedFile
	for _, p := range plan {
		path, err := e.RestoreFileToTransaction(p.TargetTransactionID)
		if err != nil {
			failed = append(failed, FailedFile{File: p.File, Error: err.Error()})
			continue
		}
		restored = append(restored, path)
	}
	return Result{
		RestoredFiles: restored,
		FailedFiles:   failed,
		TotalFiles:    len(plan),
		Success:       len(failed) == 0,
	}, nil
}

// RestoreProjectTo builds and executes a restoration plan bringing every
// file touched since restoreTo back to its state at that time.
func (e *Engine) RestoreProjectTo(restoreTo time.Time) (Result, error) {
	affected, err := e.log.AffectedFilesSince(restoreTo)
	if err != nil {
		return Result{}, err
	}
	plan, err := e.PlanProjectRestore(restoreTo)
	if err != nil {
		return Result{}, err
	}

	result, err := e.ExecutePlan(plan)
	if err != nil {
		return Result{}, err
	}
	// A file that was touched since restoreTo but has no transaction
	// strictly before it (e.g. created after restoreTo) cannot be planned;
	// count it as a failure rather than silently dropping it from totals.
	if len(plan) < len(affected) {
		planned := make(map[string]struct{}, len(plan))
		for _, p := range plan {
			planned[p.File] = struct{}{}
		}
		for _, f := range affected {
			if _, ok := planned[f]; !ok {
				result.FailedFiles = append(result.FailedFiles, FailedFile{File: f, Error: "no transaction found before target time"})
			}
		}
	}
	result.TotalFiles = len(affected)
	result.Success = len(result.FailedFiles) == 0
	return result, nil
}

// PreviewFileToTransaction renders the diff RestoreFileToTransaction would
// produce for transactionID, without writing anything to disk.
func (e *Engine) PreviewFileToTransaction(transactionID string) (model.FileDiff, error) {
	txn, err := e.log.Find(transactionID)
	if err != nil {
		return model.FileDiff{}, err
	}
	if txn == nil {
		return model.FileDiff{}, fmt.Errorf("transaction not found: %s", transactionID)
	}
	if txn.AfterHash == "" {
		return model.FileDiff{}, fmt.Errorf("transaction has no after_hash: %s", transactionID)
	}

	entry, err := e.backups.FindByHash(txn.AfterHash)
	if err != nil {
		return model.FileDiff{}, err
	}
	if entry == nil {
		return model.FileDiff{}, fmt.Errorf("backup not found for hash: %s", txn.AfterHash)
	}

	current, err := os.ReadFile(txn.FilePath)
	if err != nil {
		return model.FileDiff{}, fmt.Errorf("read %s: %w", txn.FilePath, err)
	}

	return model.FileDiff{
		File:   txn.FilePath,
		Before: string(current),
		After:  entry.SourceCode,
		Diff:   engine.Diff(string(current), entry.SourceCode),
	}, nil
}

// RestoreSession restores every file touched in sessionID to its state
// just before that session started.
func (e *Engine) RestoreSession(sessionID string) (Result, error) {
	files, err := e.log.SessionFiles(sessionID)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{Success: true}, nil
	}

	full, err := e.log.FullHistory()
	if err != nil {
		return Result{}, err
	}
	var start time.Time
	found := false
	for _, t := range full {
		if t.SessionID != sessionID {
			continue
		}
		if !found || t.Timestamp.Before(start) {
			start = t.Timestamp
			found = true
		}
	}
	if !found {
		return Result{}, fmt.Errorf("session has no transactions: %s", sessionID)
	}

	return e.RestoreFilesBefore(files, start)
}

// Stats reports backup-store and transaction-log sizes for status/CLI
// reporting.
func (e *Engine) Stats() (Stats, error) {
	entries, err := e.backups.List()
	if err != nil {
		return Stats{}, err
	}
	history, err := e.log.FullHistory()
	if err != nil {
		return Stats{}, err
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.FilePath] = struct{}{}
	}

	stats := Stats{
		TotalBackupFiles:  len(entries),
		TotalTransactions: len(history),
		FilesWithBackups:  len(seen),
	}
	if len(entries) > 0 {
		newest := entries[0].Timestamp
		oldest := entries[len(entries)-1].Timestamp
		stats.NewestBackup = &newest
		stats.OldestBackup = &oldest
	}
	return stats, nil
}
