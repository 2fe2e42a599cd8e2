// Package batch implements the Batch Applicator (SPEC_FULL.md §4.8): a
// two-phase runner that groups a list of EditOperations by file, validates
// every operation against an in-memory re-parse before any write touches
// disk, and only then applies all file writes atomically, rolling back
// already-written files from backups if a later write fails. Grounded on
// original_source/src/core/batch.rs.
package batch

import (
	"fmt"
	"os"

	"github.com/oxhq/treeedit/internal/backup"
	"github.com/oxhq/treeedit/internal/engine"
	"github.com/oxhq/treeedit/internal/hashutil"
	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/txlog"
)

// Applicator runs batches of operations against a project.
type Applicator struct {
	engine  *engine.Engine
	backups *backup.Store
	log     *txlog.Log
}

// New constructs an Applicator sharing the given engine, backup store, and
// transaction log with the rest of the workspace.
func New(eng *engine.Engine, backups *backup.Store, log *txlog.Log) *Applicator {
	return &Applicator{engine: eng, backups: backups, log: log}
}

// Preview groups batch.Operations by file (preserving first-seen order) and
// applies each file's operations sequentially in memory, re-parsing after
// every step so a later operation in the same batch sees prior edits and so
// any operation that would leave the file syntactically invalid aborts the
// whole batch before anything is written.
func (a *Applicator) Preview(batch model.Batch) ([]model.FileDiff, error) {
	order := make([]string, 0)
	grouped := make(map[string][]model.EditOperation)
	for _, op := range batch.Operations {
		if _, ok := grouped[op.File]; !ok {
			order = append(order, op.File)
		}
		grouped[op.File] = append(grouped[op.File], op.EditOperation)
	}

	diffs := make([]model.FileDiff, 0, len(order))
	for _, file := range order {
		original, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s for batch preview: %w", file, err)
		}
		source := string(original)
		current := source

		for _, op := range grouped[file] {
			modified, err := a.engine.Preview(file, current, op)
			if err != nil {
				return nil, fmt.Errorf("preview failed for %s, op %s: %w", file, op.Describe(), err)
			}
			if err := a.engine.ValidateResult(file, modified); err != nil {
				return nil, &model.ValidationFailedError{File: file, OpDesc: op.Describe(), Reason: err.Error()}
			}
			current = modified
		}

		diffs = append(diffs, model.FileDiff{
			File:   file,
			Before: source,
			After:  current,
			Diff:   engine.Diff(source, current),
		})
	}

	return diffs, nil
}

// writtenFile records a file written during an Apply call, so it can be
// rolled back to its pre-batch content if a later write in the same batch
// fails.
type writtenFile struct {
	file   string
	before string
}

// Apply runs Preview, then writes every changed file, snapshotting each
// before the write. If any write fails, every file already written in this
// call is rolled back to its pre-batch content via the snapshot taken
// moments earlier, nothing is logged, and the whole apply fails with a
// model.BatchAbortedError. Once every write has succeeded, one Edit
// transaction is logged per changed file.
func (a *Applicator) Apply(batch model.Batch) ([]model.FileDiff, error) {
	diffs, err := a.Preview(batch)
	if err != nil {
		return nil, err
	}

	var written []writtenFile

	description := batch.Description
	if description == "" {
		description = fmt.Sprintf("%d operations", len(batch.Operations))
	}

	for _, fd := range diffs {
		if fd.Before == fd.After {
			continue
		}

		if _, err := a.backups.Snapshot(fd.File, fd.Before, nil); err != nil {
			return nil, fmt.Errorf("backup %s before batch apply: %w", fd.File, err)
		}

		if err := os.WriteFile(fd.File, []byte(fd.After), 0o644); err != nil {
			a.rollback(written)
			return nil, &model.BatchAbortedError{
				Reason:     fmt.Sprintf("failed to write %s", fd.File),
				Restored:   restoredFiles(written),
				Underlying: err,
			}
		}

		written = append(written, writtenFile{file: fd.File, before: fd.Before})
	}

	for _, fd := range diffs {
		if fd.Before == fd.After {
			continue
		}
		beforeHash := hashutil.ContentHash(fd.Before)
		afterHash := hashutil.ContentHash(fd.After)
		if _, err := a.log.Log(txlog.OpEdit, fd.File, "", beforeHash, afterHash,
			fmt.Sprintf("Batch apply: %s", description), nil); err != nil {
			return nil, fmt.Errorf("log batch transaction for %s: %w", fd.File, err)
		}
	}

	return diffs, nil
}

// rollback restores every already-written file to its pre-batch content.
// Failures here are best-effort, matching the original's tolerant rollback:
// a file that can't be restored is left as-is rather than aborting the
// rollback of the rest.
func (a *Applicator) rollback(written []writtenFile) {
	for _, w := range written {
		_ = os.WriteFile(w.file, []byte(w.before), 0o644)
	}
}

func restoredFiles(written []writtenFile) []string {
	out := make([]string, len(written))
	for i, w := range written {
		out[i] = w.file
	}
	return out
}
