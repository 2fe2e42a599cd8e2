// Package workspace wires together the parser registry, Edit Engine,
// Backup Store, Transaction Log, Undo/Redo Manager, Restoration Engine,
// Batch Applicator, and Transaction Index into the single per-project
// collaborator that both the CLI and the RPC server drive. It also owns
// the per-project mutex serializing mutating operations (SPEC_FULL.md §5).
package workspace

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oxhq/treeedit/internal/backup"
	"github.com/oxhq/treeedit/internal/batch"
	"github.com/oxhq/treeedit/internal/engine"
	"github.com/oxhq/treeedit/internal/hashutil"
	"github.com/oxhq/treeedit/internal/index"
	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/parser"
	"github.com/oxhq/treeedit/internal/parser/generic"
	"github.com/oxhq/treeedit/internal/parser/golang"
	"github.com/oxhq/treeedit/internal/restore"
	"github.com/oxhq/treeedit/internal/txlog"
	"github.com/oxhq/treeedit/internal/undoredo"
)

// warnf reports a non-fatal recoverable condition to stderr, matching the
// "[tag] message" idiom used elsewhere in the module (internal/txlog's
// warnf, internal/rpc's debugLog).
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[workspace] "+format+"\n", args...)
}

// Workspace is the single collaborator each project-rooted operation goes
// through. It is safe for concurrent use: mutating operations take mu,
// matching the spec's one-writer-per-project model.
type Workspace struct {
	Root string

	mu sync.Mutex

	registry    *parser.Registry
	engine      *engine.Engine
	backups     *backup.Store
	log         *txlog.Log
	undoredo    *undoredo.Manager
	restoration *restore.Engine
	batch       *batch.Applicator
	index       *index.Index
}

// Open loads (or creates) every piece of project state rooted at root. The
// index is optional: if indexDSN is empty, no index is opened and
// RebuildIndex has nothing to rebuild. History and status queries read the
// transaction log directly either way.
func Open(root, indexDSN string) (*Workspace, error) {
	registry := parser.NewRegistry(generic.New())
	registry.Register(golang.New())

	log, err := txlog.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load transaction log: %w", err)
	}

	undoredoMgr, err := undoredo.New(root)
	if err != nil {
		return nil, fmt.Errorf("build undo/redo manager: %w", err)
	}

	restoration, err := restore.New(root)
	if err != nil {
		return nil, fmt.Errorf("build restoration engine: %w", err)
	}

	eng := engine.New(registry)
	backups := backup.New(root)
	batchApp := batch.New(eng, backups, log)

	var idx *index.Index
	if indexDSN != "" {
		idx, err = index.Open(indexDSN)
		if err != nil {
			return nil, fmt.Errorf("open transaction index: %w", err)
		}
	}

	return &Workspace{
		Root:        root,
		registry:    registry,
		engine:      eng,
		backups:     backups,
		log:         log,
		undoredo:    undoredoMgr,
		restoration: restoration,
		batch:       batchApp,
		index:       idx,
	}, nil
}

// Analyze parses filePath and returns its full node tree.
func (w *Workspace) Analyze(filePath string) (*model.Tree, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	return w.registry.Parse(filePath, string(source))
}

// ListNodesOptions narrows and bounds a ListNodes call, mirroring the
// "list_nodes" RPC tool's optional arguments (SPEC_FULL.md §4.9).
type ListNodesOptions struct {
	FilterType string // only nodes whose NodeType equals this are returned
	MaxDepth   int    // 0 means unbounded
	IncludeAll bool   // when false, purely structural punctuation nodes are dropped
}

// ListNodes returns every node in filePath's tree, flattened in DFS order,
// filtering out purely structural punctuation (node types made up entirely
// of non-identifier characters, e.g. tree-sitter's "{", "}", ";") unless
// opts.IncludeAll is set.
func (w *Workspace) ListNodes(filePath string, opts ListNodesOptions) ([]*model.Node, error) {
	tree, err := w.Analyze(filePath)
	if err != nil {
		return nil, err
	}
	var out []*model.Node
	var walk func(n *model.Node, depth int)
	walk = func(n *model.Node, depth int) {
		if n == nil {
			return
		}
		if opts.MaxDepth <= 0 || depth <= opts.MaxDepth {
			if opts.IncludeAll || !isStructuralPunctuation(n.NodeType) {
				if opts.FilterType == "" || n.NodeType == opts.FilterType {
					out = append(out, n)
				}
			}
		}
		if opts.MaxDepth <= 0 || depth < opts.MaxDepth {
			for _, c := range n.Children {
				walk(c, depth+1)
			}
		}
	}
	walk(tree.Root, 0)
	return out, nil
}

// isStructuralPunctuation reports whether nodeType names a grammar token
// made up entirely of punctuation (tree-sitter anonymous nodes like "{",
// "}", ";", "," are their own literal node type), as opposed to a named
// grammar rule such as "function_declaration".
func isStructuralPunctuation(nodeType string) bool {
	if nodeType == "" {
		return false
	}
	for _, r := range nodeType {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// SearchNodes returns every node in filePath's tree whose Content or
// NodeType contains pattern as a substring, sorted by path-specificity
// (deepest, i.e. longest path, first) per SPEC_FULL.md §4.9.
func (w *Workspace) SearchNodes(filePath, pattern string) ([]*model.Node, error) {
	nodes, err := w.ListNodes(filePath, ListNodesOptions{IncludeAll: true})
	if err != nil {
		return nil, err
	}
	var out []*model.Node
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Content), strings.ToLower(pattern)) ||
			strings.Contains(strings.ToLower(n.NodeType), strings.ToLower(pattern)) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return pathSpecificity(out[i].Path) > pathSpecificity(out[j].Path)
	})
	return out, nil
}

// pathSpecificity approximates how deep/specific a node path is by its
// number of dotted segments, so search results surface the most specific
// (deepest) matches first.
func pathSpecificity(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// ReadNode resolves nodePath against filePath's tree.
func (w *Workspace) ReadNode(filePath, nodePath string) (*model.Node, error) {
	tree, err := w.Analyze(filePath)
	if err != nil {
		return nil, err
	}
	node := tree.Find(nodePath)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNodeNotFound, nodePath)
	}
	return node, nil
}

// ApplyResult is returned by every mutating operation: the rendered diff
// plus the transaction id it was logged under.
type ApplyResult struct {
	Diff          model.FileDiff
	TransactionID string
}

// Apply previews op against filePath, validates the result still parses,
// then snapshots, writes, and logs it as one transaction, recording it with
// the undo/redo manager.
func (w *Workspace) Apply(filePath string, op model.EditOperation) (ApplyResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	source, err := os.ReadFile(filePath)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	before := string(source)

	after, err := w.engine.Preview(filePath, before, op)
	if err != nil {
		return ApplyResult{}, err
	}
	if err := w.engine.ValidateResult(filePath, after); err != nil {
		return ApplyResult{}, fmt.Errorf("%s no longer parses after %s: %w", filePath, op.Describe(), err)
	}

	if _, err := w.backups.Snapshot(filePath, before, nil); err != nil {
		return ApplyResult{}, fmt.Errorf("snapshot %s: %w", filePath, err)
	}
	if err := os.WriteFile(filePath, []byte(after), 0o644); err != nil {
		return ApplyResult{}, fmt.Errorf("write %s: %w", filePath, err)
	}

	beforeHash := hashutil.ContentHash(before)
	afterHash := hashutil.ContentHash(after)
	nodePath := op.NodePath
	if nodePath == "" {
		nodePath = op.ParentPath
	}

	txnID, err := w.log.Log(txlog.Operation(op.Op), filePath, nodePath, beforeHash, afterHash, op.Describe(), nil)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("log transaction: %w", err)
	}
	w.undoredo.RecordOperation(txnID)

	if w.index != nil {
		txn, findErr := w.log.Find(txnID)
		if findErr == nil && txn != nil {
			if err := w.index.Record(*txn); err != nil {
				warnf("index write failed for transaction %s: %v", txnID, err)
			}
		}
	}

	return ApplyResult{
		Diff: model.FileDiff{
			File:   filePath,
			Before: before,
			After:  after,
			Diff:   engine.Diff(before, after),
		},
		TransactionID: txnID,
	}, nil
}

// Preview runs op against filePath without writing anything to disk.
func (w *Workspace) Preview(filePath string, op model.EditOperation) (model.FileDiff, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return model.FileDiff{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	return w.engine.PreviewDiff(filePath, string(source), op)
}

// Batch runs a multi-file batch through the Batch Applicator.
func (w *Workspace) Batch(b model.Batch) ([]model.FileDiff, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batch.Apply(b)
}

// BatchPreview previews a multi-file batch without writing anything.
func (w *Workspace) BatchPreview(b model.Batch) ([]model.FileDiff, error) {
	return w.batch.Preview(b)
}

// Undo reverts the last n operations.
func (w *Workspace) Undo(n int) ([]undoredo.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.undoredo.Undo(n)
}

// Redo reapplies the last n undone operations.
func (w *Workspace) Redo(n int) ([]undoredo.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.undoredo.Redo(n)
}

// History returns every transaction recorded for filePath ("" for the
// whole project).
func (w *Workspace) History(filePath string) ([]txlog.Transaction, error) {
	if filePath == "" {
		return w.log.FullHistory()
	}
	return w.log.FileHistory(filePath)
}

// Status reports the undo/redo state and restoration statistics.
type Status struct {
	UndoRedo undoredo.State
	Restore  restore.Stats
	Session  string
}

func (w *Workspace) Status() (Status, error) {
	stats, err := w.restoration.Stats()
	if err != nil {
		return Status{}, err
	}
	return Status{
		UndoRedo: w.undoredo.State(),
		Restore:  stats,
		Session:  w.log.SessionID(),
	}, nil
}

// StartSession closes out the current session and opens a new one.
func (w *Workspace) StartSession() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.log.StartNewSession()
}

// RestoreToTransaction restores the file touched by transactionID.
func (w *Workspace) RestoreToTransaction(transactionID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restoration.RestoreFileToTransaction(transactionID)
}

// PreviewRestoreToTransaction renders the diff RestoreToTransaction would
// produce without writing anything to disk.
func (w *Workspace) PreviewRestoreToTransaction(transactionID string) (model.FileDiff, error) {
	return w.restoration.PreviewFileToTransaction(transactionID)
}

// PlanProjectRestore builds the per-file restoration plan RestoreProjectTo
// would execute, without writing anything to disk.
func (w *Workspace) PlanProjectRestore(at time.Time) ([]model.FileRestorationPlan, error) {
	return w.restoration.PlanProjectRestore(at)
}

// AffectedFilesSince returns the distinct files touched by a mutating
// operation since the given time.
func (w *Workspace) AffectedFilesSince(since time.Time) ([]string, error) {
	return w.log.AffectedFilesSince(since)
}

// LastTransactionBefore returns the most recent mutating transaction for
// filePath strictly before the given time, or nil if none exists.
func (w *Workspace) LastTransactionBefore(filePath string, before time.Time) (*txlog.Transaction, error) {
	return w.log.LastBefore(filePath, before)
}

// PreviewRestoreSession renders the diffs RestoreSession would produce for
// every file touched in sessionID, without writing anything to disk.
func (w *Workspace) PreviewRestoreSession(sessionID string) ([]model.FileDiff, error) {
	files, err := w.log.SessionFiles(sessionID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	full, err := w.log.FullHistory()
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("session has no transactions: %s", sessionID)
	}

	var diffs []model.FileDiff
	for _, f := range files {
		txn, err := w.log.LastBefore(f, start)
		if err != nil || txn == nil {
			continue
		}
		diff, err := w.restoration.PreviewFileToTransaction(txn.ID)
		if err != nil {
			continue
		}
		diffs = append(diffs, diff)
	}
	return diffs, nil
}

// RestoreFileBefore restores filePath to its state before the given time.
func (w *Workspace) RestoreFileBefore(filePath string, before time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restoration.RestoreFileBefore(filePath, before)
}

// RestoreProjectTo restores every touched file to its state at the given time.
func (w *Workspace) RestoreProjectTo(at time.Time) (restore.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restoration.RestoreProjectTo(at)
}

// RestoreSession restores every file touched by sessionID to its
// pre-session state.
func (w *Workspace) RestoreSession(sessionID string) (restore.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restoration.RestoreSession(sessionID)
}

// RebuildIndex truncates and repopulates the Transaction Index from the
// full transaction log.
func (w *Workspace) RebuildIndex() error {
	if w.index == nil {
		return fmt.Errorf("no transaction index configured")
	}
	full, err := w.log.FullHistory()
	if err != nil {
		return err
	}
	return w.index.Rebuild(full)
}
