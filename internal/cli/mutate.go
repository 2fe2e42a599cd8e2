package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/workspace"
)

func newEditCmd(open openFunc, out func() *outputter) *cobra.Command {
	var fromStdin, preview bool

	cmd := &cobra.Command{
		Use:   "edit <file> <node> <content>",
		Short: "Replace a node's content",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := resolvePositionalContent(args, 2, fromStdin)
			if err != nil {
				return err
			}
			ws, err := open()
			if err != nil {
				return err
			}
			op := model.EditOperation{Op: model.OpEdit, NodePath: args[1], Content: text}
			return applyOrPreview(ws, args[0], op, preview, out())
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read replacement content from stdin instead of the <content> argument")
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the diff without writing")
	return cmd
}

func newInsertCmd(open openFunc, out func() *outputter) *cobra.Command {
	var fromStdin, preview bool

	cmd := &cobra.Command{
		Use:   "insert <file> <parent> <position> <content>",
		Short: "Insert content relative to a parent node",
		Long:  "<position> is 0 (before the parent node), 1 (after it), or 2 (inside it, just before its closing delimiter); the names before/after/inside are also accepted.",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[2])
			if err != nil {
				return err
			}
			text, err := resolvePositionalContent(args, 3, fromStdin)
			if err != nil {
				return err
			}
			ws, err := open()
			if err != nil {
				return err
			}
			op := model.EditOperation{Op: model.OpInsert, ParentPath: args[1], Position: pos, Content: text}
			return applyOrPreview(ws, args[0], op, preview, out())
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read content to insert from stdin instead of the <content> argument")
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the diff without writing")
	return cmd
}

func newDeleteCmd(open openFunc, out func() *outputter) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "delete <file> <node-path>",
		Short: "Delete a node's lines from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			op := model.EditOperation{Op: model.OpDelete, NodePath: args[1]}
			return applyOrPreview(ws, args[0], op, preview, out())
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the diff without writing")
	return cmd
}

func newBatchCmd(open openFunc, out func() *outputter) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Apply a Batch Applicator plan loaded from a JSON file",
		Long:  "Reads a JSON document shaped like {\"description\": \"...\", \"operations\": [{\"file\": \"...\", \"op\": \"edit|insert|delete\", ...}]} and applies it as one all-or-nothing batch, validating every operation in preview before writing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}

			ws, err := open()
			if err != nil {
				return err
			}

			var diffs []model.FileDiff
			if preview {
				diffs, err = ws.BatchPreview(batch)
			} else {
				diffs, err = ws.Batch(batch)
			}
			if err != nil {
				return err
			}
			out().render(diffs, func(v any) string { return renderDiffs(v.([]model.FileDiff)) })
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show diffs without writing")
	return cmd
}

// loadBatchFile decodes a Batch Applicator plan from a JSON file, per
// SPEC_FULL.md §6.3's "batch <file.json> [--preview]" command.
func loadBatchFile(path string) (model.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Batch{}, fmt.Errorf("read batch file %q: %w", path, err)
	}
	var batch model.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return model.Batch{}, fmt.Errorf("parse batch file %q: %w", path, err)
	}
	if len(batch.Operations) == 0 {
		return model.Batch{}, fmt.Errorf("batch file %q has no operations", path)
	}
	return batch, nil
}

// newBatchGlobCmd offers a glob-driven convenience over the same Batch
// Applicator: delete one node path across every file a set of doublestar
// patterns match, without hand-writing a JSON plan.
func newBatchGlobCmd(open openFunc, out func() *outputter) *cobra.Command {
	var description string
	var preview bool

	cmd := &cobra.Command{
		Use:   "batch-glob <delete-node-path> <glob>...",
		Short: "Delete the same node path across every file matching the given glob patterns",
		Long:  "Expands each glob argument with doublestar (supporting ** recursive matching) and deletes <node-path> from every matched file as one all-or-nothing batch.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodePath := args[0]
			var matched []string
			for _, pattern := range args[1:] {
				hits, err := doublestar.FilepathGlob(pattern)
				if err != nil {
					return fmt.Errorf("expand glob %q: %w", pattern, err)
				}
				matched = append(matched, hits...)
			}
			if len(matched) == 0 {
				return fmt.Errorf("no files matched the given glob patterns")
			}

			batch := model.Batch{Description: description}
			for _, f := range matched {
				batch.Operations = append(batch.Operations, model.BatchOp{
					File:          f,
					EditOperation: model.EditOperation{Op: model.OpDelete, NodePath: nodePath},
				})
			}

			ws, err := open()
			if err != nil {
				return err
			}

			var diffs []model.FileDiff
			if preview {
				diffs, err = ws.BatchPreview(batch)
			} else {
				diffs, err = ws.Batch(batch)
			}
			if err != nil {
				return err
			}
			out().render(diffs, func(v any) string { return renderDiffs(v.([]model.FileDiff)) })
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Human-readable batch description recorded in the transaction log")
	cmd.Flags().BoolVar(&preview, "preview", false, "Show diffs without writing")
	return cmd
}

// resolvePositionalContent returns the content text for a mutating command
// whose grammar is "<file> <node>... <content>" (SPEC_FULL.md §6.3): when
// fromStdin is set it reads from stdin regardless of whether the positional
// <content> argument was supplied; otherwise it requires args[idx].
func resolvePositionalContent(args []string, idx int, fromStdin bool) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	if idx >= len(args) {
		return "", fmt.Errorf("missing <content> argument (or pass --stdin)")
	}
	return args[idx], nil
}

func parsePosition(s string) (model.InsertPosition, error) {
	switch s {
	case "before":
		return model.PositionBefore, nil
	case "after":
		return model.PositionAfter, nil
	case "inside":
		return model.PositionInside, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		pos := model.InsertPosition(n)
		if model.ValidPosition(pos) {
			return pos, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", model.ErrInvalidPosition, s)
}

func applyOrPreview(ws *workspace.Workspace, file string, op model.EditOperation, preview bool, out *outputter) error {
	if preview {
		diff, err := ws.Preview(file, op)
		if err != nil {
			return err
		}
		out.render(diff, func(v any) string { return renderDiff(v.(model.FileDiff)) })
		return nil
	}

	result, err := ws.Apply(file, op)
	if err != nil {
		return err
	}
	out.render(result, func(v any) string {
		r := v.(workspace.ApplyResult)
		return fmt.Sprintf("%s\ntransaction: %s", r.Diff.Diff, r.TransactionID)
	})
	return nil
}

func renderDiff(d model.FileDiff) string {
	return fmt.Sprintf("--- %s\n%s", d.File, d.Diff)
}

func renderDiffs(diffs []model.FileDiff) string {
	out := ""
	for _, d := range diffs {
		out += renderDiff(d) + "\n"
	}
	return out
}
