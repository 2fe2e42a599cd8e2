package cli

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/restore"
)

func newRestoreCmd(open openFunc, out func() *outputter) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "restore <file> <transaction-id>",
		Short: "Restore a file to the state captured by a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			if preview {
				diff, err := ws.PreviewRestoreToTransaction(args[1])
				if err != nil {
					return err
				}
				out().render(diff, func(v any) string { return renderDiff(v.(model.FileDiff)) })
				return nil
			}
			file, err := ws.RestoreToTransaction(args[1])
			if err != nil {
				return err
			}
			out().render(map[string]string{"restored": file}, func(v any) string {
				return fmt.Sprintf("restored %s", v.(map[string]string)["restored"])
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the diff without writing")
	return cmd
}

func newRestoreProjectCmd(open openFunc, out func() *outputter) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "restore-project <timestamp>",
		Short: "Restore every touched file to its state at a given time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTimestamp(args[0])
			if err != nil {
				return err
			}
			ws, err := open()
			if err != nil {
				return err
			}
			if preview {
				plan, err := ws.PlanProjectRestore(target)
				if err != nil {
					return err
				}
				out().render(plan, func(v any) string { return renderPlan(v.([]model.FileRestorationPlan)) })
				return nil
			}
			result, err := ws.RestoreProjectTo(target)
			if err != nil {
				return err
			}
			out().render(result, func(v any) string { return renderRestoreResult(v.(restore.Result)) })
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the restoration plan without writing")
	return cmd
}

func newRestoreFilesCmd(open openFunc, out func() *outputter) *cobra.Command {
	var since string
	var files []string
	var preview bool
	cmd := &cobra.Command{
		Use:   "restore-files",
		Short: "Restore files (explicit list or every file touched since a time) to their state before it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTimestamp(since)
			if err != nil {
				return err
			}

			ws, err := open()
			if err != nil {
				return err
			}

			matched := files
			if len(matched) == 0 {
				matched, err = ws.AffectedFilesSince(target)
				if err != nil {
					return err
				}
			} else {
				var expanded []string
				for _, pattern := range matched {
					hits, err := doublestar.FilepathGlob(pattern)
					if err != nil {
						return fmt.Errorf("expand glob %q: %w", pattern, err)
					}
					expanded = append(expanded, hits...)
				}
				matched = expanded
			}
			if len(matched) == 0 {
				return fmt.Errorf("no files to restore")
			}

			if preview {
				var diffs []model.FileDiff
				for _, f := range matched {
					txn, err := ws.LastTransactionBefore(f, target)
					if err != nil || txn == nil {
						continue
					}
					diff, err := ws.PreviewRestoreToTransaction(txn.ID)
					if err != nil {
						continue
					}
					diffs = append(diffs, diff)
				}
				out().render(diffs, func(v any) string { return renderDiffs(v.([]model.FileDiff)) })
				return nil
			}

			var failed []restore.FailedFile
			var restored []string
			for _, f := range matched {
				path, err := ws.RestoreFileBefore(f, target)
				if err != nil {
					failed = append(failed, restore.FailedFile{File: f, Error: err.Error()})
					continue
				}
				restored = append(restored, path)
			}
			result := restore.Result{
				RestoredFiles: restored,
				FailedFiles:   failed,
				TotalFiles:    len(matched),
				Success:       len(failed) == 0,
			}
			out().render(result, func(v any) string { return renderRestoreResult(v.(restore.Result)) })
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Restore files to their state before this time (required)")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Glob patterns selecting which files to restore (default: every file touched since --since)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Show diffs without writing")
	cmd.MarkFlagRequired("since")
	return cmd
}

func newRestoreSessionCmd(open openFunc, out func() *outputter) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "restore-session <session-id>",
		Short: "Restore every file touched in a session to its pre-session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			if preview {
				diffs, err := ws.PreviewRestoreSession(args[0])
				if err != nil {
					return err
				}
				out().render(diffs, func(v any) string { return renderDiffs(v.([]model.FileDiff)) })
				return nil
			}
			result, err := ws.RestoreSession(args[0])
			if err != nil {
				return err
			}
			out().render(result, func(v any) string { return renderRestoreResult(v.(restore.Result)) })
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show diffs without writing")
	return cmd
}

// newIndexCmd is the parent "index" command; "index rebuild" truncates and
// repopulates the Transaction Index from the NDJSON log (SPEC_FULL.md §4.11,
// §6.3).
func newIndexCmd(open openFunc, out func() *outputter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the derived transaction index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Truncate and repopulate the transaction index from the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			if err := ws.RebuildIndex(); err != nil {
				return err
			}
			fmt.Println("transaction index rebuilt")
			return nil
		},
	})
	return cmd
}

// timeLayouts are the timestamp formats the CLI accepts, per SPEC_FULL.md
// §6.3: RFC 3339 and a bare "YYYY-MM-DD HH:MM:SS" (interpreted as UTC).
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("a timestamp is required")
	}
	var lastErr error
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC3339 or \"YYYY-MM-DD HH:MM:SS\"): %w", s, lastErr)
}

func renderRestoreResult(r restore.Result) string {
	msg := fmt.Sprintf("restored %d/%d files", len(r.RestoredFiles), r.TotalFiles)
	for _, f := range r.FailedFiles {
		msg += fmt.Sprintf("\n  failed: %s (%s)", f.File, f.Error)
	}
	return msg
}

func renderPlan(plan []model.FileRestorationPlan) string {
	out := ""
	for _, p := range plan {
		out += fmt.Sprintf("%s -> %s (%d mods since target)\n", p.File, p.TargetTransactionID, p.ModsSinceTargetCount)
	}
	return out
}
