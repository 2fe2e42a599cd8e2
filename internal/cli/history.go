package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/txlog"
	"github.com/oxhq/treeedit/internal/undoredo"
	"github.com/oxhq/treeedit/internal/workspace"
)

func newUndoCmd(open openFunc, out func() *outputter) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert the last N operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			results, err := ws.Undo(steps)
			if err != nil {
				return err
			}
			out().render(results, func(v any) string { return renderResults(v.([]undoredo.Result)) })
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of operations to undo")
	return cmd
}

func newRedoCmd(open openFunc, out func() *outputter) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "redo",
		Short: "Reapply the last N undone operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			results, err := ws.Redo(steps)
			if err != nil {
				return err
			}
			out().render(results, func(v any) string { return renderResults(v.([]undoredo.Result)) })
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of operations to redo")
	return cmd
}

func newHistoryCmd(open openFunc, out func() *outputter) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recorded transactions, for one file or the whole project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			ws, err := open()
			if err != nil {
				return err
			}
			txns, err := ws.History(file)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(txns) {
				txns = txns[len(txns)-limit:]
			}

			o := out()
			if format == "json" {
				o = &outputter{json: true}
			}
			o.render(txns, func(v any) string { return renderHistory(v.([]txlog.Transaction)) })
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the most recent N transactions")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: json or table")
	return cmd
}

func newStatusCmd(open openFunc, out func() *outputter) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show undo/redo availability and backup/transaction totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			status, err := ws.Status()
			if err != nil {
				return err
			}
			out().render(status, func(v any) string { return renderStatus(v.(workspace.Status)) })
			return nil
		},
	}
}

func newSessionStartCmd(open openFunc, out func() *outputter) *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "Close the current session and open a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			if err := ws.StartSession(); err != nil {
				return err
			}
			fmt.Println("session started")
			return nil
		},
	}
}

func renderResults(results []undoredo.Result) string {
	var b strings.Builder
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "[%s] %s %s: %s\n", status, r.Operation, r.FilePath, r.Message)
	}
	return b.String()
}

func renderHistory(txns []txlog.Transaction) string {
	var b strings.Builder
	for _, t := range txns {
		fmt.Fprintf(&b, "%s  %-8s %-30s %s\n", t.Timestamp.Format("2006-01-02T15:04:05Z07:00"), t.Operation, t.FilePath, t.Description)
	}
	return b.String()
}

func renderStatus(s workspace.Status) string {
	return fmt.Sprintf(
		"session: %s\nundo available: %d (last: %s)\nredo available: %d (last: %s)\nbackups: %d across %d files\ntransactions: %d",
		s.Session, s.UndoRedo.UndoAvailable, s.UndoRedo.LastUndo, s.UndoRedo.RedoAvailable, s.UndoRedo.LastRedo,
		s.Restore.TotalBackupFiles, s.Restore.FilesWithBackups, s.Restore.TotalTransactions,
	)
}
