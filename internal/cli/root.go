// Package cli implements the treeedit command-line surface (SPEC_FULL.md
// §6.3): one subcommand per workspace operation, built on cobra the way the
// teacher's demo entrypoint builds its "run"/"list" commands. Output defaults
// to human-readable text; --json switches a command's result to marshaled
// JSON on stdout (one value per file for analyze), for editor integrations
// that shell out. session-start, index rebuild and serve print plain text
// either way.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/config"
	"github.com/oxhq/treeedit/internal/workspace"
)

// NewRootCommand builds the full "treeedit" command tree.
func NewRootCommand() *cobra.Command {
	var root string
	var jsonOut bool

	rootCmd := &cobra.Command{
		Use:   "treeedit",
		Short: "Structural source editing over a node-path tree model",
		Long:  "treeedit parses source files into a node-path tree and applies targeted edits, inserts, and deletes, logging every change so it can be undone, redone, or restored.",
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", ".", "Project root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of human-readable text")

	open := func() (*workspace.Workspace, error) {
		cfg, err := config.Load(root)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return workspace.Open(cfg.ProjectRoot, cfg.IndexDSN)
	}
	out := func() *outputter { return &outputter{json: jsonOut} }

	rootCmd.AddCommand(
		newAnalyzeCmd(open, out),
		newListCmd(open, out),
		newSearchCmd(open, out),
		newShowCmd(open, out),
		newEditCmd(open, out),
		newInsertCmd(open, out),
		newDeleteCmd(open, out),
		newBatchCmd(open, out),
		newBatchGlobCmd(open, out),
		newUndoCmd(open, out),
		newRedoCmd(open, out),
		newHistoryCmd(open, out),
		newStatusCmd(open, out),
		newSessionStartCmd(open, out),
		newRestoreCmd(open, out),
		newRestoreProjectCmd(open, out),
		newRestoreFilesCmd(open, out),
		newRestoreSessionCmd(open, out),
		newIndexCmd(open, out),
		newServeCmd(open),
	)

	return rootCmd
}

// openFunc lazily builds a Workspace rooted at the --root flag's value.
type openFunc func() (*workspace.Workspace, error)

// outputter renders a command's result either as formatted text (via the
// supplied textFn) or, when --json is set, as a single marshaled JSON value.
type outputter struct {
	json bool
}

func (o *outputter) render(value any, textFn func(any) string) {
	if o.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(value); err != nil {
			fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		}
		return
	}
	fmt.Println(textFn(value))
}
