package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/workspace"
)

func newAnalyzeCmd(open openFunc, out func() *outputter) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Parse one or more files and print each node tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			for _, path := range args {
				tree, err := ws.Analyze(path)
				if err != nil {
					return err
				}
				out().render(tree, func(v any) string { return renderTree(v.(*model.Tree).Root, 0) })
			}
			return nil
		},
	}
}

func newListCmd(open openFunc, out func() *outputter) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list <file>",
		Short: "List a file's nodes depth-first, omitting structural punctuation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			nodes, err := ws.ListNodes(args[0], workspace.ListNodesOptions{FilterType: filter})
			if err != nil {
				return err
			}
			out().render(nodes, func(v any) string { return renderNodeList(v.([]*model.Node)) })
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Only list nodes of this node type")
	return cmd
}

func newSearchCmd(open openFunc, out func() *outputter) *cobra.Command {
	return &cobra.Command{
		Use:   "search <file> <pattern>",
		Short: "Search a file's nodes by content or node-type substring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			nodes, err := ws.SearchNodes(args[0], args[1])
			if err != nil {
				return err
			}
			out().render(nodes, func(v any) string { return renderNodeList(v.([]*model.Node)) })
			return nil
		},
	}
}

func newShowCmd(open openFunc, out func() *outputter) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file> <node-path>",
		Short: "Print a single node resolved by its node path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			node, err := ws.ReadNode(args[0], args[1])
			if err != nil {
				return err
			}
			out().render(node, func(v any) string { return renderNode(v.(*model.Node), 0) })
			return nil
		},
	}
}

func renderTree(n *model.Node, depth int) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	writeNode(&b, n, depth)
	return b.String()
}

func writeNode(b *strings.Builder, n *model.Node, depth int) {
	fmt.Fprintf(b, "%s[%s] %s (lines %d-%d)\n", strings.Repeat("  ", depth), n.Path, n.NodeType, n.StartLine, n.EndLine)
	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
}

func renderNode(n *model.Node, depth int) string {
	return fmt.Sprintf("[%s] %s (lines %d-%d)\n%s", n.Path, n.NodeType, n.StartLine, n.EndLine, n.Content)
}

func renderNodeList(nodes []*model.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&b, "[%s] %s (lines %d-%d)\n", n.Path, n.NodeType, n.StartLine, n.EndLine)
	}
	return b.String()
}
