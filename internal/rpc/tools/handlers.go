package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/workspace"
)

// analyzeParams is the input for the "analyze" tool.
type analyzeParams struct {
	FilePath string `json:"file_path"`
}

// listNodesParams is the input for the "list_nodes" tool.
type listNodesParams struct {
	FilePath   string `json:"file_path"`
	FilterType string `json:"filter_type,omitempty"`
	MaxDepth   int    `json:"max_depth,omitempty"`
	IncludeAll bool   `json:"include_all,omitempty"`
}

// searchNodesParams is the input for the "search_nodes" tool.
type searchNodesParams struct {
	FilePath string `json:"file_path"`
	Pattern  string `json:"pattern"`
}

// readNodeParams is the input for the "read_node" tool.
type readNodeParams struct {
	FilePath string `json:"file_path"`
	NodePath string `json:"node_path"`
}

// editNodeParams is the input for the "edit_node" tool.
type editNodeParams struct {
	FilePath string `json:"file_path"`
	NodePath string `json:"node_path"`
	Content  string `json:"content"`
	Preview  bool   `json:"preview,omitempty"`
}

// insertNodeParams is the input for the "insert_node" tool.
type insertNodeParams struct {
	FilePath   string `json:"file_path"`
	ParentPath string `json:"parent_path"`
	Position   int    `json:"position"`
	Content    string `json:"content"`
	Preview    bool   `json:"preview,omitempty"`
}

// Registry builds the full set of tools this server exposes, bound to ws.
func Registry(ws *workspace.Workspace) []Tool {
	return []Tool{
		analyzeTool(ws),
		listNodesTool(ws),
		searchNodesTool(ws),
		readNodeTool(ws),
		editNodeTool(ws),
		insertNodeTool(ws),
		pingTool(),
	}
}

func analyzeTool(ws *workspace.Workspace) Tool {
	return NewTool("analyze").
		WithDescription("Parse a file and return its full node tree").
		WithInputSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_path": CommonSchemas.FilePath},
			"required":   []string{"file_path"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[analyzeParams](raw)
			if err != nil {
				return nil, err
			}
			tree, err := ws.Analyze(p.FilePath)
			if err != nil {
				return nil, err
			}
			return tree, nil
		}).
		Build()
}

func listNodesTool(ws *workspace.Workspace) Tool {
	return NewTool("list_nodes").
		WithDescription("List nodes in a file, flattened in depth-first order, filtering out structural punctuation unless include_all is set").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path":   CommonSchemas.FilePath,
				"filter_type": map[string]any{"type": "string", "description": "Only return nodes of this node type"},
				"max_depth":   map[string]any{"type": "integer", "description": "Only return nodes at or above this depth (0 = unbounded)"},
				"include_all": map[string]any{"type": "boolean", "description": "Include purely structural punctuation nodes"},
			},
			"required": []string{"file_path"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[listNodesParams](raw)
			if err != nil {
				return nil, err
			}
			nodes, err := ws.ListNodes(p.FilePath, workspace.ListNodesOptions{
				FilterType: p.FilterType,
				MaxDepth:   p.MaxDepth,
				IncludeAll: p.IncludeAll,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"nodes": nodes}, nil
		}).
		Build()
}

func searchNodesTool(ws *workspace.Workspace) Tool {
	return NewTool("search_nodes").
		WithDescription("Search a file's nodes by content or node type substring").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": CommonSchemas.FilePath,
				"pattern":   CommonSchemas.Pattern,
			},
			"required": []string{"file_path", "pattern"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[searchNodesParams](raw)
			if err != nil {
				return nil, err
			}
			nodes, err := ws.SearchNodes(p.FilePath, p.Pattern)
			if err != nil {
				return nil, err
			}
			return map[string]any{"nodes": nodes}, nil
		}).
		Build()
}

func readNodeTool(ws *workspace.Workspace) Tool {
	return NewTool("read_node").
		WithDescription("Resolve a node path and return that node").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": CommonSchemas.FilePath,
				"node_path": CommonSchemas.NodePath,
			},
			"required": []string{"file_path", "node_path"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[readNodeParams](raw)
			if err != nil {
				return nil, err
			}
			node, err := ws.ReadNode(p.FilePath, p.NodePath)
			if err != nil {
				return nil, err
			}
			return node, nil
		}).
		Build()
}

func editNodeTool(ws *workspace.Workspace) Tool {
	return NewTool("edit_node").
		WithDescription("Replace a node's content, applying and logging the change unless preview is set").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": CommonSchemas.FilePath,
				"node_path": CommonSchemas.NodePath,
				"content":   CommonSchemas.Content,
				"preview":   map[string]any{"type": "boolean", "description": "Return a diff without writing"},
			},
			"required": []string{"file_path", "node_path", "content"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[editNodeParams](raw)
			if err != nil {
				return nil, err
			}
			op := model.EditOperation{Op: model.OpEdit, NodePath: p.NodePath, Content: p.Content}
			if p.Preview {
				diff, err := ws.Preview(p.FilePath, op)
				if err != nil {
					return nil, err
				}
				return diff, nil
			}
			result, err := ws.Apply(p.FilePath, op)
			if err != nil {
				return nil, err
			}
			return applyResultPayload(result), nil
		}).
		Build()
}

func insertNodeTool(ws *workspace.Workspace) Tool {
	return NewTool("insert_node").
		WithDescription("Insert content relative to a parent node, applying and logging the change unless preview is set").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path":   CommonSchemas.FilePath,
				"parent_path": CommonSchemas.NodePath,
				"position":    CommonSchemas.Position,
				"content":     CommonSchemas.Content,
				"preview":     map[string]any{"type": "boolean", "description": "Return a diff without writing"},
			},
			"required": []string{"file_path", "parent_path", "position", "content"},
		}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			if err := isCancelled(ctx); err != nil {
				return nil, err
			}
			p, err := ParseParams[insertNodeParams](raw)
			if err != nil {
				return nil, err
			}
			pos := model.InsertPosition(p.Position)
			if !model.ValidPosition(pos) {
				return nil, fmt.Errorf("%w: %d", model.ErrInvalidPosition, p.Position)
			}
			op := model.EditOperation{Op: model.OpInsert, ParentPath: p.ParentPath, Position: pos, Content: p.Content}
			if p.Preview {
				diff, err := ws.Preview(p.FilePath, op)
				if err != nil {
					return nil, err
				}
				return diff, nil
			}
			result, err := ws.Apply(p.FilePath, op)
			if err != nil {
				return nil, err
			}
			return applyResultPayload(result), nil
		}).
		Build()
}

func pingTool() Tool {
	return NewTool("ping").
		WithDescription("Liveness check").
		WithInputSchema(map[string]any{"type": "object", "properties": map[string]any{}}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			return "pong", nil
		}).
		Build()
}

func applyResultPayload(result workspace.ApplyResult) map[string]any {
	return map[string]any{
		"diff":           result.Diff,
		"transaction_id": result.TransactionID,
	}
}
